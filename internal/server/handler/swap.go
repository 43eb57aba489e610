package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/server/middleware"
	"github.com/alanyoungcy/swapbot/internal/service"
)

// SwapService defines the methods the swap handler requires from the service
// layer.
type SwapService interface {
	HandleIntent(ctx context.Context, caller, text string) (service.IntentResponse, error)
	Swap(ctx context.Context, caller string, req domain.TradeRequest) (domain.SwapOutcome, error)
	Attempts(ctx context.Context, requestID string) ([]domain.TransactionAttempt, error)
	Receipt(ctx context.Context, traceID string) ([]byte, error)
}

// SwapHandler serves intent, swap and request-inspection endpoints.
type SwapHandler struct {
	swaps  SwapService
	logger *slog.Logger
}

// NewSwapHandler creates a SwapHandler.
func NewSwapHandler(swaps SwapService, logger *slog.Logger) *SwapHandler {
	return &SwapHandler{swaps: swaps, logger: logHandler(logger, "swaps")}
}

type intentRequest struct {
	Caller string `json:"caller"`
	Text   string `json:"text"`
}

// outcomeResponse carries a swap outcome together with the error that ended
// it, if any.
type outcomeResponse struct {
	Outcome any              `json:"outcome"`
	Error   string           `json:"error,omitempty"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
}

// HandleIntent runs a free-text request.
// POST /api/intents
func (h *SwapHandler) HandleIntent(w http.ResponseWriter, r *http.Request) {
	var body intentRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller := callerFrom(r, body.Caller)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	resp, err := h.swaps.HandleIntent(r.Context(), caller, body.Text)
	if err != nil {
		if resp.Swap != nil {
			h.writeOutcome(w, resp, err)
			return
		}
		writeDomainError(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if resp.LimitOrder != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// Swap executes a structured trade request.
// POST /api/swaps
func (h *SwapHandler) Swap(w http.ResponseWriter, r *http.Request) {
	var req domain.TradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller := callerFrom(r, req.Caller)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	if req.ID == "" {
		req.ID = r.Header.Get(middleware.RequestIDHeader)
	}

	outcome, err := h.swaps.Swap(r.Context(), caller, req)
	if err != nil {
		h.writeOutcome(w, outcome, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Outcome: outcome})
}

func (h *SwapHandler) writeOutcome(w http.ResponseWriter, outcome any, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("swap failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, outcomeResponse{Outcome: outcome, Error: err.Error(), Kind: domain.KindOf(err)})
}

// ListAttempts returns the transaction attempts recorded for a request.
// GET /api/requests/{id}/attempts
func (h *SwapHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	attempts, err := h.swaps.Attempts(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if attempts == nil {
		attempts = []domain.TransactionAttempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

// GetReceipt returns the archived outcome for a request verbatim.
// GET /api/requests/{id}/receipt
func (h *SwapHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	raw, err := h.swaps.Receipt(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// LimitOrderService defines the methods the limit order handler requires
// from the service layer.
type LimitOrderService interface {
	PlaceLimitOrder(ctx context.Context, caller string, req domain.LimitOrderRequest) (domain.LimitOrder, error)
	GetLimitOrder(ctx context.Context, caller, id string) (domain.LimitOrder, error)
	ListLimitOrders(ctx context.Context, caller string, opts domain.ListOpts) ([]domain.LimitOrder, error)
	CancelLimitOrder(ctx context.Context, caller, id string) (domain.LimitOrder, error)
}

// LimitOrderHandler serves limit order endpoints. Every route is scoped to
// the calling user.
type LimitOrderHandler struct {
	orders LimitOrderService
	logger *slog.Logger
}

// NewLimitOrderHandler creates a LimitOrderHandler.
func NewLimitOrderHandler(orders LimitOrderService, logger *slog.Logger) *LimitOrderHandler {
	return &LimitOrderHandler{orders: orders, logger: logHandler(logger, "limit_orders")}
}

type listLimitOrdersResponse struct {
	Orders []domain.LimitOrder `json:"orders"`
}

// Place stores a new limit order.
// POST /api/limit-orders
func (h *LimitOrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req domain.LimitOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller := callerFrom(r, req.Trade.Caller)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	order, err := h.orders.PlaceLimitOrder(r.Context(), caller, req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// List returns the caller's orders.
// GET /api/limit-orders?limit=50&offset=0
func (h *LimitOrderHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r, "")
	if caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	orders, err := h.orders.ListLimitOrders(r.Context(), caller, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if orders == nil {
		orders = []domain.LimitOrder{}
	}
	writeJSON(w, http.StatusOK, listLimitOrdersResponse{Orders: orders})
}

// Get returns one order.
// GET /api/limit-orders/{id}
func (h *LimitOrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r, "")
	if caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	order, err := h.orders.GetLimitOrder(r.Context(), caller, pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Cancel cancels an open order.
// DELETE /api/limit-orders/{id}
func (h *LimitOrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	caller := callerFrom(r, "")
	if caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	order, err := h.orders.CancelLimitOrder(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   string(order.Status),
		"order_id": order.ID,
	})
}

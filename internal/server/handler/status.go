package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports what this instance is and where it trades.
type StatusHandler struct {
	Mode      string
	Wallet    string
	ChainID   int64
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, wallet string, chainID int64) *StatusHandler {
	return &StatusHandler{Mode: mode, Wallet: wallet, ChainID: chainID, StartedAt: time.Now().UTC()}
}

// GetStatus responds with mode, wallet, chain and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"wallet":         h.Wallet,
		"chain_id":       h.ChainID,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}

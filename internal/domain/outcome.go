package domain

import "time"

// SwapOutcome is the durable record of one swap request: what was asked,
// what ran and how it ended. It is archived as JSON and published on the
// bus.
type SwapOutcome struct {
	TraceID     string           `json:"trace_id"`
	Caller      string           `json:"caller"`
	Wallet      string           `json:"wallet"`
	Request     TradeRequest     `json:"request"`
	Amounts     *ResolvedAmounts `json:"amounts,omitempty"`
	Result      *ExecutionResult `json:"result,omitempty"`
	ErrorKind   ErrorKind        `json:"error_kind,omitempty"`
	Error       string           `json:"error,omitempty"`
	Summary     string           `json:"summary"`
	ExplorerURL string           `json:"explorer_url,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}

// Succeeded reports whether the swap completed without error.
func (o SwapOutcome) Succeeded() bool { return o.ErrorKind == "" && o.Error == "" }

package domain

// IntentStatus is the extractor's verdict.
type IntentStatus string

const (
	IntentReady                IntentStatus = "ready"
	IntentConfirmationRequired IntentStatus = "confirmation_required"
	IntentMissingFields        IntentStatus = "missing_fields"
)

// IntentResult is what the intent extractor returns. Exactly one of Trade or
// LimitOrder is set when Status is ready; otherwise Prompt is surfaced to the
// user verbatim.
type IntentResult struct {
	Status     IntentStatus       `json:"status"`
	Trade      *TradeRequest      `json:"trade,omitempty"`
	LimitOrder *LimitOrderRequest `json:"limit_order,omitempty"`
	Prompt     string             `json:"prompt,omitempty"`
	Missing    []string           `json:"missing,omitempty"`
}

package domain

import "math/big"

// RouteKind is decided once by the router; downstream code switches on it
// instead of re-deriving the route from asset types.
type RouteKind int

const (
	RouteDirect RouteKind = iota + 1
	RouteViaBridge
	RouteWrapThenDirect
)

func (k RouteKind) String() string {
	switch k {
	case RouteDirect:
		return "direct"
	case RouteViaBridge:
		return "via_bridge"
	case RouteWrapThenDirect:
		return "wrap_then_direct"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k RouteKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Venue names the collaborator that prices and builds a hop.
type Venue string

const (
	VenueAggregator Venue = "aggregator"
	VenueCurveBuy   Venue = "curve_buy"
	VenueCurveSell  Venue = "curve_sell"
	VenueWrap       Venue = "wrap"
)

// Hop is one atomic exchange within a plan. SellAmount is filled in by the
// executor when the hop starts.
type Hop struct {
	Index      int      `json:"index"`
	Sell       Asset    `json:"sell"`
	Buy        Asset    `json:"buy"`
	Venue      Venue    `json:"venue"`
	SellAmount *big.Int `json:"sell_amount,omitempty"`
}

// HopPlan is the ordered route for one request.
type HopPlan struct {
	RequestID string    `json:"request_id"`
	Kind      RouteKind `json:"kind"`
	Bridge    *Asset    `json:"bridge,omitempty"`
	Hops      []Hop     `json:"hops"`
}

// Len returns the number of hops.
func (p HopPlan) Len() int { return len(p.Hops) }

// HopResult is what one executed hop produced.
type HopResult struct {
	Hop         Hop                `json:"hop"`
	Attempt     TransactionAttempt `json:"attempt"`
	QuotedBuy   *big.Int           `json:"quoted_buy,omitempty"`
	RealizedBuy *big.Int           `json:"realized_buy,omitempty"`
	// Degraded is set when the transaction succeeded but the realized amount
	// could not be decoded.
	Degraded bool `json:"degraded,omitempty"`
}

// ExecutionResult summarises a plan run. FailedHop is -1 when every hop
// completed.
type ExecutionResult struct {
	Plan      HopPlan     `json:"plan"`
	Hops      []HopResult `json:"hops"`
	FailedHop int         `json:"failed_hop"`
	FinalBuy  *big.Int    `json:"final_buy,omitempty"`
	Degraded  bool        `json:"degraded,omitempty"`
}

// LastTxHash returns the hash of the most recent submitted transaction.
func (r ExecutionResult) LastTxHash() string {
	for i := len(r.Hops) - 1; i >= 0; i-- {
		if h := r.Hops[i].Attempt.TxHash; h != "" {
			return h
		}
	}
	return ""
}

// Package router decides the hop plan for a pair of assets.
package router

import (
	"fmt"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// Router plans routes through a single bridge asset.
type Router struct {
	bridge        domain.Asset
	wrappedNative domain.Asset
}

// New creates a Router. bridge is the asset bonding curves are denominated
// in; wrappedNative is the ERC20 form of the gas asset.
func New(bridge, wrappedNative domain.Asset) *Router {
	return &Router{bridge: bridge, wrappedNative: wrappedNative}
}

// Plan returns the route for selling sell to buy. The route kind is fixed
// here and never re-derived downstream.
func (r *Router) Plan(requestID string, sell, buy domain.Asset) (domain.HopPlan, error) {
	if sell.Equal(buy) || (sell.IsNative() && buy.IsNative()) {
		return domain.HopPlan{}, domain.NewError(domain.KindValidation, "router: plan",
			fmt.Sprintf("cannot swap %s for itself", sell))
	}

	plan := domain.HopPlan{RequestID: requestID}

	// native -> wrapped is a pure wrap.
	if sell.IsNative() && buy.Equal(r.wrappedNative) {
		plan.Kind = domain.RouteWrapThenDirect
		plan.Hops = hops(leg{sell, buy, domain.VenueWrap})
		return plan, nil
	}

	sellCurve, buyCurve := sell.OnCurve(), buy.OnCurve()
	switch {
	case !sellCurve && !buyCurve:
		plan.Kind = domain.RouteDirect
		plan.Hops = hops(leg{sell, buy, domain.VenueAggregator})

	case sellCurve && buyCurve:
		plan.Kind = domain.RouteViaBridge
		plan.Bridge = r.bridgePtr()
		plan.Hops = hops(
			leg{sell, r.bridge, domain.VenueCurveSell},
			leg{r.bridge, buy, domain.VenueCurveBuy},
		)

	case buyCurve:
		switch {
		case sell.Equal(r.bridge):
			plan.Kind = domain.RouteDirect
			plan.Hops = hops(leg{sell, buy, domain.VenueCurveBuy})
		case sell.IsNative() && r.bridge.Equal(r.wrappedNative):
			plan.Kind = domain.RouteWrapThenDirect
			plan.Bridge = r.bridgePtr()
			plan.Hops = hops(
				leg{sell, r.bridge, domain.VenueWrap},
				leg{r.bridge, buy, domain.VenueCurveBuy},
			)
		default:
			plan.Kind = domain.RouteViaBridge
			plan.Bridge = r.bridgePtr()
			plan.Hops = hops(
				leg{sell, r.bridge, domain.VenueAggregator},
				leg{r.bridge, buy, domain.VenueCurveBuy},
			)
		}

	default: // sellCurve
		if buy.Equal(r.bridge) {
			plan.Kind = domain.RouteDirect
			plan.Hops = hops(leg{sell, buy, domain.VenueCurveSell})
		} else {
			plan.Kind = domain.RouteViaBridge
			plan.Bridge = r.bridgePtr()
			plan.Hops = hops(
				leg{sell, r.bridge, domain.VenueCurveSell},
				leg{r.bridge, buy, domain.VenueAggregator},
			)
		}
	}
	return plan, nil
}

func (r *Router) bridgePtr() *domain.Asset {
	b := r.bridge
	return &b
}

type leg struct {
	sell, buy domain.Asset
	venue     domain.Venue
}

func hops(legs ...leg) []domain.Hop {
	out := make([]domain.Hop, len(legs))
	for i, l := range legs {
		out[i] = domain.Hop{Index: i, Sell: l.sell, Buy: l.buy, Venue: l.venue}
	}
	return out
}

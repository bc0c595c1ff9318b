package domain

import "github.com/shopspring/decimal"

// Route is the outcome of comparing a divergence against the threshold.
// Venue A is the one whose price is the numerator of the divergence.
type Route int

const (
	RouteNone      Route = iota
	RouteBuyBSellA       // A is dearer: buy on B, sell on A
	RouteBuyASellB       // B is dearer: buy on A, sell on B
)

func (r Route) String() string {
	switch r {
	case RouteBuyBSellA:
		return "buy_b_sell_a"
	case RouteBuyASellB:
		return "buy_a_sell_b"
	default:
		return "none"
	}
}

// ParseRoute is the inverse of Route.String. Unknown values map to RouteNone.
func ParseRoute(s string) Route {
	switch s {
	case "buy_b_sell_a":
		return RouteBuyBSellA
	case "buy_a_sell_b":
		return RouteBuyASellB
	default:
		return RouteNone
	}
}

// ResolveRoute maps a full-precision divergence to a route. Both bounds are
// inclusive; anything strictly inside (-threshold, +threshold) is RouteNone.
func ResolveRoute(divergence, threshold decimal.Decimal) Route {
	threshold = threshold.Abs()
	switch {
	case divergence.GreaterThanOrEqual(threshold):
		return RouteBuyBSellA
	case divergence.LessThanOrEqual(threshold.Neg()):
		return RouteBuyASellB
	default:
		return RouteNone
	}
}

// Direction is the ordered (buy, sell) pair of venues for one cycle.
type Direction struct {
	Buy  VenueKind
	Sell VenueKind
}

// Direction binds the route to concrete venues a and b.
func (r Route) Direction(a, b VenueKind) (Direction, bool) {
	switch r {
	case RouteBuyBSellA:
		return Direction{Buy: b, Sell: a}, true
	case RouteBuyASellB:
		return Direction{Buy: a, Sell: b}, true
	default:
		return Direction{}, false
	}
}

// StartsOnConcentrated is the settlement contract's start-leg flag.
func (d Direction) StartsOnConcentrated() bool {
	return d.Buy == KindConcentrated
}

func (d Direction) String() string {
	return "buy " + d.Buy.String() + " / sell " + d.Sell.String()
}

package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// PricePrecision is the number of fractional digits kept by price and
// divergence divisions. Display rounding happens separately.
const PricePrecision int32 = 36

var hundred = decimal.NewFromInt(100)

// ReserveSnapshot is a point-in-time read of a pool, in configured leg order.
type ReserveSnapshot struct {
	Venue     VenueKind
	Reserve0  *big.Int
	Reserve1  *big.Int
	Decimals0 uint8
	Decimals1 uint8
	ReadAt    time.Time
}

// NewSnapshot builds a snapshot for pool from reserves given in the pool's
// native token order, re-ordering them when the pool is flipped.
func NewSnapshot(pool PoolHandle, native0, native1 *big.Int) ReserveSnapshot {
	r0, r1 := native0, native1
	if pool.Flipped {
		r0, r1 = native1, native0
	}
	return ReserveSnapshot{
		Venue:     pool.Kind,
		Reserve0:  r0,
		Reserve1:  r1,
		Decimals0: pool.Asset0.Decimals,
		Decimals1: pool.Asset1.Decimals,
		ReadAt:    time.Now().UTC(),
	}
}

// Reserve returns the reserve on leg 0 or 1.
func (s ReserveSnapshot) Reserve(leg int) *big.Int {
	if leg == 0 {
		return s.Reserve0
	}
	return s.Reserve1
}

// SpotPrice returns reserve0/reserve1 with both legs normalized by their
// decimals: the price of one asset1 expressed in asset0.
func SpotPrice(s ReserveSnapshot) (decimal.Decimal, error) {
	if s.Reserve1 == nil || s.Reserve1.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("spot price (%s): %w", s.Venue, ErrZeroReserve)
	}
	if s.Reserve0 == nil {
		return decimal.Zero, fmt.Errorf("spot price (%s): missing reserve0", s.Venue)
	}
	num := decimal.NewFromBigInt(s.Reserve0, -int32(s.Decimals0))
	den := decimal.NewFromBigInt(s.Reserve1, -int32(s.Decimals1))
	return num.DivRound(den, PricePrecision), nil
}

// Divergence returns (priceA - priceB) / priceB * 100 at full precision.
// Positive means venue A quotes the pair higher than venue B.
func Divergence(priceA, priceB decimal.Decimal) (decimal.Decimal, error) {
	if priceB.IsZero() {
		return decimal.Zero, ErrZeroPrice
	}
	return priceA.Sub(priceB).Mul(hundred).DivRound(priceB, PricePrecision), nil
}

// FormatUnits renders a raw token amount with the given decimals, rounded to
// places fractional digits.
func FormatUnits(amount *big.Int, decimals uint8, places int32) string {
	if amount == nil {
		return "-"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).StringFixed(places)
}

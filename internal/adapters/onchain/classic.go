package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// ClassicVenue reads a constant-product pair and quotes through its router.
type ClassicVenue struct {
	client *Client
	pool   domain.PoolHandle
	router common.Address
}

// NewClassicVenue creates the classic venue for a resolved pool.
func NewClassicVenue(c *Client, pool domain.PoolHandle, router common.Address) *ClassicVenue {
	return &ClassicVenue{client: c, pool: pool, router: router}
}

func (v *ClassicVenue) Kind() domain.VenueKind  { return domain.KindClassic }
func (v *ClassicVenue) Name() string            { return v.pool.Name }
func (v *ClassicVenue) Pool() domain.PoolHandle { return v.pool }

// ReadReserves calls getReserves() on the pair.
func (v *ClassicVenue) ReadReserves(ctx context.Context) (domain.ReserveSnapshot, error) {
	vals, err := v.client.call(ctx, v.pool.Address, pairABI, "getReserves")
	if err != nil {
		return domain.ReserveSnapshot{}, fmt.Errorf("onchain.ClassicVenue.ReadReserves: %w", err)
	}
	if len(vals) < 2 {
		return domain.ReserveSnapshot{}, fmt.Errorf("onchain.ClassicVenue.ReadReserves: got %d outputs", len(vals))
	}
	return domain.NewSnapshot(v.pool, vals[0].(*big.Int), vals[1].(*big.Int)), nil
}

// QuoteIn calls getAmountsIn(amountOut, path) on the router.
func (v *ClassicVenue) QuoteIn(ctx context.Context, amountOut *big.Int, path [2]common.Address) (*big.Int, error) {
	amounts, err := v.amounts(ctx, "getAmountsIn", amountOut, path)
	if err != nil {
		return nil, fmt.Errorf("onchain.ClassicVenue.QuoteIn: %w", err)
	}
	return nonZero(amounts[0])
}

// QuoteOut calls getAmountsOut(amountIn, path) on the router.
func (v *ClassicVenue) QuoteOut(ctx context.Context, amountIn *big.Int, path [2]common.Address) (*big.Int, error) {
	amounts, err := v.amounts(ctx, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("onchain.ClassicVenue.QuoteOut: %w", err)
	}
	return nonZero(amounts[len(amounts)-1])
}

func (v *ClassicVenue) amounts(ctx context.Context, method string, amount *big.Int, path [2]common.Address) ([]*big.Int, error) {
	vals, err := v.client.call(ctx, v.router, v2RouterABI, method, amount, path[:])
	if err != nil {
		return nil, err
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return nil, fmt.Errorf("%s: unexpected result %v", method, vals[0])
	}
	return amounts, nil
}

func nonZero(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, domain.ErrInsufficientLiquidity
	}
	return amount, nil
}

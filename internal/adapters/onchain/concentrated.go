package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// ConcentratedVenue reads a concentrated-liquidity pool and quotes through
// QuoterV2.
//
// Reserves are the pool contract's token balances. This overstates the
// liquidity active at the current tick and is only used for the spot price
// and for sizing the probe.
type ConcentratedVenue struct {
	client *Client
	pool   domain.PoolHandle
	quoter common.Address
}

// NewConcentratedVenue creates the concentrated venue for a resolved pool.
func NewConcentratedVenue(c *Client, pool domain.PoolHandle, quoter common.Address) *ConcentratedVenue {
	return &ConcentratedVenue{client: c, pool: pool, quoter: quoter}
}

func (v *ConcentratedVenue) Kind() domain.VenueKind  { return domain.KindConcentrated }
func (v *ConcentratedVenue) Name() string            { return v.pool.Name }
func (v *ConcentratedVenue) Pool() domain.PoolHandle { return v.pool }

// ReadReserves reads balanceOf(pool) on both tokens.
func (v *ConcentratedVenue) ReadReserves(ctx context.Context) (domain.ReserveSnapshot, error) {
	var r0, r1 *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		r0, err = v.client.BalanceOf(gctx, v.pool.Asset0.Address, v.pool.Address)
		return err
	})
	g.Go(func() (err error) {
		r1, err = v.client.BalanceOf(gctx, v.pool.Asset1.Address, v.pool.Address)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ReserveSnapshot{}, fmt.Errorf("onchain.ConcentratedVenue.ReadReserves: %w", err)
	}

	// Balances are already in configured order; NewSnapshot expects native order.
	if v.pool.Flipped {
		r0, r1 = r1, r0
	}
	return domain.NewSnapshot(v.pool, r0, r1), nil
}

// QuoteIn calls quoteExactOutputSingle: how much path[0] buys amountOut of path[1].
func (v *ConcentratedVenue) QuoteIn(ctx context.Context, amountOut *big.Int, path [2]common.Address) (*big.Int, error) {
	vals, err := v.client.call(ctx, v.quoter, quoterABI, "quoteExactOutputSingle", exactOutputParams{
		TokenIn:           path[0],
		TokenOut:          path[1],
		Amount:            amountOut,
		Fee:               v.fee(),
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, fmt.Errorf("onchain.ConcentratedVenue.QuoteIn: %w", err)
	}
	return nonZero(vals[0].(*big.Int))
}

// QuoteOut calls quoteExactInputSingle: how much path[1] amountIn of path[0] buys.
func (v *ConcentratedVenue) QuoteOut(ctx context.Context, amountIn *big.Int, path [2]common.Address) (*big.Int, error) {
	vals, err := v.client.call(ctx, v.quoter, quoterABI, "quoteExactInputSingle", exactInputParams{
		TokenIn:           path[0],
		TokenOut:          path[1],
		AmountIn:          amountIn,
		Fee:               v.fee(),
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, fmt.Errorf("onchain.ConcentratedVenue.QuoteOut: %w", err)
	}
	return nonZero(vals[0].(*big.Int))
}

func (v *ConcentratedVenue) fee() *big.Int {
	return new(big.Int).SetUint64(uint64(v.pool.Fee))
}

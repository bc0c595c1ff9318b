package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alejandrodnm/venuearb/internal/domain"
)

// probeLeg is the leg whose reserves bound the trial amount: the probe asks
// the buy venue for an amount of asset1.
const probeLeg = 1

// trialDivisor caps the probe at a fraction of the shallower pool.
var trialDivisor = big.NewInt(2)

// EstimatorConfig holds the fixed transaction cost estimate.
type EstimatorConfig struct {
	GasLimit    uint64
	GasPriceWei *big.Int
}

// Estimator simulates the two-leg round trip with each venue's own quoting
// interface and nets it against the estimated gas cost.
type Estimator struct {
	venues Venues
	cfg    EstimatorConfig
}

// NewEstimator creates a profitability estimator.
func NewEstimator(venues Venues, cfg EstimatorConfig) *Estimator {
	if cfg.GasPriceWei == nil {
		cfg.GasPriceWei = new(big.Int)
	}
	return &Estimator{venues: venues, cfg: cfg}
}

// TrialAmount returns half of the smaller probe-leg reserve across both snapshots.
func TrialAmount(a, b domain.ReserveSnapshot) *big.Int {
	smaller := minBig(a.Reserve(probeLeg), b.Reserve(probeLeg))
	return new(big.Int).Quo(smaller, trialDivisor)
}

// Estimate never returns an error: quote failures are expected when liquidity
// is thin and produce a negative verdict carrying the reason.
func (e *Estimator) Estimate(ctx context.Context, dir domain.Direction, a, b domain.ReserveSnapshot) domain.Verdict {
	buy := e.venues.ByKind(dir.Buy)
	sell := e.venues.ByKind(dir.Sell)
	pool := buy.Pool()

	v := domain.Verdict{
		Direction:   dir,
		TrialAmount: TrialAmount(a, b),
		GasCost:     domain.RescaleUnits(domain.GasCostWei(e.cfg.GasLimit, e.cfg.GasPriceWei), domain.NativeDecimals, pool.Asset0.Decimals),
	}

	if v.TrialAmount.Sign() <= 0 {
		v.Reason = "empty probe leg reserves"
		return v
	}

	amountIn, err := buy.QuoteIn(ctx, v.TrialAmount, pool.Path())
	if err != nil {
		return e.quoteFailed(v, fmt.Errorf("quote in on %s: %w", buy.Name(), err))
	}
	v.AmountIn = amountIn

	bought, err := buy.QuoteOut(ctx, amountIn, pool.Path())
	if err != nil {
		return e.quoteFailed(v, fmt.Errorf("quote out on %s: %w", buy.Name(), err))
	}
	v.Bought = bought

	amountOut, err := sell.QuoteOut(ctx, bought, sell.Pool().ReversePath())
	if err != nil {
		return e.quoteFailed(v, fmt.Errorf("quote out on %s: %w", sell.Name(), err))
	}
	v.AmountOut = amountOut

	v.Net = new(big.Int).Sub(amountOut, amountIn)
	v.NetAfterGas = new(big.Int).Sub(v.Net, v.GasCost)

	switch {
	case amountOut.Cmp(amountIn) <= 0:
		v.Reason = "round trip returns less than it costs"
	case v.NetAfterGas.Sign() < 0:
		v.Reason = "gas cost exceeds spread"
	default:
		v.Profitable = true
	}

	slog.Debug("estimator: round trip simulated",
		"direction", dir.String(),
		"trial", v.TrialAmount.String(),
		"amount_in", amountIn.String(),
		"amount_out", amountOut.String(),
		"net_after_gas", v.NetAfterGas.String(),
		"profitable", v.Profitable,
	)
	return v
}

func (e *Estimator) quoteFailed(v domain.Verdict, err error) domain.Verdict {
	slog.Info("estimator: quote failed, treating as not profitable", "err", err)
	v.Reason = err.Error()
	return v
}

package domain

import "math/big"

// Verdict is the profitability decision for one cycle.
type Verdict struct {
	Direction   Direction
	Profitable  bool
	TrialAmount *big.Int // asset1 probe requested on the buy venue
	AmountIn    *big.Int // asset0 required to buy TrialAmount; carried to execution
	Bought      *big.Int // asset1 received on the buy venue for AmountIn
	AmountOut   *big.Int // asset0 returned by the sell venue
	Net         *big.Int // AmountOut - AmountIn
	GasCost     *big.Int // gasLimit × gasPrice, in asset0 units
	NetAfterGas *big.Int // Net - GasCost
	Reason      string   // why the verdict is negative, empty otherwise
}

// TradeAmount returns the amount to submit to the settlement contract.
func (v Verdict) TradeAmount() *big.Int {
	return v.AmountIn
}

// GasCostWei returns gasLimit × gasPriceWei.
func GasCostWei(gasLimit uint64, gasPriceWei *big.Int) *big.Int {
	if gasPriceWei == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPriceWei)
}

// RescaleUnits converts amount between token precisions (e.g. native wei at
// 18 decimals into a 6-decimal base asset). Truncates toward zero.
func RescaleUnits(amount *big.Int, from, to uint8) *big.Int {
	out := new(big.Int).Set(amount)
	switch {
	case from > to:
		out.Quo(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil))
	case to > from:
		out.Mul(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil))
	}
	return out
}

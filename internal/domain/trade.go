package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceSnapshot holds base-asset and native balances for one account.
type BalanceSnapshot struct {
	Account common.Address
	Base    *big.Int
	Native  *big.Int
}

// BalanceDelta is after - before for one account.
type BalanceDelta struct {
	Account      common.Address
	BaseBefore   *big.Int
	BaseAfter    *big.Int
	BaseDelta    *big.Int
	NativeBefore *big.Int
	NativeAfter  *big.Int
	NativeSpent  *big.Int // before - after; gas paid by this account
}

// NewBalanceDelta compares two snapshots of the same account.
func NewBalanceDelta(before, after BalanceSnapshot) BalanceDelta {
	return BalanceDelta{
		Account:      before.Account,
		BaseBefore:   before.Base,
		BaseAfter:    after.Base,
		BaseDelta:    new(big.Int).Sub(after.Base, before.Base),
		NativeBefore: before.Native,
		NativeAfter:  after.Native,
		NativeSpent:  new(big.Int).Sub(before.Native, after.Native),
	}
}

// SettlementReceipt is what the settlement collaborator reports back.
type SettlementReceipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Success     bool
}

// TradeReceipt is the Trade Executor's report for one execution attempt.
type TradeReceipt struct {
	Direction  Direction
	Amount     *big.Int
	Rehearsal  bool
	Success    bool
	Settlement SettlementReceipt
	Target     BalanceDelta // profit recipient
	Spender    BalanceDelta // gas payer
	Error      string
	ExecutedAt time.Time
}

// NetGain returns the target's base delta minus the spender's native spend
// rescaled to base units. Both are zero in rehearsal mode.
func (r TradeReceipt) NetGain(baseDecimals uint8) *big.Int {
	gain := new(big.Int)
	if r.Target.BaseDelta != nil {
		gain.Set(r.Target.BaseDelta)
	}
	if r.Spender.NativeSpent != nil {
		gain.Sub(gain, RescaleUnits(r.Spender.NativeSpent, NativeDecimals, baseDecimals))
	}
	return gain
}

// NativeDecimals is the precision of the chain's gas asset.
const NativeDecimals uint8 = 18

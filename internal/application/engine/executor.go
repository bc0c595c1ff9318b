package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/alejandrodnm/venuearb/internal/ports"
	"github.com/ethereum/go-ethereum/common"
)

const defaultConfirmTimeout = 2 * time.Minute

// ExecutorConfig holds configuration for the trade executor.
type ExecutorConfig struct {
	// Live submits the settlement call. When false the call is skipped and
	// only the balance bookkeeping around a no-op is reported.
	Live bool

	// Target receives the arbitrage profit. Defaults to the settlement spender.
	Target common.Address

	Asset0 domain.Asset
	Asset1 domain.Asset

	// ConfirmTimeout bounds the wait for the settlement receipt.
	ConfirmTimeout time.Duration
}

// Executor submits trades to the settlement contract and reports balance deltas.
type Executor struct {
	chain      ports.ChainReader
	settlement ports.Settlement
	cfg        ExecutorConfig
}

// NewExecutor creates a trade executor.
func NewExecutor(chain ports.ChainReader, settlement ports.Settlement, cfg ExecutorConfig) *Executor {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if (cfg.Target == common.Address{}) {
		cfg.Target = settlement.Spender()
	}
	return &Executor{chain: chain, settlement: settlement, cfg: cfg}
}

// Live reports whether settlement calls are actually submitted.
func (x *Executor) Live() bool {
	return x.cfg.Live
}

// Execute submits one trade and waits for its terminal outcome. The wait is
// detached from ctx cancellation: once sent, the result must be known before
// balances can be trusted again.
func (x *Executor) Execute(ctx context.Context, dir domain.Direction, amount *big.Int) (domain.TradeReceipt, error) {
	receipt := domain.TradeReceipt{
		Direction:  dir,
		Amount:     amount,
		Rehearsal:  !x.cfg.Live,
		ExecutedAt: time.Now().UTC(),
	}

	spender := x.settlement.Spender()

	targetBefore, err := x.snapshot(ctx, x.cfg.Target)
	if err != nil {
		receipt.Error = err.Error()
		return receipt, fmt.Errorf("engine.Execute: balances before: %w", err)
	}
	spenderBefore, err := x.snapshot(ctx, spender)
	if err != nil {
		receipt.Error = err.Error()
		return receipt, fmt.Errorf("engine.Execute: balances before: %w", err)
	}

	if !x.cfg.Live {
		slog.Info("executor: rehearsal mode, settlement call skipped",
			"direction", dir.String(),
			"amount", amount.String(),
		)
		receipt.Success = true
		receipt.Target = domain.NewBalanceDelta(targetBefore, targetBefore)
		receipt.Spender = domain.NewBalanceDelta(spenderBefore, spenderBefore)
		return receipt, nil
	}

	slog.Info("executor: attempting arbitrage",
		"direction", dir.String(),
		"start_on_concentrated", dir.StartsOnConcentrated(),
		"amount", amount.String(),
	)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.cfg.ConfirmTimeout)
	defer cancel()

	settled, tradeErr := x.settlement.ExecuteTrade(sendCtx,
		dir.StartsOnConcentrated(),
		x.cfg.Asset0.Address,
		x.cfg.Asset1.Address,
		amount,
	)
	receipt.Settlement = settled
	receipt.Success = tradeErr == nil && settled.Success

	// Balances after are read even when the trade failed.
	afterCtx := context.WithoutCancel(ctx)
	targetAfter, err := x.snapshot(afterCtx, x.cfg.Target)
	if err != nil {
		slog.Warn("executor: could not read target balances after trade", "err", err)
		targetAfter = targetBefore
	}
	spenderAfter, err := x.snapshot(afterCtx, spender)
	if err != nil {
		slog.Warn("executor: could not read spender balances after trade", "err", err)
		spenderAfter = spenderBefore
	}
	receipt.Target = domain.NewBalanceDelta(targetBefore, targetAfter)
	receipt.Spender = domain.NewBalanceDelta(spenderBefore, spenderAfter)

	if tradeErr != nil {
		receipt.Error = tradeErr.Error()
		return receipt, fmt.Errorf("engine.Execute: %w", tradeErr)
	}
	if !settled.Success {
		receipt.Error = domain.ErrTradeReverted.Error()
		return receipt, fmt.Errorf("engine.Execute: tx %s: %w", settled.TxHash.Hex(), domain.ErrTradeReverted)
	}

	slog.Info("executor: trade complete",
		"tx", settled.TxHash.Hex(),
		"block", settled.BlockNumber,
		"gas_used", settled.GasUsed,
	)
	return receipt, nil
}

func (x *Executor) snapshot(ctx context.Context, account common.Address) (domain.BalanceSnapshot, error) {
	base, err := x.chain.BalanceOf(ctx, x.cfg.Asset0.Address, account)
	if err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("%s balance of %s: %w", x.cfg.Asset0, account.Hex(), err)
	}
	native, err := x.chain.NativeBalance(ctx, account)
	if err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("native balance of %s: %w", account.Hex(), err)
	}
	return domain.BalanceSnapshot{Account: account, Base: base, Native: native}, nil
}

package onchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const logBuffer = 32

// SwapWatcher subscribes to pool swap logs. It implements ports.SwapSource.
type SwapWatcher struct {
	client *Client
}

// NewSwapWatcher creates a watcher over a websocket-backed client.
func NewSwapWatcher(c *Client) *SwapWatcher {
	return &SwapWatcher{client: c}
}

// SubscribeSwaps forwards one notification per swap log emitted by pool.
// Reorged-out logs are skipped. A refused subscription wraps
// domain.ErrSubscribe; a later transport failure ends the subscription with
// the transport error. Re-opening is up to the caller.
func (w *SwapWatcher) SubscribeSwaps(ctx context.Context, pool domain.PoolHandle, out chan<- domain.SwapNotification) error {
	q := ethereum.FilterQuery{
		Addresses: []common.Address{pool.Address},
		Topics:    [][]common.Hash{swapTopics},
	}

	logs := make(chan types.Log, logBuffer)
	if err := w.client.wait(ctx); err != nil {
		return err
	}
	sub, err := w.client.eth.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		return fmt.Errorf("onchain.SubscribeSwaps: %s: %w: %w", pool.Name, domain.ErrSubscribe, err)
	}
	defer sub.Unsubscribe()

	slog.Info("onchain: subscribed to swaps", "venue", pool.Name, "pool", pool.Address.Hex())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				return fmt.Errorf("onchain.SubscribeSwaps: %s: subscription closed", pool.Name)
			}
			return fmt.Errorf("onchain.SubscribeSwaps: %s: %w", pool.Name, err)
		case l := <-logs:
			if l.Removed {
				continue
			}
			n := domain.SwapNotification{
				Venue:       pool.Kind,
				Pool:        l.Address,
				BlockNumber: l.BlockNumber,
				TxHash:      l.TxHash,
			}
			slog.Debug("onchain: swap observed", "venue", pool.Name, "block", l.BlockNumber, "tx", l.TxHash.Hex())
			select {
			case out <- n:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

package onchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// ErrPoolNotFound means the factory has no pool for the pair (and fee tier).
var ErrPoolNotFound = errors.New("pool not found")

// ResolveAsset reads symbol, name and decimals from an ERC-20 contract.
func ResolveAsset(ctx context.Context, c *Client, addr common.Address) (domain.Asset, error) {
	a := domain.Asset{Address: addr}

	vals, err := c.call(ctx, addr, erc20ABI, "decimals")
	if err != nil {
		return a, fmt.Errorf("onchain.ResolveAsset: %s: %w", addr.Hex(), err)
	}
	a.Decimals = vals[0].(uint8)

	if vals, err = c.call(ctx, addr, erc20ABI, "symbol"); err != nil {
		return a, fmt.Errorf("onchain.ResolveAsset: %s: %w", addr.Hex(), err)
	}
	a.Symbol = vals[0].(string)

	// name() is cosmetic; some tokens return bytes32 instead of string.
	if vals, err = c.call(ctx, addr, erc20ABI, "name"); err != nil {
		slog.Debug("onchain: token name unavailable", "token", addr.Hex(), "err", err)
	} else {
		a.Name = vals[0].(string)
	}

	return a, nil
}

// ResolveClassicPool looks up the constant-product pair for asset0/asset1.
func ResolveClassicPool(ctx context.Context, c *Client, name string, factory common.Address, asset0, asset1 domain.Asset) (domain.PoolHandle, error) {
	vals, err := c.call(ctx, factory, v2FactoryABI, "getPair", asset0.Address, asset1.Address)
	if err != nil {
		return domain.PoolHandle{}, fmt.Errorf("onchain.ResolveClassicPool: %s: %w", name, err)
	}
	addr := vals[0].(common.Address)
	if addr == (common.Address{}) {
		return domain.PoolHandle{}, fmt.Errorf("onchain.ResolveClassicPool: %s %s/%s: %w", name, asset0, asset1, ErrPoolNotFound)
	}

	pool := domain.PoolHandle{
		Kind:    domain.KindClassic,
		Name:    name,
		Address: addr,
		Asset0:  asset0,
		Asset1:  asset1,
	}
	if pool.Flipped, err = isFlipped(ctx, c, addr, asset0.Address); err != nil {
		return domain.PoolHandle{}, fmt.Errorf("onchain.ResolveClassicPool: %s: %w", name, err)
	}
	return pool, nil
}

// ResolveConcentratedPool looks up the concentrated-liquidity pool for
// asset0/asset1 at the given fee tier.
func ResolveConcentratedPool(ctx context.Context, c *Client, name string, factory common.Address, fee uint32, asset0, asset1 domain.Asset) (domain.PoolHandle, error) {
	vals, err := c.call(ctx, factory, v3FactoryABI, "getPool", asset0.Address, asset1.Address, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return domain.PoolHandle{}, fmt.Errorf("onchain.ResolveConcentratedPool: %s: %w", name, err)
	}
	addr := vals[0].(common.Address)
	if addr == (common.Address{}) {
		return domain.PoolHandle{}, fmt.Errorf("onchain.ResolveConcentratedPool: %s %s/%s fee %d: %w", name, asset0, asset1, fee, ErrPoolNotFound)
	}

	pool := domain.PoolHandle{
		Kind:    domain.KindConcentrated,
		Name:    name,
		Address: addr,
		Fee:     fee,
		Asset0:  asset0,
		Asset1:  asset1,
	}
	if pool.Flipped, err = isFlipped(ctx, c, addr, asset0.Address); err != nil {
		return domain.PoolHandle{}, fmt.Errorf("onchain.ResolveConcentratedPool: %s: %w", name, err)
	}
	return pool, nil
}

// isFlipped reports whether the pool's native token0 is not asset0.
func isFlipped(ctx context.Context, c *Client, pool, asset0 common.Address) (bool, error) {
	vals, err := c.call(ctx, pool, pairABI, "token0")
	if err != nil {
		return false, err
	}
	return vals[0].(common.Address) != asset0, nil
}

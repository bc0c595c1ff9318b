package onchain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	wbnbAddr     = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	cakeAddr     = common.HexToAddress("0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82")
	v2Factory    = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	v2Router     = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	v3Factory    = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	quoterAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	pairAddr     = common.HexToAddress("0x0000000000000000000000000000000000000002")
	poolAddr     = common.HexToAddress("0x0000000000000000000000000000000000000003")
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")

	wbnb = domain.Asset{Address: wbnbAddr, Symbol: "WBNB", Decimals: 18}
	cake = domain.Asset{Address: cakeAddr, Symbol: "CAKE", Decimals: 18}
)

func newTestClient() (*Client, *fakeBackend) {
	f := newFakeBackend()
	return newClient(f, 1000), f
}

func TestClient_Balances(t *testing.T) {
	c, f := newTestClient()
	owner := common.HexToAddress("0x01")
	f.on(wbnbAddr, "balanceOf", func(args []any) ([]any, error) {
		require.Equal(t, owner, args[0].(common.Address))
		return []any{big.NewInt(42)}, nil
	})
	f.native[owner] = big.NewInt(7)

	bal, err := c.BalanceOf(context.Background(), wbnbAddr, owner)
	require.NoError(t, err)
	assert.Equal(t, "42", bal.String())

	nat, err := c.NativeBalance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, "7", nat.String())

	block, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), block)
}

func TestClient_EmptyResultIsError(t *testing.T) {
	c, _ := newTestClient()

	_, err := c.BalanceOf(context.Background(), common.HexToAddress("0xdead"), common.HexToAddress("0x01"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty result")
}

func TestClient_CancelledContext(t *testing.T) {
	c, _ := newTestClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.BalanceOf(ctx, wbnbAddr, common.HexToAddress("0x01"))
	assert.Error(t, err)
}

func TestResolveAsset(t *testing.T) {
	c, f := newTestClient()
	f.on(cakeAddr, "decimals", returns(uint8(18)))
	f.on(cakeAddr, "symbol", returns("Cake"))
	f.on(cakeAddr, "name", returns("PancakeSwap Token"))

	a, err := ResolveAsset(context.Background(), c, cakeAddr)
	require.NoError(t, err)
	assert.Equal(t, cakeAddr, a.Address)
	assert.Equal(t, "Cake", a.Symbol)
	assert.Equal(t, "PancakeSwap Token", a.Name)
	assert.Equal(t, uint8(18), a.Decimals)
}

func TestResolveAsset_NameOptional(t *testing.T) {
	c, f := newTestClient()
	f.on(cakeAddr, "decimals", returns(uint8(6)))
	f.on(cakeAddr, "symbol", returns("USDC"))

	a, err := ResolveAsset(context.Background(), c, cakeAddr)
	require.NoError(t, err)
	assert.Equal(t, "USDC", a.Symbol)
	assert.Empty(t, a.Name)
}

func TestResolveClassicPool(t *testing.T) {
	tests := []struct {
		name    string
		token0  common.Address
		flipped bool
	}{
		{"native order matches", wbnbAddr, false},
		{"native order reversed", cakeAddr, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, f := newTestClient()
			f.on(v2Factory, "getPair", func(args []any) ([]any, error) {
				assert.Equal(t, wbnbAddr, args[0].(common.Address))
				assert.Equal(t, cakeAddr, args[1].(common.Address))
				return []any{pairAddr}, nil
			})
			f.on(pairAddr, "token0", returns(tc.token0))

			pool, err := ResolveClassicPool(context.Background(), c, "PancakeSwap V2", v2Factory, wbnb, cake)
			require.NoError(t, err)
			assert.Equal(t, domain.KindClassic, pool.Kind)
			assert.Equal(t, pairAddr, pool.Address)
			assert.Equal(t, tc.flipped, pool.Flipped)
			assert.Equal(t, wbnb, pool.Asset0)
		})
	}
}

func TestResolveClassicPool_NotFound(t *testing.T) {
	c, f := newTestClient()
	f.on(v2Factory, "getPair", returns(common.Address{}))

	_, err := ResolveClassicPool(context.Background(), c, "PancakeSwap V2", v2Factory, wbnb, cake)
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestResolveConcentratedPool(t *testing.T) {
	c, f := newTestClient()
	f.on(v3Factory, "getPool", func(args []any) ([]any, error) {
		assert.Equal(t, "2500", args[2].(*big.Int).String())
		return []any{poolAddr}, nil
	})
	f.on(poolAddr, "token0", returns(wbnbAddr))

	pool, err := ResolveConcentratedPool(context.Background(), c, "PancakeSwap V3", v3Factory, 2500, wbnb, cake)
	require.NoError(t, err)
	assert.Equal(t, domain.KindConcentrated, pool.Kind)
	assert.Equal(t, poolAddr, pool.Address)
	assert.Equal(t, uint32(2500), pool.Fee)
	assert.False(t, pool.Flipped)
}

func TestClassicVenue_ReadReservesFollowsConfiguredOrder(t *testing.T) {
	c, f := newTestClient()
	// native order: token0 = CAKE (2_000), token1 = WBNB (1_000)
	f.on(pairAddr, "getReserves", returns(big.NewInt(2_000), big.NewInt(1_000), uint32(1700000000)))

	pool := domain.PoolHandle{Kind: domain.KindClassic, Name: "V2", Address: pairAddr, Asset0: wbnb, Asset1: cake, Flipped: true}
	v := NewClassicVenue(c, pool, v2Router)

	snap, err := v.ReadReserves(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000", snap.Reserve0.String())
	assert.Equal(t, "2000", snap.Reserve1.String())
	assert.Equal(t, domain.KindClassic, snap.Venue)
}

func TestClassicVenue_Quotes(t *testing.T) {
	c, f := newTestClient()
	f.on(v2Router, "getAmountsIn", func(args []any) ([]any, error) {
		path := args[1].([]common.Address)
		assert.Equal(t, []common.Address{wbnbAddr, cakeAddr}, path)
		return []any{[]*big.Int{big.NewInt(105), args[0].(*big.Int)}}, nil
	})
	f.on(v2Router, "getAmountsOut", func(args []any) ([]any, error) {
		return []any{[]*big.Int{args[0].(*big.Int), big.NewInt(0)}}, nil
	})

	pool := domain.PoolHandle{Kind: domain.KindClassic, Address: pairAddr, Asset0: wbnb, Asset1: cake}
	v := NewClassicVenue(c, pool, v2Router)

	in, err := v.QuoteIn(context.Background(), big.NewInt(100), pool.Path())
	require.NoError(t, err)
	assert.Equal(t, "105", in.String())

	_, err = v.QuoteOut(context.Background(), big.NewInt(100), pool.Path())
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
}

func TestClassicVenue_QuoteRevert(t *testing.T) {
	c, f := newTestClient()
	f.on(v2Router, "getAmountsIn", func([]any) ([]any, error) {
		return nil, errors.New("execution reverted: PancakeLibrary: INSUFFICIENT_LIQUIDITY")
	})

	pool := domain.PoolHandle{Kind: domain.KindClassic, Address: pairAddr, Asset0: wbnb, Asset1: cake}
	_, err := NewClassicVenue(c, pool, v2Router).QuoteIn(context.Background(), big.NewInt(1), pool.Path())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INSUFFICIENT_LIQUIDITY")
}

func TestConcentratedVenue_ReadReservesFromBalances(t *testing.T) {
	c, f := newTestClient()
	f.on(wbnbAddr, "balanceOf", func(args []any) ([]any, error) {
		assert.Equal(t, poolAddr, args[0].(common.Address))
		return []any{big.NewInt(500)}, nil
	})
	f.on(cakeAddr, "balanceOf", returns(big.NewInt(900)))

	for _, flipped := range []bool{false, true} {
		pool := domain.PoolHandle{Kind: domain.KindConcentrated, Address: poolAddr, Asset0: wbnb, Asset1: cake, Flipped: flipped}
		snap, err := NewConcentratedVenue(c, pool, quoterAddr).ReadReserves(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "500", snap.Reserve0.String(), "flipped=%v", flipped)
		assert.Equal(t, "900", snap.Reserve1.String(), "flipped=%v", flipped)
	}
}

func TestConcentratedVenue_Quotes(t *testing.T) {
	c, f := newTestClient()
	f.on(quoterAddr, "quoteExactOutputSingle", func(args []any) ([]any, error) {
		p := abi.ConvertType(args[0], new(exactOutputParams)).(*exactOutputParams)
		assert.Equal(t, wbnbAddr, p.TokenIn)
		assert.Equal(t, cakeAddr, p.TokenOut)
		assert.Equal(t, "500", p.Fee.String())
		assert.Equal(t, "100", p.Amount.String())
		return []any{big.NewInt(103), big.NewInt(0), uint32(1), big.NewInt(80_000)}, nil
	})
	f.on(quoterAddr, "quoteExactInputSingle", func(args []any) ([]any, error) {
		p := abi.ConvertType(args[0], new(exactInputParams)).(*exactInputParams)
		assert.Equal(t, cakeAddr, p.TokenIn)
		assert.Equal(t, "103", p.AmountIn.String())
		return []any{big.NewInt(98), big.NewInt(0), uint32(1), big.NewInt(80_000)}, nil
	})

	pool := domain.PoolHandle{Kind: domain.KindConcentrated, Address: poolAddr, Fee: 500, Asset0: wbnb, Asset1: cake}
	v := NewConcentratedVenue(c, pool, quoterAddr)

	in, err := v.QuoteIn(context.Background(), big.NewInt(100), pool.Path())
	require.NoError(t, err)
	assert.Equal(t, "103", in.String())

	out, err := v.QuoteOut(context.Background(), in, pool.ReversePath())
	require.NoError(t, err)
	assert.Equal(t, "98", out.String())
}

func TestSwapWatcher_ForwardsSwaps(t *testing.T) {
	c, f := newTestClient()
	w := NewSwapWatcher(c)
	pool := domain.PoolHandle{Kind: domain.KindConcentrated, Name: "V3", Address: poolAddr}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan domain.SwapNotification, 4)
	done := make(chan error, 1)
	go func() { done <- w.SubscribeSwaps(ctx, pool, out) }()

	var logs chan<- types.Log
	require.Eventually(t, func() bool {
		logs, _ = f.subscription()
		return logs != nil
	}, time.Second, time.Millisecond)

	assert.Equal(t, []common.Address{poolAddr}, f.query.Addresses)
	assert.ElementsMatch(t, swapTopics, f.query.Topics[0])

	logs <- types.Log{Address: poolAddr, BlockNumber: 11, Removed: true}
	logs <- types.Log{Address: poolAddr, BlockNumber: 12, TxHash: common.HexToHash("0xabc")}

	select {
	case n := <-out:
		assert.Equal(t, domain.KindConcentrated, n.Venue)
		assert.Equal(t, uint64(12), n.BlockNumber)
		assert.Equal(t, common.HexToHash("0xabc"), n.TxHash)
	case <-time.After(time.Second):
		t.Fatal("no notification forwarded")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	_, sub := f.subscription()
	assert.True(t, sub.unsubscribed)
	assert.Empty(t, out, "removed log must not be forwarded")
}

func TestSwapWatcher_TransportFailure(t *testing.T) {
	c, f := newTestClient()
	w := NewSwapWatcher(c)
	pool := domain.PoolHandle{Kind: domain.KindClassic, Name: "V2", Address: pairAddr}

	done := make(chan error, 1)
	go func() { done <- w.SubscribeSwaps(context.Background(), pool, make(chan domain.SwapNotification)) }()

	require.Eventually(t, func() bool {
		_, sub := f.subscription()
		return sub != nil
	}, time.Second, time.Millisecond)
	_, sub := f.subscription()
	sub.errc <- errors.New("websocket: close 1006")

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close 1006")
	assert.NotErrorIs(t, err, domain.ErrSubscribe, "a drop after subscribing is not a refusal")
}

func TestSwapWatcher_SubscribeError(t *testing.T) {
	c, f := newTestClient()
	f.subErr = errors.New("notifications not supported")

	err := NewSwapWatcher(c).SubscribeSwaps(context.Background(), domain.PoolHandle{Name: "V2"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifications not supported")
	assert.ErrorIs(t, err, domain.ErrSubscribe)
}

func newTestSettlement(t *testing.T, gasLimit uint64) (*SettlementClient, *fakeBackend) {
	t.Helper()
	c, f := newTestClient()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := NewSettlementClient(context.Background(), c, contractAddr, key, gasLimit)
	require.NoError(t, err)
	s.poll = time.Millisecond
	return s, f
}

func TestSettlement_ExecuteTrade(t *testing.T) {
	s, f := newTestSettlement(t, 400_000)

	r, err := s.ExecuteTrade(context.Background(), true, wbnbAddr, cakeAddr, big.NewInt(1_000))
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, uint64(101), r.BlockNumber)
	assert.Equal(t, uint64(210_000), r.GasUsed)

	require.Len(t, f.sent, 1)
	tx := f.sent[0]
	assert.Equal(t, contractAddr, *tx.To())
	assert.Equal(t, uint64(400_000), tx.Gas())
	assert.Equal(t, "1100000000", tx.GasPrice().String(), "suggested price plus 10%")
	assert.Equal(t, r.TxHash, tx.Hash())

	from, err := types.Sender(types.NewEIP155Signer(big.NewInt(56)), tx)
	require.NoError(t, err)
	assert.Equal(t, s.Spender(), from)

	m := settlementABI.Methods["executeTrade"]
	assert.Equal(t, m.ID, tx.Data()[:4])
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, true, args[0])
	assert.Equal(t, wbnbAddr, args[1])
	assert.Equal(t, cakeAddr, args[2])
	assert.Equal(t, "1000", args[3].(*big.Int).String())
}

func TestSettlement_EstimatesGasWhenUnset(t *testing.T) {
	s, f := newTestSettlement(t, 0)

	_, err := s.ExecuteTrade(context.Background(), false, wbnbAddr, cakeAddr, big.NewInt(1))
	require.NoError(t, err)
	require.Len(t, f.sent, 1)
	assert.Equal(t, uint64(360_000), f.sent[0].Gas())
}

func TestSettlement_Reverted(t *testing.T) {
	s, f := newTestSettlement(t, 400_000)
	f.status = types.ReceiptStatusFailed

	r, err := s.ExecuteTrade(context.Background(), false, wbnbAddr, cakeAddr, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrTradeReverted)
	assert.False(t, r.Success)
	assert.NotEqual(t, common.Hash{}, r.TxHash)
	assert.Equal(t, uint64(210_000), r.GasUsed)
}

func TestSettlement_SendError(t *testing.T) {
	s, f := newTestSettlement(t, 400_000)
	f.sendErr = errors.New("insufficient funds for gas")

	r, err := s.ExecuteTrade(context.Background(), false, wbnbAddr, cakeAddr, big.NewInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")
	assert.False(t, r.Success)
}

func TestSettlement_ReceiptTimeout(t *testing.T) {
	s, _ := newTestSettlement(t, 400_000)
	s.poll = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r, err := s.ExecuteTrade(ctx, false, wbnbAddr, cakeAddr, big.NewInt(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEqual(t, common.Hash{}, r.TxHash)
}

func TestSettlement_GasPriceCachedWithFallback(t *testing.T) {
	s, f := newTestSettlement(t, 400_000)

	first := s.gasPrice(context.Background())
	second := s.gasPrice(context.Background())
	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, 1, f.gasCalls)

	fresh, f2 := newTestSettlement(t, 400_000)
	f2.gasErr = errors.New("rpc down")
	assert.Equal(t, fallbackGasPriceWei.String(), fresh.gasPrice(context.Background()).String())
}

func TestParsePrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := common.Bytes2Hex(crypto.FromECDSA(key))

	for _, in := range []string{hexKey, "0x" + hexKey} {
		_, addr, err := ParsePrivateKey(in)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), addr)
	}

	_, _, err = ParsePrivateKey("not-hex")
	assert.Error(t, err)
}

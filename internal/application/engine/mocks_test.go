package engine_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/venuearb/internal/application/engine"
	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// --- fixtures ---

var (
	base = domain.Asset{
		Address:  common.HexToAddress("0x00000000000000000000000000000000000000b0"),
		Symbol:   "WBNB",
		Decimals: 18,
	}
	target = domain.Asset{
		Address:  common.HexToAddress("0x00000000000000000000000000000000000000c0"),
		Symbol:   "CAKE",
		Decimals: 18,
	}
	spenderAddr = common.HexToAddress("0x00000000000000000000000000000000000000e0")
)

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func pool(kind domain.VenueKind) domain.PoolHandle {
	name := "PancakeSwap V2"
	if kind == domain.KindConcentrated {
		name = "PancakeSwap V3"
	}
	return domain.PoolHandle{Kind: kind, Name: name, Asset0: base, Asset1: target}
}

// --- mocks ---

type mockVenue struct {
	pool     domain.PoolHandle
	r0, r1   *big.Int
	readErr  error
	quoteIn  func(amountOut *big.Int) (*big.Int, error)
	quoteOut func(amountIn *big.Int, path [2]common.Address) (*big.Int, error)

	quoteCalls atomic.Int64
	reads      atomic.Int64
}

func newVenue(kind domain.VenueKind, r0, r1 *big.Int) *mockVenue {
	return &mockVenue{pool: pool(kind), r0: r0, r1: r1}
}

func (m *mockVenue) Kind() domain.VenueKind  { return m.pool.Kind }
func (m *mockVenue) Name() string            { return m.pool.Name }
func (m *mockVenue) Pool() domain.PoolHandle { return m.pool }

func (m *mockVenue) ReadReserves(_ context.Context) (domain.ReserveSnapshot, error) {
	m.reads.Add(1)
	if m.readErr != nil {
		return domain.ReserveSnapshot{}, m.readErr
	}
	return domain.NewSnapshot(m.pool, m.r0, m.r1), nil
}

func (m *mockVenue) QuoteIn(_ context.Context, amountOut *big.Int, _ [2]common.Address) (*big.Int, error) {
	m.quoteCalls.Add(1)
	if m.quoteIn == nil {
		return nil, errors.New("no quote configured")
	}
	return m.quoteIn(amountOut)
}

func (m *mockVenue) QuoteOut(_ context.Context, amountIn *big.Int, path [2]common.Address) (*big.Int, error) {
	m.quoteCalls.Add(1)
	if m.quoteOut == nil {
		return nil, errors.New("no quote configured")
	}
	return m.quoteOut(amountIn, path)
}

// fixedQuotes makes the buy venue ask amountIn for anything and return
// bought, and the sell venue return amountOut.
func fixedQuotes(buy, sell *mockVenue, amountIn, bought, amountOut *big.Int) {
	buy.quoteIn = func(*big.Int) (*big.Int, error) { return amountIn, nil }
	buy.quoteOut = func(*big.Int, [2]common.Address) (*big.Int, error) { return bought, nil }
	sell.quoteOut = func(*big.Int, [2]common.Address) (*big.Int, error) { return amountOut, nil }
}

type mockChain struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	native   map[common.Address]*big.Int
	err      error

	// cycle overlap tracking: BlockNumber marks a cycle start
	active    atomic.Int64
	maxActive atomic.Int64
	delay     time.Duration
}

func newChain() *mockChain {
	return &mockChain{
		balances: map[common.Address]*big.Int{spenderAddr: units(10)},
		native:   map[common.Address]*big.Int{spenderAddr: units(1)},
	}
}

func (m *mockChain) BlockNumber(_ context.Context) (uint64, error) {
	n := m.active.Add(1)
	for {
		cur := m.maxActive.Load()
		if n <= cur || m.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return 42, nil
}

func (m *mockChain) BalanceOf(_ context.Context, _ common.Address, owner common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if b, ok := m.balances[owner]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (m *mockChain) NativeBalance(_ context.Context, owner common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if b, ok := m.native[owner]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (m *mockChain) credit(owner common.Address, baseDelta, nativeDelta *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[owner] = new(big.Int).Add(m.balances[owner], baseDelta)
	m.native[owner] = new(big.Int).Add(m.native[owner], nativeDelta)
}

type mockSettlement struct {
	receipt domain.SettlementReceipt
	err     error
	onTrade func(ctx context.Context)

	calls     atomic.Int64
	active    atomic.Int64
	overlaps  atomic.Int64
	lastStart atomic.Bool
	lastAmt   atomic.Pointer[big.Int]
}

func (m *mockSettlement) ExecuteTrade(ctx context.Context, startOnConcentrated bool, _, _ common.Address, amount *big.Int) (domain.SettlementReceipt, error) {
	m.calls.Add(1)
	if m.active.Add(1) > 1 {
		m.overlaps.Add(1)
	}
	defer m.active.Add(-1)
	m.lastStart.Store(startOnConcentrated)
	m.lastAmt.Store(amount)
	if m.onTrade != nil {
		m.onTrade(ctx)
	}
	return m.receipt, m.err
}

func (m *mockSettlement) Spender() common.Address { return spenderAddr }

type mockReporter struct {
	mu        sync.Mutex
	outcomes  []domain.CycleRecord
	trades    []domain.TradeReceipt
	estimates []domain.Verdict
	chain     *mockChain
}

func (m *mockReporter) Prices(domain.CycleRecord)  {}
func (m *mockReporter) Direction(domain.Direction) {}

func (m *mockReporter) Estimate(v domain.Verdict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estimates = append(m.estimates, v)
}

func (m *mockReporter) Trade(r domain.TradeReceipt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, r)
}

func (m *mockReporter) Outcome(rec domain.CycleRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, rec)
	if m.chain != nil {
		m.chain.active.Add(-1)
	}
}

type mockStore struct {
	mu    sync.Mutex
	saved []domain.CycleRecord
}

func (m *mockStore) SaveCycle(_ context.Context, rec domain.CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, rec)
	return nil
}

func (m *mockStore) RecentCycles(context.Context, int) ([]domain.CycleRecord, error) {
	return nil, nil
}

func (m *mockStore) Stats(context.Context, time.Time, time.Time) (domain.CycleStats, error) {
	return domain.CycleStats{}, nil
}

func (m *mockStore) Close() error { return nil }

type subscribeFunc func(ctx context.Context, pool domain.PoolHandle, out chan<- domain.SwapNotification) error

// mockSource plays one scripted subscription per SubscribeSwaps call and
// venue. Once a venue's script runs out, the subscription blocks until ctx
// ends.
type mockSource struct {
	mu    sync.Mutex
	subs  map[domain.VenueKind][]subscribeFunc
	calls map[domain.VenueKind]int
}

func newSource(subs map[domain.VenueKind][]subscribeFunc) *mockSource {
	return &mockSource{subs: subs, calls: map[domain.VenueKind]int{}}
}

func (m *mockSource) SubscribeSwaps(ctx context.Context, pool domain.PoolHandle, out chan<- domain.SwapNotification) error {
	m.mu.Lock()
	n := m.calls[pool.Kind]
	m.calls[pool.Kind]++
	script := m.subs[pool.Kind]
	m.mu.Unlock()

	if n < len(script) {
		return script[n](ctx, pool, out)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockSource) callsFor(kind domain.VenueKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

// emitEvery delivers a swap notification every d until ctx ends.
func emitEvery(d time.Duration) subscribeFunc {
	return func(ctx context.Context, pool domain.PoolHandle, out chan<- domain.SwapNotification) error {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				select {
				case out <- domain.SwapNotification{Venue: pool.Kind, BlockNumber: 42}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// dropAfter stays subscribed for d and then fails with err.
func dropAfter(d time.Duration, err error) subscribeFunc {
	return func(ctx context.Context, _ domain.PoolHandle, _ chan<- domain.SwapNotification) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return err
		}
	}
}

// refuse fails before any log is delivered.
func refuse(err error) subscribeFunc {
	return func(context.Context, domain.PoolHandle, chan<- domain.SwapNotification) error {
		return fmt.Errorf("%w: %w", domain.ErrSubscribe, err)
	}
}

// --- harness ---

type harness struct {
	conc, classic *mockVenue
	chain         *mockChain
	settlement    *mockSettlement
	reporter      *mockReporter
	store         *mockStore
	coord         *engine.Coordinator
}

type harnessOpts struct {
	live        bool
	gasLimit    uint64
	gasPriceWei *big.Int
	threshold   string
	resubscribe time.Duration
}

func newHarness(conc, classic *mockVenue, opts harnessOpts) *harness {
	if opts.threshold == "" {
		opts.threshold = "2"
	}
	h := &harness{
		conc:       conc,
		classic:    classic,
		chain:      newChain(),
		settlement: &mockSettlement{receipt: domain.SettlementReceipt{Success: true, BlockNumber: 43, GasUsed: 210_000}},
		store:      &mockStore{},
	}
	h.reporter = &mockReporter{chain: h.chain}

	venues := engine.Venues{Concentrated: conc, Classic: classic}
	est := engine.NewEstimator(venues, engine.EstimatorConfig{GasLimit: opts.gasLimit, GasPriceWei: opts.gasPriceWei})
	exec := engine.NewExecutor(h.chain, h.settlement, engine.ExecutorConfig{
		Live:   opts.live,
		Asset0: base,
		Asset1: target,
	})
	h.coord = engine.New(venues, h.chain, est, exec, h.reporter, h.store, engine.Config{
		Threshold:          decimalFromString(opts.threshold),
		ResubscribeBackoff: opts.resubscribe,
	})
	return h
}

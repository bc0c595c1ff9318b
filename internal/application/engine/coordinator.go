package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/alejandrodnm/venuearb/internal/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	inboundBuffer             = 64
	defaultResubscribeBackoff = 5 * time.Second
)

// Config holds the decision parameters of the coordinator.
type Config struct {
	// Threshold is the minimum absolute divergence, in percent.
	Threshold decimal.Decimal

	// ResubscribeBackoff is the pause before re-opening a dropped swap
	// subscription.
	ResubscribeBackoff time.Duration
}

// Coordinator is the opportunity state machine. Both venues' notifications
// feed one inbound channel; a single dispatcher consumes it and runs at most
// one evaluation-or-execution cycle at a time. Notifications that arrive while
// a cycle is in flight are dropped.
type Coordinator struct {
	venues    Venues
	chain     ports.ChainReader
	estimator *Estimator
	executor  *Executor
	reporter  ports.Reporter
	store     ports.CycleStore
	cfg       Config

	guard   *semaphore.Weighted
	state   atomic.Int32
	inbound chan domain.SwapNotification
	cycles  sync.WaitGroup

	dropped      atomic.Uint64
	completed    atomic.Uint64
	resubscribed atomic.Uint64
}

// New creates a coordinator. store may be nil.
func New(
	venues Venues,
	chain ports.ChainReader,
	estimator *Estimator,
	executor *Executor,
	reporter ports.Reporter,
	store ports.CycleStore,
	cfg Config,
) *Coordinator {
	if cfg.ResubscribeBackoff <= 0 {
		cfg.ResubscribeBackoff = defaultResubscribeBackoff
	}
	return &Coordinator{
		venues:    venues,
		chain:     chain,
		estimator: estimator,
		executor:  executor,
		reporter:  reporter,
		store:     store,
		cfg:       cfg,
		guard:     semaphore.NewWeighted(1),
		inbound:   make(chan domain.SwapNotification, inboundBuffer),
	}
}

// State returns the current state machine position.
func (c *Coordinator) State() domain.CycleState {
	return domain.CycleState(c.state.Load())
}

// Dropped returns how many notifications were discarded because a cycle was in flight.
func (c *Coordinator) Dropped() uint64 { return c.dropped.Load() }

// Completed returns how many cycles ran to completion.
func (c *Coordinator) Completed() uint64 { return c.completed.Load() }

// Resubscribed returns how many times a dropped swap subscription was re-opened.
func (c *Coordinator) Resubscribed() uint64 { return c.resubscribed.Load() }

// Notify pushes a notification into the inbound queue without blocking.
func (c *Coordinator) Notify(n domain.SwapNotification) {
	select {
	case c.inbound <- n:
	default:
		c.dropped.Add(1)
		slog.Info("coordinator: inbound queue full, notification dropped",
			"venue", n.Venue, "block", n.BlockNumber, "dropped", c.dropped.Load())
	}
}

// Run subscribes to both venues and dispatches notifications until ctx is
// cancelled. It waits for an in-flight cycle before returning. Only a refused
// first subscription is returned as an error; later drops are re-opened.
func (c *Coordinator) Run(ctx context.Context, source ports.SwapSource) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, v := range []ports.Venue{c.venues.Concentrated, c.venues.Classic} {
		pool := v.Pool()
		g.Go(func() error {
			return c.watch(gctx, source, pool)
		})
	}

	g.Go(func() error {
		c.Dispatch(gctx)
		return nil
	})

	slog.Info("coordinator: waiting for swap events...", "live", c.executor.Live())
	err := g.Wait()
	c.cycles.Wait()
	return err
}

// watch keeps one venue's subscription open until ctx ends. A drop is logged
// and the subscription re-opened after ResubscribeBackoff; the other venue
// and the dispatcher keep running meanwhile.
func (c *Coordinator) watch(ctx context.Context, source ports.SwapSource, pool domain.PoolHandle) error {
	for attempt := 0; ; attempt++ {
		err := source.SubscribeSwaps(ctx, pool, c.inbound)
		if ctx.Err() != nil {
			return nil
		}
		if attempt == 0 && errors.Is(err, domain.ErrSubscribe) {
			return fmt.Errorf("coordinator: subscribe %s: %w", pool.Name, err)
		}

		slog.Warn("coordinator: swap subscription dropped, resubscribing",
			"venue", pool.Name,
			"err", err,
			"backoff", c.cfg.ResubscribeBackoff,
		)
		timer := time.NewTimer(c.cfg.ResubscribeBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		c.resubscribed.Add(1)
	}
}

// Dispatch consumes the inbound queue until ctx is cancelled, then waits for
// the in-flight cycle.
func (c *Coordinator) Dispatch(ctx context.Context) {
	defer c.cycles.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-c.inbound:
			if !c.guard.TryAcquire(1) {
				c.dropped.Add(1)
				slog.Info("coordinator: cycle in flight, notification dropped",
					"venue", n.Venue, "block", n.BlockNumber, "dropped", c.dropped.Load())
				continue
			}
			c.cycles.Add(1)
			go func() {
				defer c.cycles.Done()
				defer c.guard.Release(1)
				c.cycle(context.WithoutCancel(ctx), n)
			}()
		}
	}
}

// Evaluate runs one cycle synchronously. It returns domain.ErrGuardBusy if a
// cycle is already in flight.
func (c *Coordinator) Evaluate(ctx context.Context, trigger domain.SwapNotification) (domain.CycleRecord, error) {
	if !c.guard.TryAcquire(1) {
		return domain.CycleRecord{}, domain.ErrGuardBusy
	}
	defer c.guard.Release(1)
	return c.cycle(ctx, trigger), nil
}

// cycle runs Evaluating → (Executing) → Idle. The caller holds the guard.
func (c *Coordinator) cycle(ctx context.Context, trigger domain.SwapNotification) (rec domain.CycleRecord) {
	rec = domain.CycleRecord{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}

	c.state.Store(int32(domain.StateEvaluating))
	defer c.state.Store(int32(domain.StateIdle))
	defer c.finish(ctx, &rec)

	slog.Info("coordinator: swap initiated, checking price",
		"venue", c.venues.ByKind(trigger.Venue).Name(),
		"cycle", rec.ID,
	)

	if block, err := c.chain.BlockNumber(ctx); err != nil {
		slog.Warn("coordinator: block number unavailable", "err", err)
	} else {
		rec.BlockNumber = block
	}

	concSnap, classicSnap, err := c.readBoth(ctx)
	if err != nil {
		rec.Outcome = domain.OutcomeReadFailed
		rec.Err = err.Error()
		return rec
	}

	if err := c.compare(&rec, concSnap, classicSnap); err != nil {
		rec.Outcome = domain.OutcomeReadFailed
		rec.Err = err.Error()
		return rec
	}
	c.reporter.Prices(rec)

	rec.Route = domain.ResolveRoute(rec.Divergence, c.cfg.Threshold)
	dir, ok := rec.Route.Direction(domain.KindConcentrated, domain.KindClassic)
	if !ok {
		rec.Outcome = domain.OutcomeNoOpportunity
		return rec
	}
	c.reporter.Direction(dir)

	verdict := c.estimator.Estimate(ctx, dir, concSnap, classicSnap)
	rec.Verdict = &verdict
	c.reporter.Estimate(verdict)
	if !verdict.Profitable {
		rec.Outcome = domain.OutcomeNotProfitable
		return rec
	}

	c.state.Store(int32(domain.StateExecuting))
	receipt, err := c.executor.Execute(ctx, dir, verdict.TradeAmount())
	rec.Receipt = &receipt
	c.reporter.Trade(receipt)
	switch {
	case err != nil:
		rec.Outcome = domain.OutcomeExecutionFailed
		rec.Err = err.Error()
	case receipt.Rehearsal:
		rec.Outcome = domain.OutcomeRehearsed
	default:
		rec.Outcome = domain.OutcomeExecuted
	}
	return rec
}

// readBoth reads fresh reserves from both venues concurrently.
func (c *Coordinator) readBoth(ctx context.Context) (conc, classic domain.ReserveSnapshot, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		conc, err = c.venues.Concentrated.ReadReserves(gctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", c.venues.Concentrated.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		classic, err = c.venues.Classic.ReadReserves(gctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", c.venues.Classic.Name(), err)
		}
		return nil
	})
	err = g.Wait()
	return conc, classic, err
}

// compare fills prices and divergence. Venue A is concentrated, B is classic.
func (c *Coordinator) compare(rec *domain.CycleRecord, conc, classic domain.ReserveSnapshot) error {
	var err error
	if rec.PriceA, err = domain.SpotPrice(conc); err != nil {
		return err
	}
	if rec.PriceB, err = domain.SpotPrice(classic); err != nil {
		return err
	}
	rec.Divergence, err = domain.Divergence(rec.PriceA, rec.PriceB)
	return err
}

func (c *Coordinator) finish(ctx context.Context, rec *domain.CycleRecord) {
	rec.Duration = time.Since(rec.StartedAt)
	c.completed.Add(1)

	switch rec.Outcome {
	case domain.OutcomeReadFailed:
		slog.Warn("coordinator: cycle aborted", "cycle", rec.ID, "err", rec.Err)
	case domain.OutcomeExecutionFailed:
		slog.Error("coordinator: execution failed", "cycle", rec.ID, "err", rec.Err)
	default:
		slog.Info("coordinator: cycle complete",
			"cycle", rec.ID,
			"outcome", rec.Outcome,
			"divergence", rec.Divergence.StringFixed(2),
			"duration", rec.Duration.Round(time.Millisecond),
		)
	}

	c.reporter.Outcome(*rec)

	if c.store != nil {
		if err := c.store.SaveCycle(ctx, *rec); err != nil {
			slog.Warn("coordinator: storage error", "err", err)
		}
	}
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleState is the coordinator's state machine position.
type CycleState int32

const (
	StateIdle CycleState = iota
	StateEvaluating
	StateExecuting
)

func (s CycleState) String() string {
	switch s {
	case StateEvaluating:
		return "evaluating"
	case StateExecuting:
		return "executing"
	default:
		return "idle"
	}
}

// Outcome is how an evaluation cycle ended.
type Outcome string

const (
	OutcomeReadFailed      Outcome = "read_failed"
	OutcomeNoOpportunity   Outcome = "no_opportunity"
	OutcomeNotProfitable   Outcome = "not_profitable"
	OutcomeExecuted        Outcome = "executed"
	OutcomeRehearsed       Outcome = "rehearsed"
	OutcomeExecutionFailed Outcome = "execution_failed"
)

// CycleRecord summarizes one evaluation cycle for reporting and storage.
type CycleRecord struct {
	ID          string
	Trigger     SwapNotification
	BlockNumber uint64
	StartedAt   time.Time
	Duration    time.Duration

	PriceA     decimal.Decimal // concentrated venue
	PriceB     decimal.Decimal // classic venue
	Divergence decimal.Decimal
	Route      Route

	Verdict *Verdict
	Receipt *TradeReceipt

	Outcome Outcome
	Err     string
}

// CycleStats aggregates stored cycles by outcome.
type CycleStats struct {
	Total     int
	ByOutcome map[Outcome]int
	FirstAt   time.Time
	LastAt    time.Time
	// MaxDivergence is the largest absolute divergence seen, in percent.
	MaxDivergence decimal.Decimal
}

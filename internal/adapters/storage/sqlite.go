package storage

// sqlite.go: auditoría de ciclos del coordinator.
//
// Estrategia:
//   - `cycles`: una fila por ciclo de evaluación, termine como termine
//     (read_failed, no_opportunity, not_profitable, executed, ...).
//   - `trades`: una fila por intento de ejecución (live o rehearsal), con los
//     balances antes/después. FK a cycles.
//   - Importes on-chain como TEXT (enteros de 256 bits no caben en INTEGER).
//   - Prune automático al arrancar: ciclos sin trade > 30d. Los trades se
//     conservan siempre.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
    id            TEXT PRIMARY KEY,
    started_at    DATETIME NOT NULL,
    duration_ms   INTEGER  NOT NULL DEFAULT 0,
    trigger_venue TEXT     NOT NULL,
    trigger_tx    TEXT     NOT NULL DEFAULT '',
    block         INTEGER  NOT NULL DEFAULT 0,
    price_a       TEXT     NOT NULL DEFAULT '0',
    price_b       TEXT     NOT NULL DEFAULT '0',
    divergence    TEXT     NOT NULL DEFAULT '0',
    route         TEXT     NOT NULL DEFAULT 'none',
    outcome       TEXT     NOT NULL,
    profitable    INTEGER  NOT NULL DEFAULT 0,
    trial_amount  TEXT,
    amount_in     TEXT,
    amount_out    TEXT,
    gas_cost      TEXT,
    net_after_gas TEXT,
    reason        TEXT     NOT NULL DEFAULT '',
    error         TEXT     NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trades (
    cycle_id              TEXT PRIMARY KEY REFERENCES cycles(id),
    executed_at           DATETIME NOT NULL,
    buy_venue             TEXT     NOT NULL,
    sell_venue            TEXT     NOT NULL,
    amount                TEXT     NOT NULL,
    rehearsal             INTEGER  NOT NULL DEFAULT 0,
    success               INTEGER  NOT NULL DEFAULT 0,
    tx_hash               TEXT     NOT NULL DEFAULT '',
    block                 INTEGER  NOT NULL DEFAULT 0,
    gas_used              INTEGER  NOT NULL DEFAULT 0,
    target                TEXT     NOT NULL,
    target_base_before    TEXT,
    target_base_after     TEXT,
    target_native_before  TEXT,
    target_native_after   TEXT,
    spender               TEXT     NOT NULL,
    spender_base_before   TEXT,
    spender_base_after    TEXT,
    spender_native_before TEXT,
    spender_native_after  TEXT,
    error                 TEXT     NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cycles_at      ON cycles(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_cycles_outcome ON cycles(outcome);
`

// tradeMigrations añade columnas que no existen en schemas anteriores.
var tradeMigrations = []string{
	"ALTER TABLE trades ADD COLUMN target_native_before TEXT",
	"ALTER TABLE trades ADD COLUMN target_native_after TEXT",
	"ALTER TABLE trades ADD COLUMN spender_base_before TEXT",
	"ALTER TABLE trades ADD COLUMN spender_base_after TEXT",
}

const selectCycles = `
		SELECT c.id, c.started_at, c.duration_ms, c.trigger_venue, c.trigger_tx, c.block,
		       c.price_a, c.price_b, c.divergence, c.route, c.outcome, c.profitable,
		       c.trial_amount, c.amount_in, c.amount_out, c.gas_cost, c.net_after_gas,
		       c.reason, c.error,
		       t.executed_at, t.buy_venue, t.sell_venue, t.amount, t.rehearsal, t.success,
		       t.tx_hash, t.block, t.gas_used,
		       t.target, t.target_base_before, t.target_base_after, t.target_native_before, t.target_native_after,
		       t.spender, t.spender_base_before, t.spender_base_after, t.spender_native_before, t.spender_native_after,
		       t.error
		FROM cycles c
		LEFT JOIN trades t ON t.cycle_id = c.id
`

const retentionCycles = 30 * 24 * time.Hour // ciclos sin trade: 30 días

// SQLiteStorage implementa ports.CycleStore usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia ciclos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	for _, stmt := range tradeMigrations {
		db.Exec(stmt) // falla si la columna ya existe
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveCycle persiste el ciclo y, si hubo intento de ejecución, su trade.
func (s *SQLiteStorage) SaveCycle(ctx context.Context, rec domain.CycleRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveCycle: begin tx: %w", err)
	}
	defer tx.Rollback()

	var profitable int
	var trial, amountIn, amountOut, gasCost, netAfter sql.NullString
	var reason string
	if v := rec.Verdict; v != nil {
		if v.Profitable {
			profitable = 1
		}
		trial, amountIn, amountOut = bigText(v.TrialAmount), bigText(v.AmountIn), bigText(v.AmountOut)
		gasCost, netAfter = bigText(v.GasCost), bigText(v.NetAfterGas)
		reason = v.Reason
	}

	triggerTx := ""
	if rec.Trigger.TxHash != (common.Hash{}) {
		triggerTx = rec.Trigger.TxHash.Hex()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cycles
			(id, started_at, duration_ms, trigger_venue, trigger_tx, block,
			 price_a, price_b, divergence, route, outcome, profitable,
			 trial_amount, amount_in, amount_out, gas_cost, net_after_gas, reason, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.StartedAt.UTC(),
		rec.Duration.Milliseconds(),
		rec.Trigger.Venue.String(),
		triggerTx,
		rec.BlockNumber,
		rec.PriceA.String(),
		rec.PriceB.String(),
		rec.Divergence.String(),
		rec.Route.String(),
		string(rec.Outcome),
		profitable,
		trial, amountIn, amountOut, gasCost, netAfter,
		reason,
		rec.Err,
	); err != nil {
		return fmt.Errorf("storage.SaveCycle: insert cycle %s: %w", rec.ID, err)
	}

	if r := rec.Receipt; r != nil {
		if err := insertTrade(ctx, tx, rec.ID, *r); err != nil {
			return fmt.Errorf("storage.SaveCycle: insert trade %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveCycle: commit: %w", err)
	}
	return nil
}

func insertTrade(ctx context.Context, tx *sql.Tx, cycleID string, r domain.TradeReceipt) error {
	txHash := ""
	if r.Settlement.TxHash != (common.Hash{}) {
		txHash = r.Settlement.TxHash.Hex()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trades
			(cycle_id, executed_at, buy_venue, sell_venue, amount, rehearsal, success,
			 tx_hash, block, gas_used,
			 target, target_base_before, target_base_after, target_native_before, target_native_after,
			 spender, spender_base_before, spender_base_after, spender_native_before, spender_native_after,
			 error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cycleID,
		r.ExecutedAt.UTC(),
		r.Direction.Buy.String(),
		r.Direction.Sell.String(),
		bigText(r.Amount),
		boolInt(r.Rehearsal),
		boolInt(r.Success),
		txHash,
		r.Settlement.BlockNumber,
		r.Settlement.GasUsed,
		r.Target.Account.Hex(),
		bigText(r.Target.BaseBefore),
		bigText(r.Target.BaseAfter),
		bigText(r.Target.NativeBefore),
		bigText(r.Target.NativeAfter),
		r.Spender.Account.Hex(),
		bigText(r.Spender.BaseBefore),
		bigText(r.Spender.BaseAfter),
		bigText(r.Spender.NativeBefore),
		bigText(r.Spender.NativeAfter),
		r.Error,
	)
	return err
}

// RecentCycles devuelve los últimos limit ciclos, más recientes primero,
// con su trade si lo hubo.
func (s *SQLiteStorage) RecentCycles(ctx context.Context, limit int) ([]domain.CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectCycles+`
		ORDER BY c.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentCycles: query: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.RecentCycles: scan row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats agrega los ciclos iniciados en [from, to].
func (s *SQLiteStorage) Stats(ctx context.Context, from, to time.Time) (domain.CycleStats, error) {
	stats := domain.CycleStats{ByOutcome: make(map[domain.Outcome]int)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) FROM cycles
		WHERE started_at BETWEEN ? AND ?
		GROUP BY outcome`, from.UTC(), to.UTC())
	if err != nil {
		return stats, fmt.Errorf("storage.Stats: query outcomes: %w", err)
	}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			rows.Close()
			return stats, fmt.Errorf("storage.Stats: scan outcome: %w", err)
		}
		stats.ByOutcome[domain.Outcome(outcome)] = n
		stats.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("storage.Stats: %w", err)
	}
	if stats.Total == 0 {
		return stats, nil
	}

	// MIN/MAX pierden el tipo DATETIME de la columna; se ordena en su lugar.
	if err := s.db.QueryRowContext(ctx, `
		SELECT started_at FROM cycles WHERE started_at BETWEEN ? AND ?
		ORDER BY started_at ASC LIMIT 1`, from.UTC(), to.UTC(),
	).Scan(&stats.FirstAt); err != nil {
		return stats, fmt.Errorf("storage.Stats: first: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT started_at FROM cycles WHERE started_at BETWEEN ? AND ?
		ORDER BY started_at DESC LIMIT 1`, from.UTC(), to.UTC(),
	).Scan(&stats.LastAt); err != nil {
		return stats, fmt.Errorf("storage.Stats: last: %w", err)
	}

	// Divergencias guardadas como TEXT: el máximo se calcula en Go, en decimal.
	divs, err := s.db.QueryContext(ctx, `
		SELECT divergence FROM cycles
		WHERE started_at BETWEEN ? AND ? AND outcome != ?`,
		from.UTC(), to.UTC(), string(domain.OutcomeReadFailed))
	if err != nil {
		return stats, fmt.Errorf("storage.Stats: query divergence: %w", err)
	}
	defer divs.Close()
	for divs.Next() {
		var raw string
		if err := divs.Scan(&raw); err != nil {
			return stats, fmt.Errorf("storage.Stats: scan divergence: %w", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		if d.Abs().GreaterThan(stats.MaxDivergence) {
			stats.MaxDivergence = d.Abs()
		}
	}
	return stats, divs.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (domain.CycleRecord, error) {
	var rec domain.CycleRecord
	var durationMs int64
	var triggerVenue, triggerTx, priceA, priceB, divergence, route, outcome, reason string
	var profitable int
	var trial, amountIn, amountOut, gasCost, netAfter sql.NullString

	// columnas de trades: NULL cuando el ciclo no llegó a ejecutar
	var executedAt sql.NullTime
	var buyVenue, sellVenue, amount, txHash, target, spender, tradeErr sql.NullString
	var rehearsal, success, tradeBlock, gasUsed sql.NullInt64
	var targetBase, targetNative, spenderBase, spenderNative [2]sql.NullString

	if err := row.Scan(
		&rec.ID, &rec.StartedAt, &durationMs, &triggerVenue, &triggerTx, &rec.BlockNumber,
		&priceA, &priceB, &divergence, &route, &outcome, &profitable,
		&trial, &amountIn, &amountOut, &gasCost, &netAfter,
		&reason, &rec.Err,
		&executedAt, &buyVenue, &sellVenue, &amount, &rehearsal, &success,
		&txHash, &tradeBlock, &gasUsed,
		&target, &targetBase[0], &targetBase[1], &targetNative[0], &targetNative[1],
		&spender, &spenderBase[0], &spenderBase[1], &spenderNative[0], &spenderNative[1],
		&tradeErr,
	); err != nil {
		return rec, err
	}

	rec.Duration = time.Duration(durationMs) * time.Millisecond
	rec.Outcome = domain.Outcome(outcome)
	rec.Route = domain.ParseRoute(route)
	rec.Trigger.BlockNumber = rec.BlockNumber
	if kind, err := domain.ParseVenueKind(triggerVenue); err == nil {
		rec.Trigger.Venue = kind
	}
	if triggerTx != "" {
		rec.Trigger.TxHash = common.HexToHash(triggerTx)
	}
	rec.PriceA = parseDecimal(priceA)
	rec.PriceB = parseDecimal(priceB)
	rec.Divergence = parseDecimal(divergence)

	dir, _ := rec.Route.Direction(domain.KindConcentrated, domain.KindClassic)
	if amountIn.Valid || reason != "" || profitable == 1 {
		rec.Verdict = &domain.Verdict{
			Direction:   dir,
			Profitable:  profitable == 1,
			TrialAmount: parseBig(trial),
			AmountIn:    parseBig(amountIn),
			AmountOut:   parseBig(amountOut),
			GasCost:     parseBig(gasCost),
			NetAfterGas: parseBig(netAfter),
			Reason:      reason,
		}
		if rec.Verdict.AmountIn != nil && rec.Verdict.AmountOut != nil {
			rec.Verdict.Net = new(big.Int).Sub(rec.Verdict.AmountOut, rec.Verdict.AmountIn)
		}
	}

	if executedAt.Valid {
		tradeDir := dir
		if kind, err := domain.ParseVenueKind(buyVenue.String); err == nil {
			tradeDir.Buy = kind
		}
		if kind, err := domain.ParseVenueKind(sellVenue.String); err == nil {
			tradeDir.Sell = kind
		}
		r := &domain.TradeReceipt{
			Direction:  tradeDir,
			Amount:     parseBig(amount),
			Rehearsal:  rehearsal.Int64 == 1,
			Success:    success.Int64 == 1,
			Error:      tradeErr.String,
			ExecutedAt: executedAt.Time,
			Settlement: domain.SettlementReceipt{
				BlockNumber: uint64(tradeBlock.Int64),
				GasUsed:     uint64(gasUsed.Int64),
				Success:     success.Int64 == 1,
			},
		}
		if txHash.String != "" {
			r.Settlement.TxHash = common.HexToHash(txHash.String)
		}
		r.Target = restoreDelta(target.String, targetBase, targetNative)
		r.Spender = restoreDelta(spender.String, spenderBase, spenderNative)
		rec.Receipt = r
	}

	return rec, nil
}

// restoreDelta reconstruye un BalanceDelta a partir de pares (antes, después).
func restoreDelta(account string, base, native [2]sql.NullString) domain.BalanceDelta {
	d := domain.BalanceDelta{
		Account:      common.HexToAddress(account),
		BaseBefore:   parseBig(base[0]),
		BaseAfter:    parseBig(base[1]),
		NativeBefore: parseBig(native[0]),
		NativeAfter:  parseBig(native[1]),
	}
	if d.BaseBefore != nil && d.BaseAfter != nil {
		d.BaseDelta = new(big.Int).Sub(d.BaseAfter, d.BaseBefore)
	}
	if d.NativeBefore != nil && d.NativeAfter != nil {
		d.NativeSpent = new(big.Int).Sub(d.NativeBefore, d.NativeAfter)
	}
	return d
}

// pruneOld elimina ciclos antiguos que no llegaron a ejecutar, para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionCycles)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cycles WHERE started_at < ? AND id NOT IN (SELECT cycle_id FROM trades)`, cutoff)
	if err != nil {
		slog.Warn("storage: prune failed", "err", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Debug("storage: pruned old cycles", "rows", n)
	}
}

func bigText(v *big.Int) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func parseBig(s sql.NullString) *big.Int {
	if !s.Valid {
		return nil
	}
	v, ok := new(big.Int).SetString(s.String, 10)
	if !ok {
		return nil
	}
	return v
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ErrNotFound se devuelve cuando un ciclo no existe.
var ErrNotFound = errors.New("cycle not found")

// GetCycle devuelve un ciclo por id.
func (s *SQLiteStorage) GetCycle(ctx context.Context, id string) (domain.CycleRecord, error) {
	row := s.db.QueryRowContext(ctx, selectCycles+`
		WHERE c.id = ?`, id)
	rec, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("storage.GetCycle: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("storage.GetCycle: %w", err)
	}
	return rec, nil
}

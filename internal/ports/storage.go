package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/venuearb/internal/domain"
)

// CycleStore persiste el resultado de cada ciclo de evaluación.
type CycleStore interface {
	SaveCycle(ctx context.Context, rec domain.CycleRecord) error

	// RecentCycles devuelve los últimos limit ciclos, más recientes primero.
	RecentCycles(ctx context.Context, limit int) ([]domain.CycleRecord, error)

	// Stats agrega los ciclos iniciados en [from, to].
	Stats(ctx context.Context, from, to time.Time) (domain.CycleStats, error)

	Close() error
}

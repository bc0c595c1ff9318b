package engine

import (
	"math/big"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/alejandrodnm/venuearb/internal/ports"
)

// Venues agrupa los dos venues del par. A es el venue concentrated (numerador
// de la divergencia) y B el classic.
type Venues struct {
	Concentrated ports.Venue
	Classic      ports.Venue
}

// ByKind devuelve el venue de la variante pedida.
func (v Venues) ByKind(k domain.VenueKind) ports.Venue {
	if k == domain.KindConcentrated {
		return v.Concentrated
	}
	return v.Classic
}

// Base es el asset0 configurado, en el que se mide la ganancia.
func (v Venues) Base() domain.Asset {
	return v.Classic.Pool().Asset0
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

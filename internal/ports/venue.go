package ports

import (
	"context"
	"math/big"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Venue es la capacidad de lectura y quoting de un pool. Hay una variante por
// VenueKind, elegida una sola vez al construir el handle.
type Venue interface {
	Kind() domain.VenueKind
	Name() string
	Pool() domain.PoolHandle

	// ReadReserves lee reservas frescas en el orden asset0/asset1 configurado.
	ReadReserves(ctx context.Context) (domain.ReserveSnapshot, error)

	// QuoteIn devuelve cuánto de path[0] hace falta para recibir amountOut de path[1].
	QuoteIn(ctx context.Context, amountOut *big.Int, path [2]common.Address) (*big.Int, error)

	// QuoteOut devuelve cuánto de path[1] se recibe por amountIn de path[0].
	QuoteOut(ctx context.Context, amountIn *big.Int, path [2]common.Address) (*big.Int, error)
}

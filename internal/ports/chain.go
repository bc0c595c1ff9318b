package ports

import (
	"context"
	"math/big"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// ChainReader expone las lecturas de cuenta y de bloque que necesita el engine.
type ChainReader interface {
	// BlockNumber es solo diagnóstico.
	BlockNumber(ctx context.Context) (uint64, error)

	// BalanceOf devuelve el balance ERC-20 de owner.
	BalanceOf(ctx context.Context, asset, owner common.Address) (*big.Int, error)

	// NativeBalance devuelve el balance del gas asset de owner.
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
}

// SwapSource entrega notificaciones de swap de un pool.
type SwapSource interface {
	// SubscribeSwaps envía una notificación a out por cada swap del pool hasta
	// que ctx se cancele o el transporte falle. Bloquea; el error final se
	// devuelve al salir.
	SubscribeSwaps(ctx context.Context, pool domain.PoolHandle, out chan<- domain.SwapNotification) error
}

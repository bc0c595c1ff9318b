package ports

import (
	"context"
	"math/big"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Settlement invoca el contrato que ejecuta el round trip atómico
// (flash loan, swap en ambos venues, repago).
type Settlement interface {
	// ExecuteTrade envía la transacción y espera su recibo. Un revert devuelve
	// un recibo con Success=false y un error que envuelve domain.ErrTradeReverted.
	ExecuteTrade(ctx context.Context, startOnConcentrated bool, asset0, asset1 common.Address, amount *big.Int) (domain.SettlementReceipt, error)

	// Spender es la cuenta que firma y paga el gas.
	Spender() common.Address
}

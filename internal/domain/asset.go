package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Asset es un token ERC-20 resuelto al arrancar. Inmutable.
type Asset struct {
	Address  common.Address
	Symbol   string
	Name     string
	Decimals uint8
}

func (a Asset) String() string {
	if a.Symbol == "" {
		return a.Address.Hex()
	}
	return a.Symbol
}

// VenueKind discrimina el protocolo de lectura de reservas y de quoting.
type VenueKind int

const (
	KindClassic      VenueKind = iota // constant-product (V2)
	KindConcentrated                  // concentrated liquidity (V3)
)

func (k VenueKind) String() string {
	switch k {
	case KindClassic:
		return "classic"
	case KindConcentrated:
		return "concentrated"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseVenueKind es la inversa de VenueKind.String.
func ParseVenueKind(s string) (VenueKind, error) {
	switch s {
	case "classic":
		return KindClassic, nil
	case "concentrated":
		return KindConcentrated, nil
	default:
		return 0, fmt.Errorf("unknown venue kind %q", s)
	}
}

// PoolHandle referencia el pool de un venue para el par configurado.
//
// Asset0/Asset1 siguen el orden configurado (asset0 = activo base con el que se
// arbitra). Flipped indica que el token0() nativo del pool es Asset1, y las
// lecturas deben invertirse para respetar el orden configurado.
type PoolHandle struct {
	Kind    VenueKind
	Name    string // etiqueta para mostrar, p.ej. "PancakeSwap V2"
	Address common.Address
	Fee     uint32 // fee tier (solo concentrated), en centésimas de bip
	Asset0  Asset
	Asset1  Asset
	Flipped bool
}

// Path devuelve el path de swap asset0 → asset1.
func (p PoolHandle) Path() [2]common.Address {
	return [2]common.Address{p.Asset0.Address, p.Asset1.Address}
}

// ReversePath devuelve el path asset1 → asset0.
func (p PoolHandle) ReversePath() [2]common.Address {
	return [2]common.Address{p.Asset1.Address, p.Asset0.Address}
}

// SwapNotification marks that a swap happened on a pool. The payload is
// diagnostic only; every cycle re-reads both venues.
type SwapNotification struct {
	Venue       VenueKind
	Pool        common.Address
	BlockNumber uint64
	TxHash      common.Hash
}

package ports

import "github.com/alejandrodnm/venuearb/internal/domain"

// Reporter presenta al usuario cada paso y el resultado de cada ciclo.
type Reporter interface {
	// Prices muestra los precios de ambos venues y la divergencia.
	Prices(rec domain.CycleRecord)

	// Direction muestra la dirección resuelta.
	Direction(dir domain.Direction)

	// Estimate muestra la simulación del round trip.
	Estimate(v domain.Verdict)

	// Trade muestra los balances antes/después de la ejecución.
	Trade(r domain.TradeReceipt)

	// Outcome cierra el ciclo con una línea de resultado.
	Outcome(rec domain.CycleRecord)
}

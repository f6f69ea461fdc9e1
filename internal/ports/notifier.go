package ports

import (
	"github.com/alejandrodnm/polyrotate/internal/domain"
)

// Notifier presenta el resultado de cada ciclo al usuario.
type Notifier interface {
	// PrintDecision muestra compras, rotaciones y rechazos del ciclo junto con
	// el estado del portfolio.
	PrintDecision(rec *domain.DecisionRecord, state *domain.RuntimeState)
}

package ports

import (
	"context"

	"github.com/alejandrodnm/polyrotate/internal/domain"
)

// StateStore persiste el RuntimeState y el historial de decisiones.
type StateStore interface {
	// SaveState reemplaza el documento persistido y agrega al trade log las
	// filas nuevas.
	SaveState(ctx context.Context, state *domain.RuntimeState) error

	// LoadState devuelve el último estado guardado.
	LoadState(ctx context.Context) (*domain.RuntimeState, error)

	// SaveDecision guarda el DecisionRecord de un ciclo.
	SaveDecision(ctx context.Context, rec *domain.DecisionRecord) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

// StateSyncer replica el estado a una base remota. Los fallos no detienen el loop.
type StateSyncer interface {
	PushState(ctx context.Context, state *domain.RuntimeState) error
}

// DecisionPublisher difunde la última decisión a consumidores externos (dashboards).
type DecisionPublisher interface {
	Publish(ctx context.Context, rec *domain.DecisionRecord, state *domain.RuntimeState) error
}

package ports

import (
	"context"

	"github.com/alejandrodnm/polyrotate/internal/domain"
)

// QuoteProvider obtiene el snapshot de un outcome trackeado.
type QuoteProvider interface {
	// FetchQuote devuelve metadata del mercado (pregunta, evento padre, fecha de
	// resolución, volumen) y el orderbook del token del outcome pedido.
	FetchQuote(ctx context.Context, marketID, outcome string) (domain.Quote, error)
}

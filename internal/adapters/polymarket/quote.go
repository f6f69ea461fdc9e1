package polymarket

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polyrotate/internal/domain"
	"github.com/alejandrodnm/polyrotate/internal/ports"
)

var _ ports.QuoteProvider = (*Client)(nil)

// FetchQuote resuelve la metadata del mercado en Gamma, localiza el token del
// outcome y trae su orderbook del CLOB.
func (c *Client) FetchQuote(ctx context.Context, marketID, outcome string) (domain.Quote, error) {
	gm, err := c.fetchMarket(ctx, marketID)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("polymarket.FetchQuote %s: %w", marketID, err)
	}
	if len(gm.Outcomes) == 0 || len(gm.Outcomes) != len(gm.ClobTokenIDs) {
		return domain.Quote{}, fmt.Errorf("polymarket.FetchQuote %s: metadata missing outcome/token information", marketID)
	}
	idx, ok := outcomeIndex(gm, outcome)
	if !ok {
		return domain.Quote{}, fmt.Errorf("polymarket.FetchQuote %s: outcome %q not found (have %v)", marketID, outcome, []string(gm.Outcomes))
	}

	book, err := c.FetchOrderBook(ctx, gm.ClobTokenIDs[idx])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("polymarket.FetchQuote %s: %w", marketID, err)
	}
	return mapQuote(gm, idx, book), nil
}

package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/polyrotate/internal/domain"
)

const bookPath = "/book"

// FetchOrderBook obtiene el orderbook de un token del CLOB, con asks de menor
// a mayor y bids de mayor a menor.
func (c *Client) FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	u := fmt.Sprintf("%s%s?token_id=%s", c.clobBase, bookPath, url.QueryEscape(tokenID))

	var resp bookResponse
	if err := c.get(ctx, c.bookLimiter, u, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("clob.FetchOrderBook: %w", err)
	}

	ob := mapOrderBook(tokenID, resp)
	slog.Debug("order book fetched",
		"token", tokenID,
		"bids", len(ob.Bids),
		"asks", len(ob.Asks),
	)
	return ob, nil
}

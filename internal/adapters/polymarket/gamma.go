package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const gammaMarketsPath = "/markets"

// MarketInfo es la vista resumida de un mercado de Gamma para el CLI.
type MarketInfo struct {
	ID       string
	Question string
	EndDate  string
	Outcomes []string
	Closed   bool
}

// ExtractSlug devuelve el último segmento de una URL de Polymarket, o el
// identificador tal cual si no es una URL.
func ExtractSlug(value string) (string, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return "", errors.New("identifier cannot be blank")
	}
	u, err := url.Parse(cleaned)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return cleaned, nil
	}
	var last string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			last = seg
		}
	}
	if last == "" {
		return "", fmt.Errorf("no identifier in URL %q", value)
	}
	return last, nil
}

// ResolveMarket busca un mercado por slug, id numérico o URL.
func (c *Client) ResolveMarket(ctx context.Context, identifier string) (MarketInfo, error) {
	slug, err := ExtractSlug(identifier)
	if err != nil {
		return MarketInfo{}, err
	}
	gm, err := c.fetchMarket(ctx, slug)
	if err != nil {
		return MarketInfo{}, fmt.Errorf("gamma.ResolveMarket: %w", err)
	}
	return MarketInfo{
		ID:       marketID(gm),
		Question: questionOf(gm),
		EndDate:  gm.EndDate,
		Outcomes: gm.Outcomes,
		Closed:   gm.Closed,
	}, nil
}

// fetchMarket obtiene la metadata de un mercado. Numeric ids go to
// /markets/<id>; slugs are searched first and fall back to /markets/<slug>.
func (c *Client) fetchMarket(ctx context.Context, id string) (gammaMarket, error) {
	if isDigits(id) {
		var gm gammaMarket
		if err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaMarketsPath+"/"+id, &gm); err != nil {
			return gammaMarket{}, fmt.Errorf("GET /markets/%s: %w", id, err)
		}
		return gm, nil
	}

	var candidates []gammaMarket
	u := fmt.Sprintf("%s%s?slug=%s", c.gammaBase, gammaMarketsPath, url.QueryEscape(id))
	if err := c.get(ctx, c.gammaLimiter, u, &candidates); err != nil {
		return gammaMarket{}, fmt.Errorf("GET /markets?slug=%s: %w", id, err)
	}
	if len(candidates) > 0 {
		return candidates[0], nil
	}

	var gm gammaMarket
	if err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaMarketsPath+"/"+url.PathEscape(id), &gm); err != nil {
		return gammaMarket{}, fmt.Errorf("GET /markets/%s: %w", id, err)
	}
	return gm, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

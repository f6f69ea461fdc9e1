package domain

// OrderBook representa el libro de órdenes de un outcome.
type OrderBook struct {
	TokenID string      `json:"token_id,omitempty"`
	Bids    []BookEntry `json:"bids"` // ordenados mayor a menor precio
	Asks    []BookEntry `json:"asks"` // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// TopAskValue is the notional resting at the best ask level only.
func (ob OrderBook) TopAskValue() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price * ob.Asks[0].Size
}

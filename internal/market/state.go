package market

// State is a pre-fetched view of the market handed into a scheduling
// cycle. Every field is optional; consumers fall back to the broker or to
// documented conservative defaults when a field is absent.
type State struct {
	// Price is the current reference price, used as an entry hint.
	Price float64

	// BestPrice overrides the order book's own best price when positive.
	BestPrice float64

	// OrderBook is an opaque exchange payload; consumers normalize it.
	OrderBook interface{}
}

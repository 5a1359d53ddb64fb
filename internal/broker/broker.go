package broker

import (
	"context"

	"github.com/tradecraft-labs/execution-engine/internal/orderbook"
)

// Order lifecycle states as the scheduler sees them, independent of any
// one exchange's vocabulary.
const (
	StatusOpen      = "open"
	StatusPartial   = "partial"
	StatusFilled    = "filled"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
	StatusUnknown   = "unknown"
)

// OrderResult is a point-in-time view of a submitted order.
type OrderResult struct {
	OrderID   string
	Status    string
	FilledQty float64
	AvgPrice  float64
}

// Filled reports whether the order has fully executed.
func (r OrderResult) Filled() bool {
	return r.Status == StatusFilled
}

// Terminal reports whether the order can no longer change.
func (r OrderResult) Terminal() bool {
	switch r.Status {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Broker is the minimal exchange surface the execution scheduler needs.
// GetOrderBook returns the exchange's raw depth payload; callers
// normalize it themselves so a broker never has to understand book
// shapes.
type Broker interface {
	GetOrderBook(ctx context.Context, symbol string) (interface{}, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	SubmitLimitOrder(ctx context.Context, symbol string, side orderbook.Side, qty, price float64) (string, error)
	SubmitMarketOrder(ctx context.Context, symbol string, side orderbook.Side, qty float64) (string, error)
	GetOrderStatus(ctx context.Context, symbol, orderID string) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

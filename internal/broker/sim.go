package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/tradecraft-labs/execution-engine/internal/orderbook"
)

// Sim is an in-memory broker for dry runs. Orders fill immediately at
// the submitted price (limit) or the configured market price (market).
// Safe for concurrent use.
type Sim struct {
	mu     sync.Mutex
	price  float64
	book   interface{}
	orders map[string]OrderResult
	seq    int

	// FillLimits controls whether limit orders fill on submission.
	// When false they stay open until cancelled.
	FillLimits bool
}

// NewSim creates a simulated broker at the given market price. book may
// be nil; GetOrderBook then reports no data.
func NewSim(price float64, book interface{}) *Sim {
	return &Sim{
		price:      price,
		book:       book,
		orders:     make(map[string]OrderResult),
		FillLimits: true,
	}
}

// SetPrice updates the simulated market price.
func (s *Sim) SetPrice(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = price
}

// SetOrderBook updates the simulated depth payload.
func (s *Sim) SetOrderBook(book interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.book = book
}

func (s *Sim) GetOrderBook(ctx context.Context, symbol string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.book == nil {
		return nil, fmt.Errorf("no order book for %s", symbol)
	}
	return s.book, nil
}

func (s *Sim) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.price <= 0 {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return s.price, nil
}

func (s *Sim) SubmitLimitOrder(ctx context.Context, symbol string, side orderbook.Side, qty, price float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID()
	res := OrderResult{OrderID: id, Status: StatusOpen}
	if s.FillLimits {
		res.Status = StatusFilled
		res.FilledQty = qty
		res.AvgPrice = price
	}
	s.orders[id] = res
	return id, nil
}

func (s *Sim) SubmitMarketOrder(ctx context.Context, symbol string, side orderbook.Side, qty float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID()
	s.orders[id] = OrderResult{
		OrderID:   id,
		Status:    StatusFilled,
		FilledQty: qty,
		AvgPrice:  s.price,
	}
	return id, nil
}

func (s *Sim) GetOrderStatus(ctx context.Context, symbol, orderID string) (OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.orders[orderID]
	if !ok {
		return OrderResult{OrderID: orderID, Status: StatusUnknown}, nil
	}
	return res, nil
}

func (s *Sim) CancelOrder(ctx context.Context, symbol, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("unknown order %s", orderID)
	}
	if !res.Terminal() {
		res.Status = StatusCancelled
		s.orders[orderID] = res
	}
	return nil
}

func (s *Sim) nextID() string {
	s.seq++
	return fmt.Sprintf("sim-%d", s.seq)
}

package twap

import (
	"context"
	"time"

	"github.com/tradecraft-labs/execution-engine/internal/broker"
	"github.com/tradecraft-labs/execution-engine/internal/config"
	"github.com/tradecraft-labs/execution-engine/internal/logger"
	"github.com/tradecraft-labs/execution-engine/internal/market"
	"github.com/tradecraft-labs/execution-engine/internal/orderbook"
	"github.com/tradecraft-labs/execution-engine/internal/portfolio"
)

// SliceStatus is the outcome of one child slice.
type SliceStatus string

const (
	StatusSimulated       SliceStatus = "simulated"
	StatusSubmitted       SliceStatus = "submitted"
	StatusFailed          SliceStatus = "failed"
	StatusSkippedTooSmall SliceStatus = "skipped_too_small"
)

// ReasonNoDepthInfo marks a slice halved because no depth estimate was
// available.
const ReasonNoDepthInfo = "no_depth_info_reduced_50pct"

// SliceRecord is the ledger entry for one child slice.
type SliceRecord struct {
	Slice     int         `json:"slice"`
	Status    SliceStatus `json:"status"`
	Requested float64     `json:"requested"`
	Actual    float64     `json:"actual"`
	Price     float64     `json:"price,omitempty"`
	Units     float64     `json:"units,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Summary is the final report of one TWAP run.
type Summary struct {
	OrderID           string        `json:"order_id"`
	Symbol            string        `json:"symbol"`
	RequestedNotional float64       `json:"requested_notional"`
	ExecutedNotional  float64       `json:"executed_notional"`
	RemainingNotional float64       `json:"remaining_notional"`
	SlicesPlanned     int           `json:"slices_planned"`
	SlicesExecuted    int           `json:"slices_executed"`
	Slices            []SliceRecord `json:"slices"`
	Duration          time.Duration `json:"duration"`
}

// ExecutionStore persists child slice executions for traceability. A nil
// store disables recording.
type ExecutionStore interface {
	SaveSliceExecution(orderID string, rec SliceRecord) error
}

// Scheduler splits a parent order into equal time slices and executes
// them passively, capping each slice by available depth under the
// slippage bound. With no depth estimate a slice is halved rather than
// skipped; a slice below the minimum notional stops the whole run.
type Scheduler struct {
	cfg    config.TWAPConfig
	broker broker.Broker
	store  ExecutionStore
	log    *logger.Logger
	dryRun bool
}

// NewScheduler wires the execution scheduler. store and log may be nil.
func NewScheduler(cfg config.TWAPConfig, b broker.Broker, store ExecutionStore, log *logger.Logger, dryRun bool) *Scheduler {
	if cfg.Slices <= 0 {
		cfg.Slices = 1
	}
	return &Scheduler{
		cfg:    cfg,
		broker: b,
		store:  store,
		log:    log,
		dryRun: dryRun,
	}
}

// Execute runs the full TWAP schedule for one parent order. It returns
// the summary even when the run stops early; the error reflects only
// context cancellation.
func (s *Scheduler) Execute(ctx context.Context, order portfolio.Order, mkt *market.State) (Summary, error) {
	start := time.Now()
	side := execSide(order.Side)
	interval := s.cfg.Duration / time.Duration(s.cfg.Slices)

	// Price hint implied by the finalized order, used when no book and no
	// market state carry a better one.
	entryHint := 0.0
	if order.Units > 0 {
		entryHint = order.Notional / order.Units
	}

	if s.log != nil {
		s.log.Trade("twap start order=%s side=%s notional=%.2f slices=%d dur=%s",
			order.OrderID, side, order.Notional, s.cfg.Slices, s.cfg.Duration)
	}

	remaining := order.Notional
	perSlice := order.Notional / float64(s.cfg.Slices)
	var records []SliceRecord

	for i := 0; i < s.cfg.Slices && remaining > 0; i++ {
		sliceNo := i + 1

		planned := perSlice
		if i == s.cfg.Slices-1 {
			planned = remaining
		}
		if planned > remaining {
			planned = remaining
		}

		snap, best := s.marketView(ctx, order.Symbol, side, mkt, entryHint)

		actual, reason := s.depthAdjusted(snap, side, planned, remaining, best)

		if actual < s.cfg.MinSliceNotional {
			rec := SliceRecord{
				Slice:     sliceNo,
				Status:    StatusSkippedTooSmall,
				Requested: planned,
				Reason:    "too_small",
				Timestamp: time.Now().UTC(),
			}
			records = append(records, rec)
			s.record(order.OrderID, rec)
			if s.log != nil {
				s.log.LogSlice(sliceNo, string(StatusSkippedTooSmall), planned, 0, 0, "too_small")
			}
			break
		}

		limitPrice := passivePrice(side, best, s.cfg.LimitOffsetPct)

		var rec SliceRecord
		if s.dryRun {
			rec = s.simulateSlice(sliceNo, side, snap, best, limitPrice, actual, planned)
		} else {
			rec = s.executeSlice(ctx, order.Symbol, sliceNo, side, limitPrice, actual, planned)
		}
		rec.Reason = firstNonEmpty(reason, rec.Reason)
		rec.Timestamp = time.Now().UTC()
		records = append(records, rec)
		s.record(order.OrderID, rec)
		if s.log != nil {
			s.log.LogSlice(sliceNo, string(rec.Status), planned, rec.Actual, rec.Price, rec.Reason)
		}

		if rec.Status != StatusFailed {
			remaining -= rec.Actual
		}
		if remaining <= 0 || remaining < s.cfg.MinSliceNotional {
			break
		}

		if i < s.cfg.Slices-1 && interval > 0 {
			select {
			case <-ctx.Done():
				return s.summarize(order, records, remaining, start), ctx.Err()
			case <-time.After(interval):
			}
		}
	}

	summary := s.summarize(order, records, remaining, start)
	if s.log != nil {
		s.log.Trade("twap complete order=%s executed=%.2f remaining=%.2f",
			order.OrderID, summary.ExecutedNotional, summary.RemainingNotional)
	}
	return summary, nil
}

// marketView resolves the book snapshot and best price for a slice,
// preferring pre-fetched state over a broker fetch and falling back to
// the order's implied entry price.
func (s *Scheduler) marketView(ctx context.Context, symbol string, side orderbook.Side, mkt *market.State, entryHint float64) (orderbook.Snapshot, float64) {
	var raw interface{}
	best := entryHint

	if mkt != nil {
		raw = mkt.OrderBook
		if mkt.BestPrice > 0 {
			best = mkt.BestPrice
		} else if mkt.Price > 0 {
			best = mkt.Price
		}
	}
	if raw == nil && s.broker != nil {
		fetched, err := s.broker.GetOrderBook(ctx, symbol)
		if err != nil {
			if s.log != nil {
				s.log.Warning("order book fetch failed for %s, using price hint: %v", symbol, err)
			}
		} else {
			raw = fetched
		}
	}

	snap := orderbook.Normalize(raw)
	if b, ok := snap.Best(side); ok {
		best = b
	}
	return snap, best
}

// depthAdjusted caps the planned slice notional by what the book can
// absorb under the slippage bound. With no estimate it halves the plan.
func (s *Scheduler) depthAdjusted(snap orderbook.Snapshot, side orderbook.Side, planned, remaining, best float64) (float64, string) {
	if !s.cfg.UseDepthCheck {
		return min2(planned, remaining), ""
	}

	allowed, ok := orderbook.MaxNotionalForSlippage(snap, side, s.cfg.MaxSlippagePct, best)
	if !ok {
		return min2(planned*0.5, remaining), ReasonNoDepthInfo
	}
	return min2(min2(planned, allowed), remaining), ""
}

// simulateSlice records a realistic fill without touching the exchange.
// The fill price carries the estimated book impact when one is
// available, otherwise the passive limit price.
func (s *Scheduler) simulateSlice(sliceNo int, side orderbook.Side, snap orderbook.Snapshot, best, limitPrice, actual, planned float64) SliceRecord {
	price := limitPrice
	if frac, ok := orderbook.EstimateSlippage(snap, side, actual, best); ok {
		if side == orderbook.SideBuy {
			price = best * (1.0 + frac)
		} else {
			price = best * (1.0 - frac)
		}
	}

	units := 0.0
	if price > 0 {
		units = actual / price
	}

	return SliceRecord{
		Slice:     sliceNo,
		Status:    StatusSimulated,
		Requested: planned,
		Actual:    actual,
		Price:     price,
		Units:     units,
	}
}

// executeSlice submits a passive limit order, polls for the fill, and
// falls back to a market order for the unfilled remainder when
// configured.
func (s *Scheduler) executeSlice(ctx context.Context, symbol string, sliceNo int, side orderbook.Side, limitPrice, actual, planned float64) SliceRecord {
	failed := SliceRecord{Slice: sliceNo, Status: StatusFailed, Requested: planned}

	if limitPrice <= 0 {
		failed.Reason = "no_price"
		return failed
	}
	qty := actual / limitPrice

	orderID, err := s.broker.SubmitLimitOrder(ctx, symbol, side, qty, limitPrice)
	if err != nil {
		if s.log != nil {
			s.log.LogError("limit order submit failed", err)
		}
		return failed
	}

	res := s.awaitFill(ctx, symbol, orderID)
	if res.Filled() {
		price := res.AvgPrice
		if price <= 0 {
			price = limitPrice
		}
		return SliceRecord{
			Slice:     sliceNo,
			Status:    StatusSubmitted,
			Requested: planned,
			Actual:    actual,
			Price:     price,
			Units:     res.FilledQty,
		}
	}

	// Not (fully) filled inside the window: cancel what remains and
	// optionally sweep it with a market order.
	if err := s.broker.CancelOrder(ctx, symbol, orderID); err != nil && s.log != nil {
		s.log.LogError("limit order cancel failed", err)
	}

	filledQty := res.FilledQty
	remainderQty := qty - filledQty
	if remainderQty > 0 && s.cfg.MarketFallback {
		marketID, err := s.broker.SubmitMarketOrder(ctx, symbol, side, remainderQty)
		if err != nil {
			if s.log != nil {
				s.log.LogError("market fallback failed", err)
			}
			if filledQty <= 0 {
				return failed
			}
		} else {
			if mres, err := s.broker.GetOrderStatus(ctx, symbol, marketID); err == nil && mres.FilledQty > 0 {
				filledQty += mres.FilledQty
			} else {
				filledQty += remainderQty
			}
		}
	} else if filledQty <= 0 {
		failed.Reason = "unfilled"
		return failed
	}

	price := res.AvgPrice
	if price <= 0 {
		price = limitPrice
	}
	// A partial fill left on the book executes only filledQty; crediting
	// the full slice notional would overstate progress.
	return SliceRecord{
		Slice:     sliceNo,
		Status:    StatusSubmitted,
		Requested: planned,
		Actual:    filledQty * price,
		Price:     price,
		Units:     filledQty,
	}
}

// awaitFill polls the order status until it is terminal or the limit
// timeout elapses, returning the last view either way.
func (s *Scheduler) awaitFill(ctx context.Context, symbol, orderID string) broker.OrderResult {
	poll := s.cfg.LimitTimeout / 8
	if poll < 50*time.Millisecond {
		poll = 50 * time.Millisecond
	}
	if poll > time.Second {
		poll = time.Second
	}

	deadline := time.Now().Add(s.cfg.LimitTimeout)
	last := broker.OrderResult{OrderID: orderID, Status: broker.StatusOpen}
	for {
		res, err := s.broker.GetOrderStatus(ctx, symbol, orderID)
		if err != nil {
			if s.log != nil {
				s.log.LogError("order status poll failed", err)
			}
		} else {
			last = res
			if res.Terminal() {
				return res
			}
		}

		if time.Now().After(deadline) {
			return last
		}
		select {
		case <-ctx.Done():
			return last
		case <-time.After(poll):
		}
	}
}

func (s *Scheduler) record(orderID string, rec SliceRecord) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSliceExecution(orderID, rec); err != nil && s.log != nil {
		s.log.LogError("slice execution write failed", err)
	}
}

func (s *Scheduler) summarize(order portfolio.Order, records []SliceRecord, remaining float64, start time.Time) Summary {
	executed := 0
	var executedNotional float64
	for _, r := range records {
		if r.Status == StatusSkippedTooSmall || r.Status == StatusFailed {
			continue
		}
		executed++
		executedNotional += r.Actual
	}

	return Summary{
		OrderID:           order.OrderID,
		Symbol:            order.Symbol,
		RequestedNotional: order.Notional,
		ExecutedNotional:  executedNotional,
		RemainingNotional: remaining,
		SlicesPlanned:     s.cfg.Slices,
		SlicesExecuted:    executed,
		Slices:            records,
		Duration:          time.Since(start),
	}
}

func execSide(side portfolio.Side) orderbook.Side {
	if side == portfolio.SideShort {
		return orderbook.SideSell
	}
	return orderbook.SideBuy
}

func passivePrice(side orderbook.Side, best, offset float64) float64 {
	if side == orderbook.SideBuy {
		return best * (1.0 + offset)
	}
	return best * (1.0 - offset)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

package orderbook

import "math"

// WeightedFillPrice returns the size-weighted average price of consuming
// `notional` of quote currency from the book, walking levels outward from
// the best. The final consumed level may be partial. If the book does not
// hold enough depth for the requested notional there is no estimate and
// ok is false; callers must fall back, not assume a number.
func WeightedFillPrice(snapshot Snapshot, side Side, notional float64) (avgPrice float64, ok bool) {
	levels := snapshot.Levels(side)
	if len(levels) == 0 || notional <= 0 {
		return 0, false
	}

	remaining := notional
	var sumAmount, sumNotional float64
	for _, lvl := range levels {
		if lvl.Price <= 0 || lvl.Size <= 0 {
			continue
		}
		available := lvl.Notional()
		if available >= remaining {
			amount := remaining / lvl.Price
			sumAmount += amount
			sumNotional += amount * lvl.Price
			remaining = 0
			break
		}
		sumAmount += lvl.Size
		sumNotional += available
		remaining -= available
	}

	if remaining > 0 || sumAmount <= 0 {
		return 0, false
	}
	return sumNotional / sumAmount, true
}

// SlippageFraction reports the deviation of a realized average price from
// the best price. Buys are signed, (avg/best)-1; sells are reported as a
// positive magnitude, |avg-best|/best. The asymmetry is deliberate and
// callers depend on it.
func SlippageFraction(side Side, avgPrice, best float64) float64 {
	if best <= 0 {
		return 0
	}
	if side == SideBuy {
		return avgPrice/best - 1.0
	}
	return math.Abs((avgPrice - best) / best)
}

// EstimateSlippage estimates the slippage fraction of executing `notional`
// against the snapshot. bestHint overrides the book's own best price when
// positive. ok is false when depth is insufficient for an estimate.
func EstimateSlippage(snapshot Snapshot, side Side, notional float64, bestHint float64) (float64, bool) {
	avg, ok := WeightedFillPrice(snapshot, side, notional)
	if !ok {
		return 0, false
	}
	best := bestHint
	if best <= 0 {
		best, ok = snapshot.Best(side)
		if !ok {
			return 0, false
		}
	}
	return SlippageFraction(side, avg, best), true
}

// MaxNotionalForSlippage computes the largest quote notional that can be
// consumed from the book while keeping the size-weighted average fill price
// within maxSlippageFrac of the best price. Levels are absorbed whole until
// absorbing the next one would breach the bound; then the partial amount
// that lands the average exactly on the bound is solved linearly, clamped
// to the level size, and the walk stops. Consuming the entire book without
// breaching returns the total notional (the constraint never binds).
// ok is false only for an empty side of the book.
func MaxNotionalForSlippage(snapshot Snapshot, side Side, maxSlippageFrac float64, bestHint float64) (notional float64, ok bool) {
	levels := snapshot.Levels(side)
	if len(levels) == 0 {
		return 0, false
	}

	best := bestHint
	if best <= 0 {
		best = levels[0].Price
	}
	if best <= 0 {
		return 0, false
	}

	var target float64
	if side == SideBuy {
		target = best * (1.0 + maxSlippageFrac)
	} else {
		target = best * (1.0 - maxSlippageFrac)
	}

	var cumAmount, cumNotional float64
	for _, lvl := range levels {
		if lvl.Price <= 0 || lvl.Size <= 0 {
			continue
		}
		newAmount := cumAmount + lvl.Size
		newNotional := cumNotional + lvl.Notional()
		newAvg := newNotional / newAmount

		if !breaches(side, newAvg, target) {
			cumAmount, cumNotional = newAmount, newNotional
			continue
		}
		// A level priced on the safe side of the target can never push the
		// average past it; absorb it whole and keep walking.
		if (side == SideBuy && lvl.Price <= target) || (side == SideSell && lvl.Price >= target) {
			cumAmount, cumNotional = newAmount, newNotional
			continue
		}

		// Partial amount x keeping (cumNotional + p*x)/(cumAmount + x) at
		// exactly the target price.
		x := (target*cumAmount - cumNotional) / (lvl.Price - target)
		if x <= 0 {
			return cumNotional, true
		}
		if x > lvl.Size {
			x = lvl.Size
		}
		return cumNotional + x*lvl.Price, true
	}

	return cumNotional, true
}

func breaches(side Side, avg, target float64) bool {
	if side == SideBuy {
		return avg > target
	}
	return avg < target
}

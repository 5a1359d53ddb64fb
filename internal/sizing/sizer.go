package sizing

import (
	"github.com/tradecraft-labs/execution-engine/internal/config"
)

// epsilon guards degenerate stop distances; a collapsed stop produces a
// huge notional that the equity cap then bounds, never a division blowup.
const epsilon = 1e-6

// Result is the outcome of sizing one order. A zero-valued Result means
// "skip": the computed order fell below the configured minimum, or an
// input invariant did not hold. It is not an error.
type Result struct {
	Notional      float64 `json:"notional"`
	Units         float64 `json:"units"`
	ActualRiskPct float64 `json:"actual_risk_pct"`
}

// Skip reports whether the result signals a skipped order.
func (r Result) Skip() bool {
	return r.Notional <= 0
}

// Sizer converts a risk budget and stop distance into an order size,
// enforcing the configured minimum and per-order equity caps.
type Sizer struct {
	cfg config.SizingConfig
}

// New creates a Sizer with the given caps.
func New(cfg config.SizingConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// SizeFromRisk sizes an order so that hitting the stop loses riskPct
// percent of equity. The notional is capped at MaxSingleOrderPct of equity
// and results below MinOrderNotional collapse to a zero-size skip.
func (s *Sizer) SizeFromRisk(equity, entry, stop, riskPct float64) Result {
	if equity <= 0 || entry <= 0 || riskPct <= 0 {
		return Result{}
	}

	riskBudget := equity * riskPct / 100.0
	unitRisk := entry - stop
	if unitRisk < epsilon {
		unitRisk = epsilon
	}

	notional := riskBudget / unitRisk * entry
	cap := equity * s.cfg.MaxSingleOrderPct / 100.0
	if notional > cap {
		notional = cap
	}
	if notional < s.cfg.MinOrderNotional {
		return Result{}
	}

	units := notional / entry
	actualRiskPct := (notional * unitRisk / entry) / equity * 100.0

	return Result{
		Notional:      notional,
		Units:         units,
		ActualRiskPct: actualRiskPct,
	}
}

// MinNotional returns the configured minimum order notional.
func (s *Sizer) MinNotional() float64 {
	return s.cfg.MinOrderNotional
}

// Cap names which limit bounded a percent-of-equity value.
type Cap string

const (
	CapNone        Cap = ""
	CapRange       Cap = "range"             // clamped into [0, 100]
	CapSingleOrder Cap = "max_single_order" // clamped to MaxSingleOrderPct
)

// ApplyCaps clamps a percent-of-equity value into [0, 100] and then into
// the single-order cap, reporting which cap fired. The range clamp is
// applied first so an out-of-range request records as a range violation
// even when the single-order cap would also bind.
func (s *Sizer) ApplyCaps(pct float64) (float64, Cap) {
	applied := CapNone
	if pct < 0 {
		pct = 0
		applied = CapRange
	} else if pct > 100 {
		pct = 100
		applied = CapRange
	}
	if pct > s.cfg.MaxSingleOrderPct {
		pct = s.cfg.MaxSingleOrderPct
		if applied == CapNone {
			applied = CapSingleOrder
		}
	}
	return pct, applied
}

package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecraft-labs/execution-engine/internal/config"
)

func newTestSizer() *Sizer {
	return New(config.SizingConfig{
		MaxSingleOrderPct: 20.0,
		MinOrderNotional:  5000,
	})
}

func TestSizeFromRisk_Basic(t *testing.T) {
	s := newTestSizer()

	// Risking 1% of 1,000,000 with a 1% stop distance: budget 10,000,
	// unit risk 1,000 at entry 100,000 -> notional 1,000,000, capped to
	// 20% of equity = 200,000.
	res := s.SizeFromRisk(1_000_000, 100_000, 99_000, 1.0)
	require.False(t, res.Skip())
	assert.InDelta(t, 200_000, res.Notional, 1e-6)
	assert.InDelta(t, 2.0, res.Units, 1e-9)
	// After the cap the realized risk is smaller than requested.
	assert.InDelta(t, 0.2, res.ActualRiskPct, 1e-9)
}

func TestSizeFromRisk_UncappedMatchesRequest(t *testing.T) {
	s := newTestSizer()

	// Wide stop keeps the notional under the cap; actual risk equals the
	// requested risk.
	res := s.SizeFromRisk(1_000_000, 100_000, 90_000, 1.0)
	require.False(t, res.Skip())
	assert.InDelta(t, 100_000, res.Notional, 1e-6)
	assert.InDelta(t, 1.0, res.ActualRiskPct, 1e-9)
}

func TestSizeFromRisk_BelowMinimumSkips(t *testing.T) {
	s := newTestSizer()

	res := s.SizeFromRisk(10_000, 100_000, 90_000, 1.0)
	assert.True(t, res.Skip())
	assert.Zero(t, res.Units)
	assert.Zero(t, res.ActualRiskPct)
}

func TestSizeFromRisk_DegenerateInputsSkip(t *testing.T) {
	s := newTestSizer()

	tests := []struct {
		name    string
		equity  float64
		entry   float64
		stop    float64
		riskPct float64
	}{
		{"zero equity", 0, 100_000, 99_000, 1.0},
		{"negative equity", -1, 100_000, 99_000, 1.0},
		{"zero entry", 1_000_000, 0, 99_000, 1.0},
		{"zero risk", 1_000_000, 100_000, 99_000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.SizeFromRisk(tt.equity, tt.entry, tt.stop, tt.riskPct)
			assert.True(t, res.Skip())
		})
	}
}

func TestSizeFromRisk_CollapsedStopIsBoundedByCap(t *testing.T) {
	s := newTestSizer()

	// Stop equal to entry: unit risk collapses to epsilon, the raw
	// notional explodes, and the equity cap bounds it.
	res := s.SizeFromRisk(1_000_000, 100_000, 100_000, 1.0)
	require.False(t, res.Skip())
	assert.InDelta(t, 200_000, res.Notional, 1e-6)
}

func TestSizeFromRisk_MonotonicInRiskPct(t *testing.T) {
	s := newTestSizer()

	prev := 0.0
	for _, riskPct := range []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0} {
		res := s.SizeFromRisk(10_000_000, 100_000, 99_000, riskPct)
		assert.GreaterOrEqual(t, res.Notional, prev,
			"notional must be non-decreasing in risk pct (riskPct=%v)", riskPct)
		prev = res.Notional
	}

	// And it saturates at the equity cap.
	capped := s.SizeFromRisk(10_000_000, 100_000, 99_000, 50.0)
	assert.InDelta(t, 2_000_000, capped.Notional, 1e-6)
}

func TestApplyCaps(t *testing.T) {
	s := newTestSizer()

	tests := []struct {
		name     string
		pct      float64
		wantPct  float64
		wantCap  Cap
	}{
		{"within caps", 10, 10, CapNone},
		{"negative", -5, 0, CapRange},
		{"above hundred", 150, 20, CapRange},
		{"above single order cap", 50, 20, CapSingleOrder},
		{"exactly at cap", 20, 20, CapNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, applied := s.ApplyCaps(tt.pct)
			assert.Equal(t, tt.wantPct, got)
			assert.Equal(t, tt.wantCap, applied)
		})
	}
}

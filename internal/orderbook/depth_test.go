package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedFillPrice_PartialLastLevel(t *testing.T) {
	snap := Snapshot{
		Asks: []Level{
			{Price: 100, Size: 1},
			{Price: 101, Size: 2},
		},
	}

	// 201 consumes level one fully and exactly one unit of level two.
	avg, ok := WeightedFillPrice(snap, SideBuy, 201)
	require.True(t, ok)
	assert.InDelta(t, 100.5, avg, 1e-9)
}

func TestWeightedFillPrice_InsufficientDepth(t *testing.T) {
	snap := Snapshot{
		Asks: []Level{{Price: 100, Size: 1}},
	}

	_, ok := WeightedFillPrice(snap, SideBuy, 1_000_000)
	assert.False(t, ok, "insufficient depth must yield no estimate, not a number")
}

func TestWeightedFillPrice_EmptyBook(t *testing.T) {
	_, ok := WeightedFillPrice(Snapshot{}, SideBuy, 100)
	assert.False(t, ok)

	_, ok = WeightedFillPrice(Snapshot{}, SideSell, 100)
	assert.False(t, ok)
}

func TestSlippageFraction_Asymmetry(t *testing.T) {
	// Buy slippage is signed relative to best.
	assert.InDelta(t, 0.01, SlippageFraction(SideBuy, 101, 100), 1e-9)
	assert.InDelta(t, -0.01, SlippageFraction(SideBuy, 99, 100), 1e-9)

	// Sell slippage is always reported as a positive magnitude.
	assert.InDelta(t, 0.01, SlippageFraction(SideSell, 99, 100), 1e-9)
	assert.InDelta(t, 0.01, SlippageFraction(SideSell, 101, 100), 1e-9)
}

func TestMaxNotionalForSlippage_PartialInterpolation(t *testing.T) {
	snap := Snapshot{
		Asks: []Level{
			{Price: 100, Size: 1},
			{Price: 101, Size: 2},
			{Price: 105, Size: 10},
		},
	}

	// 0.5% bound from best=100: level one is fully consumed, level two is
	// entered for exactly one unit, level three is never touched.
	notional, ok := MaxNotionalForSlippage(snap, SideBuy, 0.005, 100)
	require.True(t, ok)
	assert.InDelta(t, 201.0, notional, 1e-9)

	// Feeding the result back through the fill model lands the average
	// exactly on the bound.
	avg, ok := WeightedFillPrice(snap, SideBuy, notional)
	require.True(t, ok)
	assert.InDelta(t, 100.5, avg, 1e-9)
}

func TestMaxNotionalForSlippage_ConstraintNeverBinds(t *testing.T) {
	snap := Snapshot{
		Asks: []Level{
			{Price: 100, Size: 1},
			{Price: 100.01, Size: 1},
		},
	}

	notional, ok := MaxNotionalForSlippage(snap, SideBuy, 0.05, 100)
	require.True(t, ok)
	assert.InDelta(t, 200.01, notional, 1e-9)
}

func TestMaxNotionalForSlippage_EmptyBook(t *testing.T) {
	_, ok := MaxNotionalForSlippage(Snapshot{}, SideBuy, 0.005, 100)
	assert.False(t, ok)

	_, ok = MaxNotionalForSlippage(Snapshot{Asks: []Level{{Price: 100, Size: 1}}}, SideSell, 0.005, 100)
	assert.False(t, ok, "sell against a book with no bids has no estimate")
}

func TestMaxNotionalForSlippage_FirstLevelAlreadyPastBound(t *testing.T) {
	// Best hint far below the first ask: nothing can be absorbed within the
	// bound, but the book is not empty so a (zero) notional is returned.
	snap := Snapshot{
		Asks: []Level{{Price: 110, Size: 5}},
	}

	notional, ok := MaxNotionalForSlippage(snap, SideBuy, 0.005, 100)
	require.True(t, ok)
	assert.Equal(t, 0.0, notional)
}

func TestMaxNotionalForSlippage_RoundTripWithinBound(t *testing.T) {
	books := []Snapshot{
		{Asks: []Level{{100, 1}, {101, 2}, {105, 10}}},
		{Asks: []Level{{50000, 0.5}, {50010, 1.2}, {50100, 4}, {51000, 20}}},
		{Bids: []Level{{100, 1}, {99, 2}, {95, 10}}},
		{Bids: []Level{{50000, 0.5}, {49990, 1.2}, {49900, 4}, {49000, 20}}},
	}
	bounds := []float64{0.001, 0.005, 0.02}

	for _, snap := range books {
		side := SideBuy
		if len(snap.Asks) == 0 {
			side = SideSell
		}
		best, _ := snap.Best(side)
		for _, bound := range bounds {
			notional, ok := MaxNotionalForSlippage(snap, side, bound, best)
			require.True(t, ok)
			if notional <= 0 {
				continue
			}
			avg, ok := WeightedFillPrice(snap, side, notional)
			require.True(t, ok)
			slip := SlippageFraction(side, avg, best)
			assert.LessOrEqual(t, slip, bound+1e-9,
				"bound %v book %+v: realized slippage %v", bound, snap, slip)
		}
	}
}

func TestMaxNotionalForSlippage_SellSide(t *testing.T) {
	snap := Snapshot{
		Bids: []Level{
			{Price: 100, Size: 1},
			{Price: 99, Size: 2},
			{Price: 95, Size: 10},
		},
	}

	// 0.5% bound from best=100: target average 99.5. Level one absorbed
	// whole, level two entered partially, level three untouched.
	notional, ok := MaxNotionalForSlippage(snap, SideSell, 0.005, 100)
	require.True(t, ok)

	avg, ok := WeightedFillPrice(snap, SideSell, notional)
	require.True(t, ok)
	assert.InDelta(t, 99.5, avg, 1e-6)
	assert.Less(t, notional, 100.0+2*99.0)
}

func TestEstimateSlippage(t *testing.T) {
	snap := Snapshot{
		Asks: []Level{
			{Price: 100, Size: 1},
			{Price: 101, Size: 2},
		},
	}

	slip, ok := EstimateSlippage(snap, SideBuy, 201, 100)
	require.True(t, ok)
	assert.InDelta(t, 0.005, slip, 1e-9)

	_, ok = EstimateSlippage(snap, SideBuy, 1_000_000, 100)
	assert.False(t, ok)
}

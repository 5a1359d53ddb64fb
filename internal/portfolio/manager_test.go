package portfolio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecraft-labs/execution-engine/internal/config"
	"github.com/tradecraft-labs/execution-engine/internal/market"
	"github.com/tradecraft-labs/execution-engine/internal/risk"
)

type fakeStore struct {
	traces []DecisionTrace
	err    error
}

func (f *fakeStore) SaveDecisionTrace(trace DecisionTrace) error {
	if f.err != nil {
		return f.err
	}
	f.traces = append(f.traces, trace)
	return nil
}

func testPortfolioConfig() config.PortfolioConfig {
	return config.PortfolioConfig{
		AgentWeight:    0.6,
		RuleWeight:     0.2,
		DefaultRiskPct: 1.0,
		DefaultStopPct: 1.0,
	}
}

func testSizingConfig() config.SizingConfig {
	return config.SizingConfig{
		MaxSingleOrderPct: 100.0,
		MinOrderNotional:  5000,
	}
}

func testEngine() *risk.Engine {
	e := risk.NewEngine(config.RiskConfig{
		InitialRiskPct:             1.0,
		MinRiskPct:                 0.05,
		DailyLossLimitPct:          1.0,
		MaxDrawdownLimitPct:        10.0,
		ConsecutiveLossesThreshold: 3,
		ConsecutiveLossMultiplier:  0.5,
		MaxReductionSteps:          5,
		RecoveryEnabled:            true,
		RecoveryConsecWins:         3,
		RecoveryStepFraction:       0.1,
	}, nil)
	e.OnNewDay(100_000_000)
	return e
}

func pct(v float64) *float64 { return &v }

func agentSignal(symbol string, score, confidence float64) Signal {
	return Signal{
		ID:         "agent-" + symbol,
		Source:     SourceAgent,
		Timestamp:  time.Now().UTC(),
		Symbol:     symbol,
		Side:       SideLong,
		Score:      score,
		Confidence: confidence,
	}
}

func TestProposeAndScaleEndToEnd(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(testPortfolioConfig(), testSizingConfig(), testEngine(), store, nil)

	sig := agentSignal("KRW-BTC", 0.8, 0.9)
	sig.SuggestedRiskPct = pct(2.0)
	sig.SuggestedStopPct = pct(1.0)
	m.IngestSignals([]Signal{sig})

	equity := 100_000_000.0
	mkt := &market.State{Price: 50_000_000}

	proposals := m.ProposePositions(equity, mkt)
	require.Len(t, proposals, 1)
	p := proposals[0]

	// Risk budget 2% of 100M over a 1% stop: notional 200M, 4 units at 50M.
	assert.InDelta(t, 200_000_000, p.SuggestedNotional, 1e-3)
	assert.InDelta(t, 4.0, p.Units, 1e-9)

	decisions := m.ApplyRiskEngine(proposals)
	require.Len(t, decisions, 1)
	require.True(t, decisions[0].Allow)
	// Requested 2% against the engine's 1% cap: uniform 0.5 downscale.
	assert.InDelta(t, 0.5, decisions[0].Scale, 1e-9)
	assert.Equal(t, "cap_enforced_current_risk", decisions[0].Reason)

	orders, err := m.FinalizeOrders(equity, []Signal{sig}, proposals, decisions)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.InDelta(t, 2.0, orders[0].Units, 1e-9)
	assert.InDelta(t, 100_000_000, orders[0].Notional, 1e-3)
	assert.Equal(t, SideLong, orders[0].Side)
}

func TestDuplicateSourceSignalsCollapseToRepresentative(t *testing.T) {
	m := NewManager(testPortfolioConfig(), testSizingConfig(), testEngine(), nil, nil)

	weak := Signal{ID: "r1", Source: SourceRule, Symbol: "KRW-BTC", Side: SideLong, Score: 0.9, Confidence: 0.3}
	strong := Signal{ID: "r2", Source: SourceRule, Symbol: "KRW-BTC", Side: SideLong, Score: 0.4, Confidence: 0.8}
	m.IngestSignals([]Signal{weak, strong})

	proposals := m.ProposePositions(100_000_000, &market.State{Price: 50_000_000})
	require.Len(t, proposals, 1)

	// Only the higher-confidence rule signal contributes.
	require.Len(t, proposals[0].Components, 1)
	assert.Equal(t, "r2", proposals[0].Components[0].ID)
	assert.InDelta(t, 0.4, proposals[0].CombinedScore, 1e-9)
}

func TestRepresentativeTieBreaksOnScore(t *testing.T) {
	m := NewManager(testPortfolioConfig(), testSizingConfig(), testEngine(), nil, nil)

	a := Signal{ID: "r1", Source: SourceRule, Symbol: "KRW-BTC", Side: SideLong, Score: 0.2, Confidence: 0.5}
	b := Signal{ID: "r2", Source: SourceRule, Symbol: "KRW-BTC", Side: SideLong, Score: 0.7, Confidence: 0.5}
	m.IngestSignals([]Signal{a, b})

	proposals := m.ProposePositions(100_000_000, &market.State{Price: 50_000_000})
	require.Len(t, proposals, 1)
	assert.Equal(t, "r2", proposals[0].Components[0].ID)
}

func TestCombinedScoreIsWeightedAverage(t *testing.T) {
	m := NewManager(testPortfolioConfig(), testSizingConfig(), testEngine(), nil, nil)

	agent := agentSignal("KRW-BTC", 1.0, 0.9)
	rule := Signal{ID: "r1", Source: SourceRule, Symbol: "KRW-BTC", Side: SideLong, Score: 0.5, Confidence: 0.5}
	m.IngestSignals([]Signal{agent, rule})

	proposals := m.ProposePositions(100_000_000, &market.State{Price: 50_000_000})
	require.Len(t, proposals, 1)

	// (1.0*0.6 + 0.5*0.2) / 0.8
	assert.InDelta(t, 0.875, proposals[0].CombinedScore, 1e-9)
}

func TestZeroTotalWeightYieldsNoProposal(t *testing.T) {
	cfg := testPortfolioConfig()
	cfg.AgentWeight = 0
	cfg.RuleWeight = 0
	m := NewManager(cfg, testSizingConfig(), testEngine(), nil, nil)

	m.IngestSignals([]Signal{agentSignal("KRW-BTC", 0.8, 0.9)})
	proposals := m.ProposePositions(100_000_000, &market.State{Price: 50_000_000})
	assert.Empty(t, proposals)
}

func TestOnePositionPerSymbol(t *testing.T) {
	m := NewManager(testPortfolioConfig(), testSizingConfig(), testEngine(), nil, nil)

	m.IngestSignals([]Signal{
		agentSignal("KRW-BTC", 0.8, 0.9),
		agentSignal("KRW-ETH", 0.6, 0.7),
		{ID: "r1", Source: SourceRule, Symbol: "KRW-BTC", Side: SideLong, Score: 0.4, Confidence: 0.5},
	})

	proposals := m.ProposePositions(100_000_000, &market.State{Price: 50_000_000})
	require.Len(t, proposals, 2)
	// Deterministic symbol ordering.
	assert.Equal(t, "KRW-BTC", proposals[0].Symbol)
	assert.Equal(t, "KRW-ETH", proposals[1].Symbol)
}

func TestDefaultsApplyWhenSignalsOmitRiskAndStop(t *testing.T) {
	m := NewManager(testPortfolioConfig(), testSizingConfig(), testEngine(), nil, nil)

	m.IngestSignals([]Signal{agentSignal("KRW-BTC", 0.8, 0.9)})
	proposals := m.ProposePositions(100_000_000, &market.State{Price: 50_000_000})
	require.Len(t, proposals, 1)

	assert.InDelta(t, 1.0, proposals[0].SuggestedRiskPct, 1e-9)
	assert.InDelta(t, 1.0, proposals[0].SuggestedStopPct, 1e-9)
	// 1% budget over a 1% stop: notional equals equity.
	assert.InDelta(t, 100_000_000, proposals[0].SuggestedNotional, 1e-3)
}

func TestEntryPriceFallsBackToSignalMeta(t *testing.T) {
	m := NewManager(testPortfolioConfig(), testSizingConfig(), testEngine(), nil, nil)

	sig := agentSignal("KRW-BTC", 0.8, 0.9)
	sig.Meta = map[string]interface{}{"entry_price": 50_000_000.0}
	m.IngestSignals([]Signal{sig})

	// No market state: the signal's embedded entry price sizes the units.
	// 1% budget over a 1% stop on 100M equity is a 100M notional, 2 units.
	proposals := m.ProposePositions(100_000_000, nil)
	require.Len(t, proposals, 1)
	assert.InDelta(t, 50_000_000, proposals[0].EntryPriceHint, 1e-3)
	assert.InDelta(t, 2.0, proposals[0].Units, 1e-9)
}

func TestEntryPriceDefaultsToOneWithoutAnyHint(t *testing.T) {
	m := NewManager(testPortfolioConfig(), testSizingConfig(), testEngine(), nil, nil)

	m.IngestSignals([]Signal{agentSignal("KRW-BTC", 0.8, 0.9)})
	proposals := m.ProposePositions(100_000_000, nil)
	require.Len(t, proposals, 1)

	// Degenerate case: units track notional and the hint records the 1.0
	// actually used, so later unit recomputes stay consistent.
	assert.InDelta(t, 1.0, proposals[0].EntryPriceHint, 1e-9)
	assert.InDelta(t, proposals[0].SuggestedNotional, proposals[0].Units, 1e-6)
}

func TestBlockedDayVetoesAllProposals(t *testing.T) {
	engine := testEngine()
	engine.RecordTradeResult(-2_000_000, 98_000_000, time.Now().UTC())

	store := &fakeStore{}
	m := NewManager(testPortfolioConfig(), testSizingConfig(), engine, store, nil)
	m.IngestSignals([]Signal{agentSignal("KRW-BTC", 0.8, 0.9)})

	proposals := m.ProposePositions(100_000_000, &market.State{Price: 50_000_000})
	decisions := m.ApplyRiskEngine(proposals)
	require.Len(t, decisions, 1)
	assert.False(t, decisions[0].Allow)
	assert.Equal(t, "daily_loss_blocked", decisions[0].Reason)

	orders, err := m.FinalizeOrders(100_000_000, nil, proposals, decisions)
	require.NoError(t, err)
	assert.Empty(t, orders)

	// The audit trace is still written for the empty cycle.
	require.Len(t, store.traces, 1)
	assert.Empty(t, store.traces[0].Orders)
	assert.Len(t, store.traces[0].Decisions, 1)
}

func TestTraceFailureSurfacesButDoesNotBlockOrders(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	m := NewManager(testPortfolioConfig(), testSizingConfig(), testEngine(), store, nil)

	sig := agentSignal("KRW-BTC", 0.8, 0.9)
	m.IngestSignals([]Signal{sig})

	proposals := m.ProposePositions(100_000_000, &market.State{Price: 50_000_000})
	decisions := m.ApplyRiskEngine(proposals)
	orders, err := m.FinalizeOrders(100_000_000, []Signal{sig}, proposals, decisions)

	require.Error(t, err)
	assert.Len(t, orders, 1, "orders are finalized despite the trace failure")
}

func TestFinalizeAppliesSingleOrderCap(t *testing.T) {
	sizingCfg := testSizingConfig()
	sizingCfg.MaxSingleOrderPct = 20.0
	m := NewManager(testPortfolioConfig(), sizingCfg, testEngine(), nil, nil)

	sig := agentSignal("KRW-BTC", 0.8, 0.9)
	m.IngestSignals([]Signal{sig})

	equity := 100_000_000.0
	proposals := m.ProposePositions(equity, &market.State{Price: 50_000_000})
	decisions := m.ApplyRiskEngine(proposals)
	orders, err := m.FinalizeOrders(equity, []Signal{sig}, proposals, decisions)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	// Uncapped notional would be 100M (100% of equity); the single-order
	// cap bounds it to 20%.
	assert.InDelta(t, 20_000_000, orders[0].Notional, 1e-3)
	assert.InDelta(t, 0.4, orders[0].Units, 1e-9)
	assert.Equal(t, "max_single_order", orders[0].Meta["cap"])
}

func TestFinalizeSkipsBelowMinNotional(t *testing.T) {
	sizingCfg := testSizingConfig()
	sizingCfg.MinOrderNotional = 5_000_000
	m := NewManager(testPortfolioConfig(), sizingCfg, testEngine(), nil, nil)

	sig := agentSignal("KRW-BTC", 0.8, 0.9)
	m.IngestSignals([]Signal{sig})

	// Small account: 1% risk over a 1% stop yields a 1M notional, under
	// the configured minimum.
	equity := 1_000_000.0
	proposals := m.ProposePositions(equity, &market.State{Price: 50_000_000})
	decisions := m.ApplyRiskEngine(proposals)
	orders, err := m.FinalizeOrders(equity, []Signal{sig}, proposals, decisions)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestIngestReplacesWorkingSet(t *testing.T) {
	m := NewManager(testPortfolioConfig(), testSizingConfig(), testEngine(), nil, nil)

	m.IngestSignals([]Signal{agentSignal("KRW-BTC", 0.8, 0.9)})
	m.IngestSignals([]Signal{agentSignal("KRW-ETH", 0.6, 0.7)})

	proposals := m.ProposePositions(100_000_000, &market.State{Price: 50_000_000})
	require.Len(t, proposals, 1)
	assert.Equal(t, "KRW-ETH", proposals[0].Symbol)
}

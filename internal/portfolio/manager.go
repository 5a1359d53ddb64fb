package portfolio

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tradecraft-labs/execution-engine/internal/config"
	"github.com/tradecraft-labs/execution-engine/internal/enginerr"
	"github.com/tradecraft-labs/execution-engine/internal/logger"
	"github.com/tradecraft-labs/execution-engine/internal/market"
	"github.com/tradecraft-labs/execution-engine/internal/risk"
	"github.com/tradecraft-labs/execution-engine/internal/sizing"
)

const stopEpsilon = 1e-6

// DecisionTrace is the full audit record of one decision cycle: every
// input signal, every proposal, every risk verdict, and the finalized
// orders. One trace is written per cycle, orders or not.
type DecisionTrace struct {
	TraceID   string             `json:"trace_id"`
	Timestamp time.Time          `json:"timestamp"`
	Equity    float64            `json:"equity"`
	Signals   []Signal           `json:"signals"`
	Proposals []ProposedPosition `json:"proposals"`
	Decisions []RiskDecision     `json:"decisions"`
	Orders    []Order            `json:"orders"`
}

// TraceStore persists decision traces. A nil store disables tracing.
type TraceStore interface {
	SaveDecisionTrace(trace DecisionTrace) error
}

// Manager aggregates raw signals into at most one proposed position per
// symbol, runs each proposal past the risk engine, and finalizes orders
// with the engine's scale applied uniformly to units.
type Manager struct {
	cfg    config.PortfolioConfig
	engine *risk.Engine
	sizer  *sizing.Sizer
	store  TraceStore
	log    *logger.Logger

	signals []Signal
}

// NewManager wires the aggregation weights, the risk engine, the order
// sizing caps, and the trace store. store and log may be nil.
func NewManager(cfg config.PortfolioConfig, sizingCfg config.SizingConfig, engine *risk.Engine, store TraceStore, log *logger.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		engine: engine,
		sizer:  sizing.New(sizingCfg),
		store:  store,
		log:    log,
	}
}

// IngestSignals replaces the working set for the next cycle. Signals are
// copied so later mutation by the producer cannot alter a cycle in
// flight.
func (m *Manager) IngestSignals(signals []Signal) {
	m.signals = make([]Signal, len(signals))
	copy(m.signals, signals)
}

// ProposePositions folds the working set into proposals, one per symbol
// at most. Per symbol and per source only the representative signal
// (highest confidence, score breaking ties) contributes; the combined
// score is the weight-averaged representative score. A symbol whose
// sources carry zero total weight yields no proposal.
func (m *Manager) ProposePositions(equity float64, mkt *market.State) []ProposedPosition {
	bySymbol := make(map[string][]Signal)
	for _, s := range m.signals {
		bySymbol[s.Symbol] = append(bySymbol[s.Symbol], s)
	}

	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	proposals := make([]ProposedPosition, 0, len(symbols))
	for _, sym := range symbols {
		if p, ok := m.proposeForSymbol(sym, bySymbol[sym], equity, mkt); ok {
			proposals = append(proposals, p)
		}
	}
	return proposals
}

// proposeForSymbol builds the single proposal a symbol is allowed per
// cycle.
func (m *Manager) proposeForSymbol(symbol string, signals []Signal, equity float64, mkt *market.State) (ProposedPosition, bool) {
	reps := make(map[Source]Signal)
	for _, s := range signals {
		rep, seen := reps[s.Source]
		if !seen || betterRepresentative(s, rep) {
			reps[s.Source] = s
		}
	}

	var weightedScore, totalWeight float64
	for src, rep := range reps {
		w := m.weightFor(src)
		weightedScore += rep.Score * w
		totalWeight += w
	}
	if totalWeight <= 0 {
		if m.log != nil {
			m.log.Warning("no weighted sources for %s, skipping proposal", symbol)
		}
		return ProposedPosition{}, false
	}
	combined := weightedScore / totalWeight

	agentRep, hasAgent := reps[SourceAgent]
	ruleRep, hasRule := reps[SourceRule]

	side := SideLong
	switch {
	case hasAgent:
		side = agentRep.Side
	case hasRule:
		side = ruleRep.Side
	}

	riskPct := m.cfg.DefaultRiskPct
	if hasAgent && agentRep.SuggestedRiskPct != nil {
		riskPct = *agentRep.SuggestedRiskPct
	} else if hasRule && ruleRep.SuggestedRiskPct != nil {
		riskPct = *ruleRep.SuggestedRiskPct
	}

	stopPct := m.cfg.DefaultStopPct
	if hasAgent && agentRep.SuggestedStopPct != nil {
		stopPct = *agentRep.SuggestedStopPct
	} else if hasRule && ruleRep.SuggestedStopPct != nil {
		stopPct = *ruleRep.SuggestedStopPct
	}

	stopFrac := stopPct / 100.0
	if stopFrac < stopEpsilon {
		stopFrac = stopEpsilon
	}
	notional := (riskPct / 100.0 * equity) / stopFrac

	// Entry price resolves market state first, then any hint embedded in
	// the signals. Without either, units are quoted 1:1 against notional.
	entry := 0.0
	if mkt != nil && mkt.Price > 0 {
		entry = mkt.Price
	}
	if entry <= 0 && hasAgent {
		entry = metaEntryPrice(agentRep.Meta)
	}
	if entry <= 0 && hasRule {
		entry = metaEntryPrice(ruleRep.Meta)
	}
	if entry <= 0 {
		entry = 1.0
	}
	units := notional / entry

	components := make([]Signal, 0, len(reps))
	for _, rep := range reps {
		components = append(components, rep)
	}
	sort.Slice(components, func(i, j int) bool {
		return components[i].Source < components[j].Source
	})

	return ProposedPosition{
		ProposalID:        uuid.NewString(),
		Symbol:            symbol,
		Side:              side,
		EntryPriceHint:    entry,
		SuggestedRiskPct:  riskPct,
		SuggestedStopPct:  stopPct,
		SuggestedNotional: notional,
		Units:             units,
		CombinedScore:     combined,
		Components:        components,
		Timestamp:         time.Now().UTC(),
	}, true
}

// metaEntryPrice reads an entry price embedded in signal metadata.
// Returns 0 when absent or not numeric.
func metaEntryPrice(meta map[string]interface{}) float64 {
	if meta == nil {
		return 0
	}
	switch v := meta["entry_price"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// betterRepresentative ranks signals by confidence, then score.
func betterRepresentative(candidate, incumbent Signal) bool {
	if candidate.Confidence != incumbent.Confidence {
		return candidate.Confidence > incumbent.Confidence
	}
	return candidate.Score > incumbent.Score
}

func (m *Manager) weightFor(src Source) float64 {
	switch src {
	case SourceAgent:
		return m.cfg.AgentWeight
	case SourceRule:
		return m.cfg.RuleWeight
	default:
		return 0
	}
}

// ApplyRiskEngine asks the engine for a verdict on each proposal.
func (m *Manager) ApplyRiskEngine(proposals []ProposedPosition) []RiskDecision {
	decisions := make([]RiskDecision, 0, len(proposals))
	for _, p := range proposals {
		d := m.engine.EvaluateProposal(p.SuggestedRiskPct, time.Now().UTC())
		if m.log != nil {
			m.log.LogDecision(p.Symbol, d.Allow, d.Scale, d.Reason)
		}
		decisions = append(decisions, RiskDecision{
			Proposal: p,
			Allow:    d.Allow,
			Scale:    d.Scale,
			Adjusted: d.AdjustedRiskPct,
			Reason:   d.Reason,
		})
	}
	return decisions
}

// FinalizeOrders turns allowed decisions into orders, scaling units by
// the engine's verdict and enforcing the sizing caps on the result, and
// writes the cycle's audit trace. The trace is written even when no
// orders result. A failed trace write never blocks the orders; it is
// returned so the caller can alert on it.
func (m *Manager) FinalizeOrders(equity float64, signals []Signal, proposals []ProposedPosition, decisions []RiskDecision) ([]Order, error) {
	orders := make([]Order, 0, len(decisions))
	for _, d := range decisions {
		if !d.Allow || d.Scale <= 0 {
			continue
		}
		p := d.Proposal
		units := p.Units * d.Scale
		notional := p.SuggestedNotional * d.Scale

		var capApplied sizing.Cap
		if equity > 0 {
			capped, applied := m.sizer.ApplyCaps(notional / equity * 100.0)
			if applied != sizing.CapNone {
				notional = equity * capped / 100.0
				if p.EntryPriceHint > 0 {
					units = notional / p.EntryPriceHint
				} else {
					units = notional
				}
				capApplied = applied
			}
		}
		if notional < m.sizer.MinNotional() {
			if m.log != nil {
				m.log.Warning("order for %s below minimum notional (%.2f), skipping", p.Symbol, notional)
			}
			continue
		}

		meta := map[string]interface{}{
			"proposal_id":    p.ProposalID,
			"decision":       d.Reason,
			"scale":          d.Scale,
			"combined_score": p.CombinedScore,
		}
		if capApplied != sizing.CapNone {
			meta["cap"] = string(capApplied)
		}

		orders = append(orders, Order{
			OrderID:   uuid.NewString(),
			Symbol:    p.Symbol,
			Side:      p.Side,
			Units:     units,
			Notional:  notional,
			EntryType: EntryTypeMarket,
			StopPct:   p.SuggestedStopPct,
			Meta:      meta,
		})
	}

	err := m.writeTrace(DecisionTrace{
		TraceID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Equity:    equity,
		Signals:   signals,
		Proposals: proposals,
		Decisions: decisions,
		Orders:    orders,
	})
	return orders, err
}

func (m *Manager) writeTrace(trace DecisionTrace) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SaveDecisionTrace(trace); err != nil {
		if m.log != nil {
			m.log.LogError("decision trace write failed", err)
		}
		return enginerr.NewPersistenceError("portfolio", "write_trace", err)
	}
	return nil
}

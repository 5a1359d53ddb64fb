package risk

import (
	"sync"
	"time"

	"github.com/tradecraft-labs/execution-engine/internal/config"
	"github.com/tradecraft-labs/execution-engine/internal/logger"
)

// Engine is the stateful per-account risk governor. It latches entries off
// for the rest of the day when the daily loss limit is hit, multiplicatively
// reduces the per-trade risk cap on consecutive-loss and drawdown triggers,
// and ramps the cap linearly back toward its initial value on win streaks.
//
// The two axes are orthogonal: the daily latch gates whether entries happen
// at all, the risk cap scales how large they are.
//
// All methods serialize on an internal mutex; the engine is the single
// writer for its account and concurrent use is safe but ordered.
type Engine struct {
	cfg config.RiskConfig
	log *logger.Logger

	mu sync.Mutex

	startOfDayNAV    float64
	dailyRealizedPnL float64
	peakNAV          float64

	currentRiskPct    float64
	consecutiveLosses int
	consecutiveWins   int
	blockedForDay     bool
	reductionSteps    int

	dailyLossTriggers       int
	consecutiveLossTriggers int
	drawdownTriggers        int

	events []Event
}

// NewEngine creates a risk engine from constructor-time configuration, the
// single source of truth for every threshold. log may be nil.
func NewEngine(cfg config.RiskConfig, log *logger.Logger) *Engine {
	if cfg.MinRiskPct < 0 {
		cfg.MinRiskPct = 0.01
	}
	if cfg.MinRiskPct > cfg.InitialRiskPct {
		cfg.MinRiskPct = cfg.InitialRiskPct
	}
	return &Engine{
		cfg:            cfg,
		log:            log,
		currentRiskPct: cfg.InitialRiskPct,
	}
}

// OnNewDay resets the daily fields at a caller-detected day boundary: the
// start-of-day NAV reference, today's realized PnL, and the daily latch.
// Peak NAV is raised if nav is a new high.
func (e *Engine) OnNewDay(nav float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.startOfDayNAV = nav
	e.dailyRealizedPnL = 0
	e.blockedForDay = false
	if nav > e.peakNAV {
		e.peakNAV = nav
	}
}

// AllowEntry reports whether new entries are allowed under the daily latch.
func (e *Engine) AllowEntry() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.blockedForDay
}

// GetEffectiveRiskPct caps a requested risk pct by the current cap. It only
// caps downward; it never grants more than requested. A non-positive
// request yields the current cap itself.
func (e *Engine) GetEffectiveRiskPct(requested float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if requested <= 0 {
		return e.currentRiskPct
	}
	if requested < e.currentRiskPct {
		return requested
	}
	return e.currentRiskPct
}

// CurrentRiskPct returns the current per-trade risk cap.
func (e *Engine) CurrentRiskPct() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentRiskPct
}

// RecordTradeResult is the sole mutation path besides OnNewDay. It is
// called once per realized trade exit with the trade's PnL and the NAV
// after applying it, and runs every trigger in a fixed order: daily loss
// latch, consecutive-loss reduction, drawdown reduction, win-streak
// recovery.
func (e *Engine) RecordTradeResult(pnl, navAfter float64, ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.dailyRealizedPnL += pnl

	if pnl <= 0 {
		e.consecutiveLosses++
		e.consecutiveWins = 0
	} else {
		e.consecutiveWins++
		e.consecutiveLosses = 0
	}

	if navAfter > e.peakNAV {
		e.peakNAV = navAfter
	}
	drawdownPct := 0.0
	if e.peakNAV > 0 {
		drawdownPct = (e.peakNAV - navAfter) / e.peakNAV * 100.0
	}

	if e.startOfDayNAV > 0 && e.dailyRealizedPnL < 0 {
		dailyLossPct := -e.dailyRealizedPnL / e.startOfDayNAV * 100.0
		if dailyLossPct >= e.cfg.DailyLossLimitPct && !e.blockedForDay {
			e.blockedForDay = true
			e.dailyLossTriggers++
			e.appendEvent(Event{
				Type:         EventDailyLossLimit,
				DailyLossPct: dailyLossPct,
				Timestamp:    ts,
			})
		}
	}

	if e.consecutiveLosses >= e.cfg.ConsecutiveLossesThreshold {
		e.applyReduction(ReasonConsecutiveLosses, ts)
		// Reset so the same streak does not re-fire on the next loss.
		e.consecutiveLosses = 0
	}

	if drawdownPct >= e.cfg.MaxDrawdownLimitPct {
		e.applyReduction(ReasonMaxDrawdown, ts)
	}

	if e.consecutiveWins >= e.cfg.RecoveryConsecWins {
		e.attemptRecovery(ts)
		e.consecutiveWins = 0
	}
}

// applyReduction multiplies the current risk cap down, honoring the floor
// and the maximum reduction depth. Caller holds the mutex.
func (e *Engine) applyReduction(reason string, ts time.Time) {
	if e.reductionSteps >= e.cfg.MaxReductionSteps {
		e.appendEvent(Event{
			Type:           EventReductionLimited,
			Reason:         reason,
			ReductionSteps: e.reductionSteps,
			Timestamp:      ts,
		})
		return
	}

	old := e.currentRiskPct
	next := e.currentRiskPct * e.cfg.ConsecutiveLossMultiplier
	if next < e.cfg.MinRiskPct {
		next = e.cfg.MinRiskPct
	}
	if next == old {
		return
	}

	e.currentRiskPct = next
	e.reductionSteps++
	switch reason {
	case ReasonMaxDrawdown:
		e.drawdownTriggers++
	default:
		e.consecutiveLossTriggers++
	}
	e.appendEvent(Event{
		Type:           EventRiskReduction,
		Reason:         reason,
		OldRiskPct:     old,
		NewRiskPct:     next,
		ReductionSteps: e.reductionSteps,
		Timestamp:      ts,
	})
}

// attemptRecovery ramps the risk cap linearly toward the initial value,
// one absolute step of initial*RecoveryStepFraction at a time, never
// exceeding the initial. Caller holds the mutex.
func (e *Engine) attemptRecovery(ts time.Time) {
	if !e.cfg.RecoveryEnabled {
		return
	}
	if e.currentRiskPct >= e.cfg.InitialRiskPct {
		return
	}

	old := e.currentRiskPct
	next := e.currentRiskPct + e.cfg.InitialRiskPct*e.cfg.RecoveryStepFraction
	if next > e.cfg.InitialRiskPct {
		next = e.cfg.InitialRiskPct
	}
	if next <= old {
		return
	}

	e.currentRiskPct = next
	e.appendEvent(Event{
		Type:       EventRiskRecovery,
		OldRiskPct: old,
		NewRiskPct: next,
		Timestamp:  ts,
	})
}

// EvaluateProposal gates one proposal's requested risk pct against the
// daily latch and the current cap. A blocked day vetoes outright. A
// non-positive request passes through unscaled. Otherwise the proposal is
// allowed with scale = current/requested clamped to (0, 1].
func (e *Engine) EvaluateProposal(requestedRiskPct float64, ts time.Time) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.blockedForDay {
		evt := Event{Type: EventRiskVetoed, Reason: "daily_loss_blocked", Timestamp: ts}
		e.appendEvent(evt)
		return Decision{Allow: false, Scale: 0, AdjustedRiskPct: 0, Reason: "daily_loss_blocked", Events: []Event{evt}}
	}

	if requestedRiskPct <= 0 {
		return Decision{Allow: true, Scale: 1.0, AdjustedRiskPct: e.cfg.InitialRiskPct, Reason: "no_base_risk"}
	}

	scale := e.currentRiskPct / requestedRiskPct
	if scale <= 0 {
		evt := Event{Type: EventRiskVetoed, Reason: "scale_zero", Timestamp: ts}
		e.appendEvent(evt)
		return Decision{Allow: false, Scale: 0, AdjustedRiskPct: 0, Reason: "scale_zero", Events: []Event{evt}}
	}
	if scale > 1.0 {
		scale = 1.0
	}

	adjusted := requestedRiskPct * scale
	if scale < 1.0 {
		evt := Event{
			Type:       EventRiskScaled,
			Reason:     "cap_enforced_current_risk",
			OldRiskPct: requestedRiskPct,
			NewRiskPct: adjusted,
			Scale:      scale,
			Timestamp:  ts,
		}
		e.appendEvent(evt)
		return Decision{Allow: true, Scale: scale, AdjustedRiskPct: adjusted, Reason: "cap_enforced_current_risk", Events: []Event{evt}}
	}

	return Decision{Allow: true, Scale: 1.0, AdjustedRiskPct: adjusted, Reason: "ok"}
}

// Summary returns a reporting snapshot of configuration, state, and the
// event log.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	events := make([]Event, len(e.events))
	copy(events, e.events)

	return Summary{
		InitialRiskPct:          e.cfg.InitialRiskPct,
		MinRiskPct:              e.cfg.MinRiskPct,
		CurrentRiskPct:          e.currentRiskPct,
		DailyLossTriggers:       e.dailyLossTriggers,
		ConsecutiveLossTriggers: e.consecutiveLossTriggers,
		DrawdownTriggers:        e.drawdownTriggers,
		ReductionSteps:          e.reductionSteps,
		BlockedForDay:           e.blockedForDay,
		Events:                  events,
	}
}

func (e *Engine) appendEvent(evt Event) {
	e.events = append(e.events, evt)
	if e.log != nil {
		e.log.Risk("%s reason=%s old=%.4f new=%.4f", evt.Type, evt.Reason, evt.OldRiskPct, evt.NewRiskPct)
	}
}

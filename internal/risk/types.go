package risk

import "time"

// EventType identifies a risk engine state transition.
type EventType string

const (
	EventDailyLossLimit   EventType = "daily_loss_limit"
	EventRiskReduction    EventType = "risk_reduction"
	EventReductionLimited EventType = "reduction_limited"
	EventRiskRecovery     EventType = "risk_recovery"
	EventRiskScaled       EventType = "risk_scaled"
	EventRiskVetoed       EventType = "risk_vetoed"
)

// Reduction reasons recorded on EventRiskReduction events.
const (
	ReasonConsecutiveLosses = "consecutive_losses"
	ReasonMaxDrawdown       = "max_drawdown"
)

// Event is one append-only entry of the engine's event log.
type Event struct {
	Type           EventType `json:"type"`
	Reason         string    `json:"reason,omitempty"`
	OldRiskPct     float64   `json:"old_risk_pct,omitempty"`
	NewRiskPct     float64   `json:"new_risk_pct,omitempty"`
	Scale          float64   `json:"scale,omitempty"`
	DailyLossPct   float64   `json:"daily_loss_pct,omitempty"`
	ReductionSteps int       `json:"reduction_steps,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Decision is the engine's verdict on one proposal. Scale is a 0..1
// multiplier on the proposed units; "granted less than asked" is expressed
// as uniform downscaling rather than rejection.
type Decision struct {
	Allow           bool    `json:"allow"`
	Scale           float64 `json:"scale"`
	AdjustedRiskPct float64 `json:"adjusted_risk_pct"`
	Reason          string  `json:"reason"`
	Events          []Event `json:"events,omitempty"`
}

// Summary is a reporting snapshot of the engine configuration and state.
type Summary struct {
	InitialRiskPct          float64 `json:"initial_risk_pct"`
	MinRiskPct              float64 `json:"min_risk_pct"`
	CurrentRiskPct          float64 `json:"current_risk_pct"`
	DailyLossTriggers       int     `json:"daily_loss_triggers"`
	ConsecutiveLossTriggers int     `json:"consecutive_loss_triggers"`
	DrawdownTriggers        int     `json:"dd_triggers"`
	ReductionSteps          int     `json:"reduction_steps"`
	BlockedForDay           bool    `json:"blocked_for_day"`
	Events                  []Event `json:"events"`
}

package portfolio

import (
	"time"
)

// Source identifies who produced a signal.
type Source string

const (
	SourceAgent Source = "agent"
	SourceRule  Source = "rule"
)

// Side is the direction of a proposed position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Signal is one immutable directional recommendation from an upstream
// producer. Suggested fields are optional; nil means the producer offered
// no opinion and downstream preference order applies.
type Signal struct {
	ID         string    `json:"id"`
	Source     Source    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`

	SuggestedRiskPct       *float64 `json:"suggested_risk_pct,omitempty"`
	SuggestedStopPct       *float64 `json:"suggested_stop_pct,omitempty"`
	SuggestedTakeProfitPct *float64 `json:"suggested_take_profit_pct,omitempty"`

	HorizonMinutes int                    `json:"horizon_minutes,omitempty"`
	ModelVersion   string                 `json:"model_version,omitempty"`
	Meta           map[string]interface{} `json:"meta,omitempty"`
}

// ProposedPosition is the aggregation of one symbol's signals into a
// single candidate entry. SuggestedNotional and Units carry the
// pre-risk-engine size; the engine's scale is applied at finalization.
type ProposedPosition struct {
	ProposalID        string    `json:"proposal_id"`
	Symbol            string    `json:"symbol"`
	Side              Side      `json:"side"`
	EntryPriceHint    float64   `json:"entry_price_hint"`
	SuggestedRiskPct  float64   `json:"suggested_risk_pct"`
	SuggestedStopPct  float64   `json:"suggested_stop_pct"`
	SuggestedNotional float64   `json:"suggested_notional"`
	Units             float64   `json:"units"`
	CombinedScore     float64   `json:"combined_score"`
	Components        []Signal  `json:"components"`
	Timestamp         time.Time `json:"timestamp"`
}

// RiskDecision pairs the engine's verdict with the proposal it judged.
type RiskDecision struct {
	Proposal ProposedPosition `json:"proposal"`
	Allow    bool             `json:"allow"`
	Scale    float64          `json:"scale"`
	Adjusted float64          `json:"adjusted_risk_pct"`
	Reason   string           `json:"reason"`
}

// EntryType distinguishes how an order enters the market.
const (
	EntryTypeMarket = "market"
	EntryTypeLimit  = "limit"
)

// Order is a finalized instruction handed to the execution scheduler.
type Order struct {
	OrderID   string                 `json:"order_id"`
	Symbol    string                 `json:"symbol"`
	Side      Side                   `json:"side"`
	Units     float64                `json:"units"`
	Notional  float64                `json:"notional"`
	EntryType string                 `json:"entry_type"`
	StopPct   float64                `json:"stop_pct,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

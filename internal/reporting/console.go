package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tradecraft-labs/execution-engine/internal/portfolio"
	"github.com/tradecraft-labs/execution-engine/internal/risk"
	"github.com/tradecraft-labs/execution-engine/internal/twap"
)

// ConsoleReporter renders decision cycles and execution runs as console
// tables.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a reporter writing to stdout.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// NewConsoleReporterWriter creates a reporter on an arbitrary writer.
func NewConsoleReporterWriter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: w}
}

// PrintCycleSummary renders one decision cycle: proposals, verdicts, and
// finalized orders.
func (r *ConsoleReporter) PrintCycleSummary(trace portfolio.DecisionTrace) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("DECISION CYCLE")
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Symbol", "Side", "Score", "Risk %", "Scale", "Verdict", "Units"})
	for _, d := range trace.Decisions {
		units := "-"
		for _, o := range trace.Orders {
			if meta, ok := o.Meta["proposal_id"].(string); ok && meta == d.Proposal.ProposalID {
				units = fmt.Sprintf("%.6f", o.Units)
			}
		}
		t.AppendRow(table.Row{
			d.Proposal.Symbol,
			d.Proposal.Side,
			fmt.Sprintf("%.3f", d.Proposal.CombinedScore),
			fmt.Sprintf("%.2f", d.Proposal.SuggestedRiskPct),
			fmt.Sprintf("%.3f", d.Scale),
			d.Reason,
			units,
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 10, Align: text.AlignLeft},
		{Number: 6, WidthMin: 22, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintf(r.out, "💰 Equity: %.2f | Signals: %d | Orders: %d\n\n",
		trace.Equity, len(trace.Signals), len(trace.Orders))
}

// PrintRiskSummary renders the risk engine state.
func (r *ConsoleReporter) PrintRiskSummary(s risk.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("RISK ENGINE")
	t.SetStyle(table.StyleRounded)

	blocked := "✅ trading"
	if s.BlockedForDay {
		blocked = "🚫 blocked for the day"
	}

	t.AppendRows([]table.Row{
		{"📊 Current Risk", fmt.Sprintf("%.4f%%", s.CurrentRiskPct)},
		{"📊 Initial Risk", fmt.Sprintf("%.4f%%", s.InitialRiskPct)},
		{"📉 Reduction Steps", s.ReductionSteps},
		{"🔄 Loss Triggers", s.ConsecutiveLossTriggers},
		{"📉 Drawdown Triggers", s.DrawdownTriggers},
		{"🚨 Daily Status", blocked},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, WidthMax: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintTWAPSummary renders the slice ledger for one execution run.
func (r *ConsoleReporter) PrintTWAPSummary(s twap.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(fmt.Sprintf("TWAP %s", s.Symbol))
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Slice", "Status", "Requested", "Actual", "Price", "Units", "Reason"})
	for _, rec := range s.Slices {
		t.AppendRow(table.Row{
			rec.Slice,
			rec.Status,
			fmt.Sprintf("%.2f", rec.Requested),
			fmt.Sprintf("%.2f", rec.Actual),
			fmt.Sprintf("%.2f", rec.Price),
			fmt.Sprintf("%.6f", rec.Units),
			rec.Reason,
		})
	}

	t.Render()
	fmt.Fprintf(r.out, "📦 Executed %.2f of %.2f (%d/%d slices) in %s\n\n",
		s.ExecutedNotional, s.RequestedNotional, s.SlicesExecuted, s.SlicesPlanned, s.Duration.Round(time.Millisecond))
}

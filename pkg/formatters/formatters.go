package formatters

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pairsight/statarb/internal/engine"
	"github.com/pairsight/statarb/internal/models"
	"github.com/shopspring/decimal"
)

// Colors for different values
var (
	ColorGreen  = text.FgGreen
	ColorRed    = text.FgRed
	ColorYellow = text.FgYellow
	ColorBlue   = text.FgCyan
	ColorWhite  = text.FgWhite
	ColorGray   = text.FgHiBlack
)

// FormatZScore colors a z-score by how stretched the spread is
func FormatZScore(z float64) string {
	s := fmt.Sprintf("%+.2f", z)
	switch {
	case z >= 2.0 || z <= -2.0:
		return ColorRed.Sprint(s)
	case z >= 1.0 || z <= -1.0:
		return ColorYellow.Sprint(s)
	default:
		return s
	}
}

// FormatPValue colors a p-value against the usual 5% line
func FormatPValue(p float64) string {
	s := fmt.Sprintf("%.4f", p)
	if p < 0.05 {
		return ColorGreen.Sprint(s)
	}
	return ColorGray.Sprint(s)
}

// FormatRupees formats a rupee amount
func FormatRupees(amount decimal.Decimal) string {
	return fmt.Sprintf("₹%s", amount.StringFixed(2))
}

// FormatState colors a pair lifecycle state
func FormatState(state models.PairState) string {
	switch state {
	case models.PairScreenedViable, models.PairFlat:
		return ColorGreen.Sprint(string(state))
	case models.PairInPosition:
		return ColorBlue.Sprint(string(state))
	case models.PairScreenedRejected, models.PairClosed:
		return ColorRed.Sprint(string(state))
	default:
		return ColorGray.Sprint(string(state))
	}
}

// FormatSignalKind colors a signal by direction
func FormatSignalKind(kind models.SignalKind) string {
	switch kind {
	case models.SignalLongSpread:
		return ColorGreen.Sprint(string(kind))
	case models.SignalShortSpread:
		return ColorRed.Sprint(string(kind))
	case models.SignalExitStopLoss:
		return ColorYellow.Sprint(string(kind))
	default:
		return string(kind)
	}
}

// FormatScreeningTable renders the screened universe ranked by p-value.
func FormatScreeningTable(machines []*engine.Machine) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{
		"Pair", "Sector", "State", "Hedge Ratio", "ADF Stat", "P-Value", "Correlation", "N"})

	viable := 0
	for _, m := range machines {
		pair := m.Pair()
		if pair.Result == nil {
			t.AppendRow(table.Row{
				pair.Name(), pair.Sector, FormatState(pair.State), "-", "-", "-", "-", "-"})
			continue
		}
		r := pair.Result
		if r.IsCointegrated {
			viable++
		}
		t.AppendRow(table.Row{
			pair.Name(),
			pair.Sector,
			FormatState(pair.State),
			fmt.Sprintf("%.4f", r.HedgeRatio),
			fmt.Sprintf("%.3f", r.ADFStatistic),
			FormatPValue(r.PValue),
			fmt.Sprintf("%.3f", r.Correlation),
			r.SampleSize,
		})
	}

	t.AppendSeparator()
	t.AppendRow(table.Row{
		fmt.Sprintf("%d pairs", len(machines)), "", "", "", "",
		fmt.Sprintf("%d viable", viable), "", ""})

	return t.Render()
}

// FormatFeeTable itemizes a fee breakdown
func FormatFeeTable(notional decimal.Decimal, side models.OrderSide, product models.ProductType, f models.FeeBreakdown) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	t.AppendRow(table.Row{"Notional", FormatRupees(notional)})
	t.AppendRow(table.Row{"Side", strings.ToUpper(string(side))})
	t.AppendRow(table.Row{"Product", strings.ToUpper(string(product))})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Brokerage", FormatRupees(f.Brokerage)})
	t.AppendRow(table.Row{"STT", FormatRupees(f.STT)})
	t.AppendRow(table.Row{"Exchange Charges", FormatRupees(f.ExchangeCharges)})
	t.AppendRow(table.Row{"SEBI Charges", FormatRupees(f.SEBICharges)})
	t.AppendRow(table.Row{"Stamp Duty", FormatRupees(f.StampDuty)})
	t.AppendRow(table.Row{"GST", FormatRupees(f.GST)})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Total", ColorYellow.Sprint(FormatRupees(f.Total))})

	return t.Render()
}

// FormatPositionsTable lists open positions across the universe
func FormatPositionsTable(machines []*engine.Machine) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{
		"Pair", "Side", "Qty A", "Qty B", "Entry A", "Entry B", "Entry Z", "Fees", "Opened"})

	count := 0
	for _, m := range machines {
		pos := m.Position()
		if pos == nil {
			continue
		}
		count++
		t.AppendRow(table.Row{
			pos.PairKey,
			FormatSignalKind(pos.Side),
			pos.QuantityA.String(),
			pos.QuantityB.String(),
			FormatRupees(pos.EntryPriceA),
			FormatRupees(pos.EntryPriceB),
			FormatZScore(pos.EntryZScore),
			FormatRupees(pos.EntryFees.Total),
			pos.OpenedAt.Format("15:04:05"),
		})
	}

	if count == 0 {
		t.AppendRow(table.Row{"No open positions", "", "", "", "", "", "", "", ""})
	}

	return t.Render()
}

// FormatAnalysis creates a detailed single-pair report
func FormatAnalysis(pair *models.Pair) string {
	if pair.Result == nil {
		return "Pair has not been screened"
	}
	r := pair.Result

	var parts []string
	parts = append(parts, fmt.Sprintf("\n%s %s",
		text.Bold.Sprint(pair.Name()),
		ColorGray.Sprint(time.Now().Format("15:04:05"))))

	verdict := ColorRed.Sprint("NOT COINTEGRATED")
	if r.IsCointegrated {
		verdict = ColorGreen.Sprint("COINTEGRATED")
	}
	parts = append(parts, fmt.Sprintf("Verdict: %s (n=%d)", verdict, r.SampleSize))
	parts = append(parts, fmt.Sprintf("Hedge Ratio: %.4f | Intercept: %.4f", r.HedgeRatio, r.Intercept))
	parts = append(parts, fmt.Sprintf("ADF: %.3f | P-Value: %s | Correlation: %.3f",
		r.ADFStatistic, FormatPValue(r.PValue), r.Correlation))
	parts = append(parts, fmt.Sprintf("State: %s | Z-Score: %s",
		FormatState(pair.State), FormatZScore(pair.CurrentZScore)))

	return strings.Join(parts, "\n")
}

// FormatTimestamp formats a timestamp for display
func FormatTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}

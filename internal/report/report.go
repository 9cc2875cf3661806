// Package report renders detected changes into the chat webhook payload.
package report

import (
	"fmt"
	"strings"
	"time"

	"stock_monitor/internal/diff"
	"stock_monitor/internal/grid"
	"stock_monitor/internal/inventory"
)

// piecesPerBag is how wholesale stock is bagged for the cold room.
const piecesPerBag = 20

// Message is the Google Chat webhook payload.
type Message struct {
	Text string `json:"text"`
}

// Builder renders alert messages. Timestamps are shown in the operators'
// timezone, not UTC.
type Builder struct {
	Location *time.Location
}

// Build assembles the combined alert: stock changes and current levels,
// parts changes and current weights, and the balance comparison when the
// discrepancy is computable.
func (b Builder) Build(stockChanges []diff.ChangeRecord, stockGrid grid.RawGrid,
	partsChanges []diff.ChangeRecord, partsGrid grid.RawGrid,
	physicalCount float64, etlBalance *float64, difference *float64) Message {

	var sb strings.Builder
	sb.WriteString("🔔 *Inventory Changes Detected*\n\n")

	if len(stockChanges) > 0 {
		sb.WriteString("*Stock Balance Changes:*\n")
		for _, c := range stockChanges {
			sb.WriteString(formatChangeLine(c))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("*Current Stock Levels:*\n")
	writeCurrentLevels(&sb, stockGrid)

	if difference != nil && etlBalance != nil {
		sb.WriteString("\n*Stock Balance Comparison:*\n")
		if *difference == 0 {
			sb.WriteString("✅ Stock balance matches inventory records\n")
		} else {
			direction := "more"
			if *difference < 0 {
				direction = "less"
			}
			sb.WriteString("⚠️ Stock balance discrepancy detected:\n")
			sb.WriteString(fmt.Sprintf("• Specification Sheet Total: %s pieces\n", formatCount(physicalCount)))
			sb.WriteString(fmt.Sprintf("• Inventory Records Total: %s pieces\n", formatCount(*etlBalance)))
			sb.WriteString(fmt.Sprintf("• Difference: %s pieces %s in specification sheet\n",
				formatCount(abs(*difference)), direction))
		}
	}

	if len(partsChanges) > 0 {
		sb.WriteString("\n*Parts Weight Changes:*\n")
		for _, c := range partsChanges {
			sb.WriteString(formatChangeLine(c))
		}
	}
	if len(partsGrid) > 0 {
		sb.WriteString("\n*Current Parts Weights:*\n")
		writeCurrentLevels(&sb, partsGrid)
	}

	now := time.Now().In(b.Location)
	sb.WriteString(fmt.Sprintf("\n_Updated at: %s %s_",
		now.Format("2006-01-02 03:04:05 PM"), b.zoneAbbrev(now)))

	return Message{Text: sb.String()}
}

func (b Builder) zoneAbbrev(now time.Time) string {
	abbrev, _ := now.Zone()
	return abbrev
}

func formatChangeLine(c diff.ChangeRecord) string {
	label := fmt.Sprintf("%s %s %s", title(c.Product), c.Grade, c.Metric)
	return fmt.Sprintf("• %s: %s → %s\n", label, formatValue(c.OldValue, c.Metric), formatValue(c.NewValue, c.Metric))
}

func writeCurrentLevels(sb *strings.Builder, g grid.RawGrid) {
	for _, rec := range grid.Parse(g) {
		sb.WriteString(fmt.Sprintf("• %s %s %s: %s\n",
			title(rec.Product), rec.Grade, rec.Metric, formatValue(rec.Value, rec.Metric)))
	}
}

// formatValue renders a cell per its metric: weights as kg, quantities as
// bags plus loose pieces. Non-numeric cells pass through verbatim.
func formatValue(value, metric string) string {
	num, ok := inventory.ParseNumber(value)
	if !ok {
		return value
	}

	if strings.Contains(strings.ToLower(metric), "weight") {
		return fmt.Sprintf("%s kg", formatFloat(num))
	}
	if strings.EqualFold(metric, "Qty") {
		return formatPieces(int(num))
	}
	return value
}

func formatPieces(total int) string {
	bags := total / piecesPerBag
	pieces := total % piecesPerBag

	bagsText := fmt.Sprintf("%s bags", formatCount(float64(bags)))
	if bags == 1 {
		bagsText = "1 bag"
	}
	piecesText := fmt.Sprintf("%d pieces", pieces)
	if pieces == 1 {
		piecesText = "1 piece"
	}

	switch {
	case bags > 0 && pieces > 0:
		return bagsText + ", " + piecesText
	case bags > 0:
		return bagsText
	default:
		return piecesText
	}
}

// formatCount renders a number with thousands separators, dropping a
// trailing ".00".
func formatCount(v float64) string {
	s := formatFloat(v)
	return strings.TrimSuffix(s, ".00")
}

func formatFloat(v float64) string {
	raw := fmt.Sprintf("%.2f", v)
	parts := strings.SplitN(raw, ".", 2)
	intPart := parts[0]

	negative := strings.HasPrefix(intPart, "-")
	if negative {
		intPart = intPart[1:]
	}

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	out := strings.Join(groups, ",") + "." + parts[1]
	if negative {
		out = "-" + out
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func title(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

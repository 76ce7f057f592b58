// Package report renders an ask result as a human-readable Markdown document.
package report

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

// Row limits keep reports readable; the JSON result always carries everything.
const (
	MaxFloodRows      = 15
	MaxForecastHours  = 12
	MaxHistoryMonths  = 12
	maxAddressDisplay = 50
)

const disclaimer = `### Disclaimer

This report is generated automatically from available data and model analysis.
Use it for information only. For decisions about flood safety and preparedness,
consult official sources such as NOAA, FEMA, and local emergency management agencies.`

// Render builds the report from the filtered context, the data the answer was
// grounded on. Output depends only on result, so rendering is repeatable.
func Render(result domain.AskResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Flood Information Report\n\n**Generated:** %s\n\n", result.CreatedAt.UTC().Format("January 2, 2006 at 15:04 MST"))
	if result.QueryID != "" {
		fmt.Fprintf(&b, "**Query ID:** `%s`\n\n", result.QueryID)
	}
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "## Query\n\n> **%q**\n\n## Answer\n\n%s\n\n", result.Query, orDefault(result.Answer, "No answer generated."))
	if h := result.Highlight; h != nil {
		fmt.Fprintf(&b, "**Highlighted county:** %s, %s (FIPS %s)\n\n", h.CountyName, h.StateName, h.FIPSCode)
	}
	b.WriteString("---\n\n")

	for _, loc := range result.FilteredContext.FilteredData {
		writeLocation(&b, loc)
	}

	writeCriteria(&b, result.FilteredContext.IntentAnalysis)
	b.WriteString(disclaimer)
	b.WriteString("\n")
	return b.String()
}

func writeLocation(b *strings.Builder, loc domain.LocationContext) {
	in := loc.InputLocation
	fmt.Fprintf(b, "## Location: %s\n\n**Address:** %s\n**Coordinates:** %.4f, %.4f\n\n",
		orDefault(in.Name, "Unknown Location"), orDefault(in.FormattedAddress, "N/A"), in.Latitude, in.Longitude)

	if loc.Status == domain.StatusNoCounty {
		b.WriteString("*No county found for this location.*\n\n")
	}
	if loc.HasCounty() {
		c := loc.County.Value
		fmt.Fprintf(b, "### County Information\n\n| Field | Value |\n|-------|-------|\n"+
			"| **County** | %s |\n| **State** | %s |\n| **FIPS Code** | %s |\n| **Area (sq mi)** | %.2f |\n\n",
			c.CountyName, c.StateName, c.FIPSCode, c.AreaSqMi)
	}
	if loc.FloodEvents.Present {
		writeFloodEvents(b, loc.FloodEvents.Value)
	}
	if loc.SVI.Present {
		writeSVI(b, loc.SVI.Value)
	}
	if loc.PrecipitationForecast.Present && len(loc.PrecipitationForecast.Value) > 0 {
		writeForecast(b, loc.PrecipitationForecast.Value)
	}
	if loc.PrecipitationHistory.Present && len(loc.PrecipitationHistory.Value) > 0 {
		writeHistory(b, loc.PrecipitationHistory.Value)
	}
	if len(loc.Warnings) > 0 {
		b.WriteString("### Data Gaps\n\n")
		for _, w := range loc.Warnings {
			fmt.Fprintf(b, "- %s\n", w)
		}
		b.WriteString("\n")
	}
}

func writeFloodEvents(b *strings.Builder, events []domain.FloodEvent) {
	fmt.Fprintf(b, "### Historical Flood Events (%d events)\n\n", len(events))
	if len(events) == 0 {
		b.WriteString("*No flood events recorded.*\n\n")
		return
	}
	b.WriteString("| Date | Type | Distance (mi) | Warning Zone | Nearest Address |\n")
	b.WriteString("|------|------|---------------|--------------|-----------------|\n")
	for _, e := range events[:min(len(events), MaxFloodRows)] {
		addr := "N/A"
		if e.NearestAddress != nil {
			addr = truncate(*e.NearestAddress, maxAddressDisplay)
		}
		fmt.Fprintf(b, "| %s | %s | %.2f | %s | %s |\n",
			e.Date.Format(time.DateOnly), e.EventType, e.DistanceFromQueryMiles, orDefault(e.WarningZone, "N/A"), addr)
	}
	if len(events) > MaxFloodRows {
		fmt.Fprintf(b, "\n*Showing %d of %d total events*\n", MaxFloodRows, len(events))
	}
	b.WriteString("\n")
}

func writeSVI(b *strings.Builder, svi *domain.SVIRecord) {
	b.WriteString("### Social Vulnerability Index (SVI)\n\n")
	if svi == nil {
		b.WriteString("*No SVI record for this county.*\n\n")
		return
	}
	if r := svi.OverallRanking; r.National != nil || r.State != nil {
		b.WriteString("#### Overall Rankings\n\n| Ranking Type | Percentile |\n|--------------|------------|\n")
		if r.National != nil {
			fmt.Fprintf(b, "| **National** | %.2f |\n", *r.National)
		}
		if r.State != nil {
			fmt.Fprintf(b, "| **State** | %.2f |\n", *r.State)
		}
		b.WriteString("\n")
	}
	writeScores(b, "Theme Rankings", "Theme", svi.Themes)
	if len(svi.Variables) > 0 {
		writeScores(b, fmt.Sprintf("Key Variables (%d selected)", len(svi.Variables)), "Variable", svi.Variables)
	}
}

func writeScores(b *strings.Builder, title, column string, scores map[string]float64) {
	if len(scores) == 0 {
		return
	}
	fmt.Fprintf(b, "#### %s\n\n| %s | Percentile |\n|---|---|\n", title, column)
	for _, name := range sortedKeys(scores) {
		fmt.Fprintf(b, "| %s | %.2f |\n", name, scores[name])
	}
	b.WriteString("\n")
}

func writeForecast(b *strings.Builder, points []domain.ForecastPoint) {
	fmt.Fprintf(b, "### Precipitation Forecast (%d hours)\n\n", len(points))
	b.WriteString("| Time (UTC) | Probability | Amount (in) | Condition |\n|------|-------------|-------------|-----------|\n")
	for _, p := range points[:min(len(points), MaxForecastHours)] {
		fmt.Fprintf(b, "| %s | %.1f%% | %.2f | %s |\n",
			p.Time.UTC().Format("Jan 2 15:04"), p.PrecipitationProbabilityPct, p.PrecipitationAmountIn, orDefault(p.Condition, "N/A"))
	}
	if len(points) > MaxForecastHours {
		fmt.Fprintf(b, "\n*Showing %d of %d total hours*\n", MaxForecastHours, len(points))
	}
	b.WriteString("\n")
}

// writeHistory shows the most recent months in chronological order.
func writeHistory(b *strings.Builder, history []domain.PrecipitationRecord) {
	recent := recentHistory(history)
	fmt.Fprintf(b, "### Recent Precipitation History (%d months)\n\n", len(recent))
	b.WriteString("| Year-Month | Precipitation (in) |\n|------------|--------------------|\n")
	for _, r := range recent {
		fmt.Fprintf(b, "| %d-%02d | %.2f |\n", r.Year, r.Month, r.Inches)
	}
	b.WriteString("\n")
}

// recentHistory returns the last MaxHistoryMonths records, oldest first.
func recentHistory(history []domain.PrecipitationRecord) []domain.PrecipitationRecord {
	recent := slices.Clone(history)
	slices.SortFunc(recent, func(x, y domain.PrecipitationRecord) int {
		if x.Year != y.Year {
			return x.Year - y.Year
		}
		return x.Month - y.Month
	})
	if len(recent) > MaxHistoryMonths {
		recent = recent[len(recent)-MaxHistoryMonths:]
	}
	return recent
}

func sortedKeys(scores map[string]float64) []string {
	return slices.Sorted(maps.Keys(scores))
}

func writeCriteria(b *strings.Builder, intent domain.Intent) {
	b.WriteString("---\n\n## Report Metadata\n\n### Data Selection Criteria\n\n| Data Type | Included |\n|-----------|----------|\n")
	rows := []struct {
		label string
		on    bool
	}{
		{"Precipitation Forecast", intent.NeedsPrecipitationForecast},
		{"Precipitation History", intent.NeedsPrecipitationHistory},
		{"Flood History", intent.NeedsFloodHistory},
		{"SVI Data", intent.NeedsSVIData},
		{"County Information", intent.NeedsCountyInfo},
	}
	for _, r := range rows {
		fmt.Fprintf(b, "| %s | %s |\n", r.label, yesNo(r.on))
	}
	f := intent.FloodEventFilters
	if f.MaxEvents != nil {
		fmt.Fprintf(b, "| Max Flood Events | %d |\n", *f.MaxEvents)
	}
	if f.MaxDistanceMiles != nil {
		fmt.Fprintf(b, "| Max Distance (mi) | %.1f |\n", *f.MaxDistanceMiles)
	}
	if f.RecentOnly {
		b.WriteString("| Recent Events Only | Yes |\n")
	}
	fmt.Fprintf(b, "| SVI Relevance Threshold | %.2f |\n\n", intent.SVIRelevanceThreshold)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

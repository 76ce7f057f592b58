package report

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

const pdfFont = "Helvetica"

type rgb struct{ r, g, b int }

var (
	primary   = rgb{30, 58, 138}
	secondary = rgb{59, 130, 246}
	grayText  = rgb{107, 114, 128}
	stripe    = rgb{249, 250, 251}
	labelFill = rgb{243, 244, 246}
	gridLine  = rgb{209, 213, 219}
)

var (
	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdBold    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdBullet  = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
)

// RenderPDF lays out the same content as Render on Letter pages. Like
// Render it reads only result, and the document dates are set from
// result.CreatedAt.
func RenderPDF(result domain.AskResult) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.SetCreationDate(result.CreatedAt)
	pdf.SetModificationDate(result.CreatedAt)
	pdf.SetTitle("Flood Information Report", true)
	pdf.SetCreator("flood-context-service", true)
	pdf.AliasNbPages("")

	w := &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(pdfFont, "I", 8)
		w.color(grayText)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	w.header(result)
	w.query(result)
	for _, loc := range result.FilteredContext.FilteredData {
		w.location(loc)
	}
	w.metadata(result.FilteredContext.IntentAnalysis)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfWriter struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (w *pdfWriter) color(c rgb) { w.pdf.SetTextColor(c.r, c.g, c.b) }

func (w *pdfWriter) width() float64 {
	pageW, _ := w.pdf.GetPageSize()
	left, _, right, _ := w.pdf.GetMargins()
	return pageW - left - right
}

func (w *pdfWriter) rule(c rgb, thickness float64) {
	left, _, _, _ := w.pdf.GetMargins()
	y := w.pdf.GetY()
	w.pdf.SetDrawColor(c.r, c.g, c.b)
	w.pdf.SetLineWidth(thickness)
	w.pdf.Line(left, y, left+w.width(), y)
	w.pdf.Ln(4)
}

func (w *pdfWriter) section(title string) {
	w.pdf.Ln(2)
	w.pdf.SetFont(pdfFont, "B", 14)
	w.color(primary)
	w.pdf.CellFormat(0, 8, w.tr(title), "", 1, "L", false, 0, "")
	w.color(rgb{})
}

func (w *pdfWriter) subsection(title string) {
	w.pdf.Ln(1)
	w.pdf.SetFont(pdfFont, "B", 11)
	w.color(secondary)
	w.pdf.CellFormat(0, 7, w.tr(title), "", 1, "L", false, 0, "")
	w.color(rgb{})
}

func (w *pdfWriter) text(style string, size float64, s string) {
	w.pdf.SetFont(pdfFont, style, size)
	w.pdf.MultiCell(0, 5, w.tr(s), "", "L", false)
}

func (w *pdfWriter) header(result domain.AskResult) {
	w.pdf.SetFont(pdfFont, "B", 20)
	w.color(primary)
	w.pdf.CellFormat(0, 12, "Flood Information Report", "", 1, "C", false, 0, "")
	w.pdf.SetFont(pdfFont, "I", 9)
	w.color(grayText)
	w.pdf.CellFormat(0, 5, "Generated: "+result.CreatedAt.UTC().Format("January 2, 2006 at 15:04 MST"), "", 1, "C", false, 0, "")
	if result.QueryID != "" {
		w.pdf.CellFormat(0, 5, "Query ID: "+result.QueryID, "", 1, "C", false, 0, "")
	}
	w.color(rgb{})
	w.pdf.Ln(3)
	w.rule(primary, 0.7)
}

func (w *pdfWriter) query(result domain.AskResult) {
	w.section("Query")
	w.text("B", 10, fmt.Sprintf("%q", result.Query))
	w.section("Answer")
	w.text("", 10, plainText(orDefault(result.Answer, "No answer generated.")))
	if h := result.Highlight; h != nil {
		w.pdf.Ln(2)
		w.text("B", 10, fmt.Sprintf("Highlighted county: %s, %s (FIPS %s)", h.CountyName, h.StateName, h.FIPSCode))
	}
}

func (w *pdfWriter) location(loc domain.LocationContext) {
	in := loc.InputLocation
	w.pdf.AddPage()
	w.section("Detailed Data: " + orDefault(in.Name, "Unknown Location"))
	w.text("", 9, fmt.Sprintf("Address: %s\nCoordinates: %.4f, %.4f", orDefault(in.FormattedAddress, "N/A"), in.Latitude, in.Longitude))

	if loc.Status == domain.StatusNoCounty {
		w.text("I", 9, "No county found for this location.")
	}
	if loc.HasCounty() {
		c := loc.County.Value
		w.subsection("County Information")
		w.keyValues([][2]string{
			{"County", c.CountyName},
			{"State", c.StateName},
			{"FIPS Code", c.FIPSCode},
			{"Area (sq mi)", fmt.Sprintf("%.2f", c.AreaSqMi)},
		})
	}
	if loc.FloodEvents.Present {
		w.floodEvents(loc.FloodEvents.Value)
	}
	if loc.SVI.Present {
		w.svi(loc.SVI.Value)
	}
	if loc.PrecipitationForecast.Present && len(loc.PrecipitationForecast.Value) > 0 {
		w.forecast(loc.PrecipitationForecast.Value)
	}
	if loc.PrecipitationHistory.Present && len(loc.PrecipitationHistory.Value) > 0 {
		w.history(loc.PrecipitationHistory.Value)
	}
	if len(loc.Warnings) > 0 {
		w.subsection("Data Gaps")
		for _, gap := range loc.Warnings {
			w.text("", 9, "- "+gap)
		}
	}
}

func (w *pdfWriter) floodEvents(events []domain.FloodEvent) {
	w.subsection(fmt.Sprintf("Historical Flood Events (%d events)", len(events)))
	if len(events) == 0 {
		w.text("I", 9, "No flood events recorded.")
		return
	}
	rows := make([][]string, 0, MaxFloodRows)
	for _, e := range events[:min(len(events), MaxFloodRows)] {
		addr := "N/A"
		if e.NearestAddress != nil {
			addr = truncate(*e.NearestAddress, 40)
		}
		rows = append(rows, []string{
			e.Date.Format(time.DateOnly), e.EventType, fmt.Sprintf("%.2f", e.DistanceFromQueryMiles),
			orDefault(e.WarningZone, "N/A"), addr,
		})
	}
	w.table([]string{"Date", "Type", "Distance (mi)", "Warning Zone", "Nearest Address"},
		[]float64{0.16, 0.15, 0.15, 0.15, 0.39}, rows, primary)
	if len(events) > MaxFloodRows {
		w.text("I", 8, fmt.Sprintf("Showing %d of %d total events", MaxFloodRows, len(events)))
	}
}

func (w *pdfWriter) svi(svi *domain.SVIRecord) {
	w.subsection("Social Vulnerability Index (SVI)")
	if svi == nil {
		w.text("I", 9, "No SVI record for this county.")
		return
	}
	if r := svi.OverallRanking; r.National != nil || r.State != nil {
		w.text("", 9, fmt.Sprintf("Overall rankings: national %s, state %s", percentile(r.National), percentile(r.State)))
		w.pdf.Ln(1)
	}
	if len(svi.Themes) > 0 {
		w.text("B", 9, "Theme Rankings")
		w.table([]string{"Theme", "Percentile"}, []float64{0.7, 0.3}, scoreRows(svi.Themes), secondary)
	}
	if len(svi.Variables) > 0 {
		w.text("B", 9, fmt.Sprintf("Key Variables (%d selected)", len(svi.Variables)))
		w.table([]string{"Variable", "Percentile"}, []float64{0.7, 0.3}, scoreRows(svi.Variables), secondary)
	}
}

func (w *pdfWriter) forecast(points []domain.ForecastPoint) {
	w.subsection(fmt.Sprintf("Precipitation Forecast (%d hours)", len(points)))
	rows := make([][]string, 0, MaxForecastHours)
	for _, p := range points[:min(len(points), MaxForecastHours)] {
		rows = append(rows, []string{
			p.Time.UTC().Format("Jan 2 15:04"), fmt.Sprintf("%.1f%%", p.PrecipitationProbabilityPct),
			fmt.Sprintf("%.2f", p.PrecipitationAmountIn), orDefault(p.Condition, "N/A"),
		})
	}
	w.table([]string{"Time (UTC)", "Probability", "Amount (in)", "Condition"}, []float64{0.22, 0.18, 0.18, 0.42}, rows, primary)
}

func (w *pdfWriter) history(history []domain.PrecipitationRecord) {
	recent := recentHistory(history)
	w.subsection(fmt.Sprintf("Recent Precipitation History (%d months)", len(recent)))
	rows := make([][]string, 0, len(recent))
	for _, r := range recent {
		rows = append(rows, []string{fmt.Sprintf("%d-%02d", r.Year, r.Month), fmt.Sprintf("%.2f", r.Inches)})
	}
	w.table([]string{"Year-Month", "Precipitation (in)"}, []float64{0.35, 0.35}, rows, primary)
}

func (w *pdfWriter) metadata(intent domain.Intent) {
	w.pdf.AddPage()
	w.section("Report Metadata")
	w.subsection("Data Selection Criteria")
	rows := [][2]string{
		{"Precipitation Forecast", yesNo(intent.NeedsPrecipitationForecast)},
		{"Precipitation History", yesNo(intent.NeedsPrecipitationHistory)},
		{"Flood History", yesNo(intent.NeedsFloodHistory)},
		{"SVI Data", yesNo(intent.NeedsSVIData)},
		{"County Information", yesNo(intent.NeedsCountyInfo)},
	}
	if m := intent.FloodEventFilters.MaxEvents; m != nil {
		rows = append(rows, [2]string{"Max Flood Events", fmt.Sprint(*m)})
	}
	if d := intent.FloodEventFilters.MaxDistanceMiles; d != nil {
		rows = append(rows, [2]string{"Max Distance (mi)", fmt.Sprintf("%.1f", *d)})
	}
	if intent.FloodEventFilters.RecentOnly {
		rows = append(rows, [2]string{"Recent Events Only", "Yes"})
	}
	rows = append(rows, [2]string{"SVI Relevance Threshold", fmt.Sprintf("%.2f", intent.SVIRelevanceThreshold)})
	w.keyValues(rows)

	w.pdf.Ln(4)
	w.text("B", 9, "Disclaimer")
	w.text("", 9, plainText(strings.TrimPrefix(disclaimer, "### Disclaimer\n\n")))
}

// keyValues draws a two-column table with shaded labels.
func (w *pdfWriter) keyValues(rows [][2]string) {
	total := w.width()
	w.pdf.SetDrawColor(gridLine.r, gridLine.g, gridLine.b)
	w.pdf.SetLineWidth(0.2)
	for _, row := range rows {
		w.pdf.SetFont(pdfFont, "B", 9)
		w.pdf.SetFillColor(labelFill.r, labelFill.g, labelFill.b)
		w.pdf.CellFormat(total*0.35, 7, w.tr(row[0]), "1", 0, "L", true, 0, "")
		w.pdf.SetFont(pdfFont, "", 9)
		w.pdf.CellFormat(total*0.65, 7, w.tr(row[1]), "1", 1, "L", false, 0, "")
	}
	w.pdf.Ln(2)
}

// table draws a header row in head and striped body rows. widths are
// fractions of the printable width.
func (w *pdfWriter) table(header []string, widths []float64, rows [][]string, head rgb) {
	total := w.width()
	w.pdf.SetDrawColor(gridLine.r, gridLine.g, gridLine.b)
	w.pdf.SetLineWidth(0.2)

	w.pdf.SetFont(pdfFont, "B", 9)
	w.pdf.SetFillColor(head.r, head.g, head.b)
	w.pdf.SetTextColor(255, 255, 255)
	for i, h := range header {
		w.pdf.CellFormat(total*widths[i], 7, w.tr(h), "1", 0, "L", true, 0, "")
	}
	w.pdf.Ln(-1)

	w.color(rgb{})
	w.pdf.SetFont(pdfFont, "", 8.5)
	for n, row := range rows {
		fill := n%2 == 1
		w.pdf.SetFillColor(stripe.r, stripe.g, stripe.b)
		for i, cell := range row {
			w.pdf.CellFormat(total*widths[i], 6, w.tr(cell), "1", 0, "L", fill, 0, "")
		}
		w.pdf.Ln(-1)
	}
	w.pdf.Ln(2)
}

func scoreRows(scores map[string]float64) [][]string {
	rows := make([][]string, 0, len(scores))
	for _, name := range sortedKeys(scores) {
		rows = append(rows, []string{name, fmt.Sprintf("%.2f", scores[name])})
	}
	return rows
}

func percentile(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}

// plainText drops Markdown markup the core fonts cannot show.
func plainText(s string) string {
	s = mdHeading.ReplaceAllString(s, "")
	s = mdBold.ReplaceAllString(s, "$1")
	s = mdBullet.ReplaceAllString(s, "- ")
	s = strings.ReplaceAll(s, "`", "")
	return strings.TrimSpace(s)
}

package export

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Comparador-api/internal/application/dto"
	"github.com/jhoicas/Comparador-api/internal/application/ports"
)

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorWhite   = &props.Color{Red: 255, Green: 255, Blue: 255}
	colorGain    = &props.Color{Red: 46, Green: 125, Blue: 50}
	colorLoss    = &props.Color{Red: 198, Green: 40, Blue: 40}
)

var _ ports.ReportExporter = (*PDFExporter)(nil)

// PDFExporter resumen imprimible: cabecera, estadísticas de cartera, sitios comparados
// y la tabla de productos con la media de mercado (el detalle por sitio va en el XLSX).
type PDFExporter struct{}

// NewPDFExporter construye el exportador.
func NewPDFExporter() *PDFExporter { return &PDFExporter{} }

func (e *PDFExporter) ContentType() string { return "application/pdf" }

func (e *PDFExporter) Extension() string { return "pdf" }

func (e *PDFExporter) Export(ctx context.Context, report *dto.ComparisonReportDTO) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 8}).
		WithTitle("Comparación de precios "+report.Country, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(report))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(statsRows(report.Stats)...)
	m.AddRows(sitesRow(report.Sites))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	for i, r := range report.Rows {
		if i%500 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.AddRows(tableRow(r))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func headerRow(report *dto.ComparisonReportDTO) core.Row {
	groups := "Todos los grupos"
	if len(report.Groups) > 0 {
		groups = strings.Join(report.Groups, ", ")
	}
	return row.New(18).Add(
		col.New(7).Add(
			text.New("COMPARACIÓN VENTAS VS. MERCADO", props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("País: %s   |   Orden: %s   |   %s", report.Country, report.Sort, groups), props.Text{
				Size: 8, Top: 10, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(report.Period.StartDate+" - "+report.Period.EndDate, props.Text{
				Style: fontstyle.Bold, Size: 11, Align: align.Right, Top: 1,
			}),
			text.New("Informe "+report.ReportID, props.Text{
				Size: 7, Align: align.Right, Top: 10, Color: colorGray,
			}),
		),
	)
}

func statsRows(st dto.PortfolioStatsDTO) []core.Row {
	cell := func(label, value string, color *props.Color) core.Col {
		return col.New(3).Add(
			text.New(label, props.Text{Size: 7, Color: colorGray, Top: 1}),
			text.New(value, props.Text{Style: fontstyle.Bold, Size: 10, Color: color, Top: 5}),
		)
	}
	return []core.Row{
		row.New(12).Add(
			cell("Productos comparados", strconv.Itoa(st.CountCompared), nil),
			cell("Suma precio mercado", formatMoney(st.SumMarketPrice), nil),
			cell("Ganancia media", formatMoney(st.AvgGain), colorGain),
			cell("Pérdida media", formatMoney(st.AvgLoss), colorLoss),
		),
		row.New(12).Add(
			cell("Suma deltas positivos", formatMoney(st.SumPositiveDelta), colorGain),
			cell("Suma deltas negativos", formatMoney(st.SumNegativeDelta), colorLoss),
			cell("% ganancia", formatPct(st.PctGain), colorGain),
			cell("% pérdida", formatPct(st.PctLoss), colorLoss),
		),
	}
}

func sitesRow(sites []dto.SiteDTO) core.Row {
	names := make([]string, 0, len(sites))
	for _, s := range sites {
		names = append(names, s.Name)
	}
	label := "Sin sitios de comparación configurados"
	if len(names) > 0 {
		label = "Sitios: " + strings.Join(names, " · ")
	}
	return row.New(7).Add(col.New(12).Add(
		text.New(label, props.Text{Size: 7, Color: colorGray, Top: 2}),
	))
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 7, Align: a,
			Color: colorWhite, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("EAN", 2, align.Left),
		h("Descripción", 3, align.Left),
		h("Rank", 1, align.Center),
		h("Precio", 1, align.Right),
		h("Mercado", 1, align.Right),
		h("Delta %", 1, align.Right),
		h("Ofertas", 1, align.Center),
		h("Margen %", 1, align.Right),
		h("Popul.", 1, align.Center),
	).WithStyle(&props.Cell{BackgroundColor: colorPrimary})
}

func tableRow(r dto.ComparisonRowDTO) core.Row {
	left := props.Text{Size: 7, Align: align.Left, Top: 1, Left: 1}
	center := props.Text{Size: 7, Align: align.Center, Top: 1}
	right := props.Text{Size: 7, Align: align.Right, Top: 1, Right: 1}

	delta := right
	if r.MarketDeltaPct.Valid {
		switch {
		case r.MarketDeltaPct.Decimal.IsPositive():
			delta.Color = colorGain
		case r.MarketDeltaPct.Decimal.IsNegative():
			delta.Color = colorLoss
		}
	}

	popularity := "-"
	if r.Popularity != nil && r.Popularity.Rank != nil {
		popularity = "#" + strconv.Itoa(*r.Popularity.Rank)
	}

	return row.New(6).Add(
		col.New(2).Add(text.New(r.Sale.ProductEAN, left)),
		col.New(3).Add(text.New(truncate(r.Sale.Description, 48), left)),
		col.New(1).Add(text.New(strconv.Itoa(r.Sale.RankByQty)+"/"+strconv.Itoa(r.Sale.RankByRevenue), center)),
		col.New(1).Add(text.New(formatMoney(r.Sale.InternalSalePrice), right)),
		col.New(1).Add(text.New(formatNullMoney(r.AverageMarketPrice), right)),
		col.New(1).Add(text.New(formatNullPct(r.MarketDeltaPct), delta)),
		col.New(1).Add(text.New(strconv.Itoa(r.OffersCount), center)),
		col.New(1).Add(text.New(formatNullPct(r.MarginPct), right)),
		col.New(1).Add(text.New(popularity, center)),
	)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// formatMoney dos decimales con separador de miles: 1234567.5 → "1 234 567,50".
func formatMoney(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-2:]

	n := len(intPart)
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(intPart) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, c)
	}
	sign := ""
	if d.Round(2).IsNegative() {
		sign = "-"
	}
	return sign + string(buf) + "," + frac
}

func formatPct(d decimal.Decimal) string {
	return formatMoney(d) + "%"
}

func formatNullMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return notAvailable
	}
	return formatMoney(d.Decimal)
}

func formatNullPct(d decimal.NullDecimal) string {
	if !d.Valid {
		return notAvailable
	}
	return formatPct(d.Decimal)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Package export renderiza los informes de comparación en formatos descargables.
package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/jhoicas/Comparador-api/internal/application/dto"
	"github.com/jhoicas/Comparador-api/internal/application/ports"
)

const (
	sheetRows    = "Comparación"
	sheetSummary = "Resumen"
	notAvailable = "N/A"
)

var _ ports.ReportExporter = (*XLSXExporter)(nil)

// XLSXExporter una hoja con una fila por producto (dos columnas por sitio: precio y
// diferencia %) y una hoja de resumen con las estadísticas de cartera.
type XLSXExporter struct{}

// NewXLSXExporter construye el exportador.
func NewXLSXExporter() *XLSXExporter { return &XLSXExporter{} }

func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *XLSXExporter) Extension() string { return "xlsx" }

func (e *XLSXExporter) Export(ctx context.Context, report *dto.ComparisonReportDTO) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetRows); err != nil {
		return nil, fmt.Errorf("xlsx: renombrar hoja: %w", err)
	}
	styles, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	w := &sheetWriter{f: f, sheet: sheetRows, widths: make(map[int]float64)}

	headers := []string{"EAN", "Grupo", "Marca", "Descripción", "Uds. vendidas", "Facturación",
		"Rank uds.", "Rank fact.", "Precio venta", "Margen %"}
	for _, s := range report.Sites {
		headers = append(headers, s.Name, s.Name+" dif. %")
	}
	headers = append(headers, "Ofertas", "Media mercado", "Delta mercado", "Delta %", "Popularidad", "Δ popularidad")

	for i, h := range headers {
		w.set(i+1, 1, h)
	}
	if err := w.style(1, 1, len(headers), styles.header); err != nil {
		return nil, err
	}

	for i, r := range report.Rows {
		if i%500 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		line := i + 2
		c := 1
		next := func(v any) {
			w.set(c, line, v)
			c++
		}

		next(r.Sale.ProductEAN)
		next(r.Sale.Group)
		next(r.Sale.Brand)
		next(r.Sale.Description)
		next(r.Sale.TotalQtySold)
		next(money(r.Sale.TotalRevenue))
		next(r.Sale.RankByQty)
		next(r.Sale.RankByRevenue)
		next(money(r.Sale.InternalSalePrice))
		next(nullable(r.MarginPct))

		offers := make(map[int64]dto.SiteOfferDTO, len(r.Offers))
		for _, o := range r.Offers {
			offers[o.SiteID] = o
		}
		for _, s := range report.Sites {
			o := offers[s.ID]
			next(nullable(o.Price))
			next(nullable(o.PriceDiffPct))
		}

		next(r.OffersCount)
		next(nullable(r.AverageMarketPrice))
		next(nullable(r.MarketDelta))
		next(nullable(r.MarketDeltaPct))
		if r.Popularity != nil && r.Popularity.Rank != nil {
			next(*r.Popularity.Rank)
		} else {
			next(notAvailable)
		}
		if r.Popularity != nil && r.Popularity.Delta != nil {
			next(*r.Popularity.Delta)
		} else {
			next(notAvailable)
		}

		if err := w.style(1, line, len(headers), styles.data); err != nil {
			return nil, err
		}
	}
	if err := w.autoFit(); err != nil {
		return nil, err
	}
	if err := f.SetPanes(sheetRows, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("xlsx: fijar cabecera: %w", err)
	}

	if err := writeSummary(f, report, styles); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx: escribir libro: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, report *dto.ComparisonReportDTO, styles xlsxStyles) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("xlsx: crear hoja resumen: %w", err)
	}
	w := &sheetWriter{f: f, sheet: sheetSummary, widths: make(map[int]float64)}
	st := report.Stats

	lines := [][2]any{
		{"Informe", report.ReportID},
		{"País", report.Country},
		{"Período", report.Period.StartDate + " → " + report.Period.EndDate},
		{"Orden", report.Sort},
		{"Productos", len(report.Rows)},
		{"Productos comparados", st.CountCompared},
		{"Suma precio mercado", money(st.SumMarketPrice)},
		{"Suma deltas positivos (más baratos)", money(st.SumPositiveDelta)},
		{"Suma deltas negativos (más caros)", money(st.SumNegativeDelta)},
		{"Ganancia media", money(st.AvgGain)},
		{"Pérdida media", money(st.AvgLoss)},
		{"% ganancia", money(st.PctGain)},
		{"% pérdida", money(st.PctLoss)},
	}
	for i, l := range lines {
		w.set(1, i+1, l[0])
		w.set(2, i+1, l[1])
	}
	for i := range lines {
		if err := w.style(1, i+1, 1, styles.header); err != nil {
			return err
		}
		if err := w.style(2, i+1, 2, styles.data); err != nil {
			return err
		}
	}
	return w.autoFit()
}

// ── helpers ───────────────────────────────────────────────────────────────────

type xlsxStyles struct {
	header int
	data   int
}

func newStyles(f *excelize.File) (xlsxStyles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "#000000", Style: 1},
		{Type: "top", Color: "#000000", Style: 1},
		{Type: "bottom", Color: "#000000", Style: 1},
		{Type: "right", Color: "#000000", Style: 1},
	}
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#00467F"}, Pattern: 1},
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return xlsxStyles{}, fmt.Errorf("xlsx: estilo cabecera: %w", err)
	}
	data, err := f.NewStyle(&excelize.Style{
		Border:    border,
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return xlsxStyles{}, fmt.Errorf("xlsx: estilo datos: %w", err)
	}
	return xlsxStyles{header: header, data: data}, nil
}

// sheetWriter escribe celdas por coordenadas y va midiendo el ancho de cada columna.
type sheetWriter struct {
	f      *excelize.File
	sheet  string
	widths map[int]float64
	err    error
}

func (w *sheetWriter) set(col, row int, v any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetCellValue(w.sheet, cell, v); err != nil {
		w.err = err
		return
	}
	if n := float64(len([]rune(fmt.Sprint(v)))); n > w.widths[col] {
		w.widths[col] = n
	}
}

func (w *sheetWriter) style(fromCol, row, toCol, styleID int) error {
	if w.err != nil {
		return fmt.Errorf("xlsx: escribir celda: %w", w.err)
	}
	from, _ := excelize.CoordinatesToCellName(fromCol, row)
	to, _ := excelize.CoordinatesToCellName(toCol, row)
	return w.f.SetCellStyle(w.sheet, from, to, styleID)
}

func (w *sheetWriter) autoFit() error {
	if w.err != nil {
		return fmt.Errorf("xlsx: escribir celda: %w", w.err)
	}
	for col, maxW := range w.widths {
		width := maxW*1.1 + 2
		if width < 8 {
			width = 8
		}
		if width > 60 {
			width = 60
		}
		name, err := excelize.ColumnNumberToName(col)
		if err != nil {
			return err
		}
		if err := w.f.SetColWidth(w.sheet, name, name, width); err != nil {
			return err
		}
	}
	return nil
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func nullable(d decimal.NullDecimal) any {
	if !d.Valid {
		return notAvailable
	}
	return money(d.Decimal)
}

package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Query parameters ──────────────────────────────────────────────────────────

// ComparisonRequest parámetros de GET /api/pricing/ranking y /api/pricing/comparison.
type ComparisonRequest struct {
	Country   string `query:"country"`    // ISO-2, obligatorio
	StartDate string `query:"start_date"` // YYYY-MM-DD; por defecto primer día del mes actual
	EndDate   string `query:"end_date"`   // YYYY-MM-DD; por defecto hoy
	Sort      string `query:"sort"`       // qty|revenue (default qty)
	Groups    string `query:"groups"`     // lista separada por comas
	Page      int    `query:"page"`       // 0 = sin paginación (tope por defecto)
	PageSize  int    `query:"page_size"`  // default 50 si Page > 0
}

// InvalidateCacheRequest parámetros de DELETE /api/pricing/cache.
// Key invalida una entrada concreta; si no, se invalida el ámbito país/período.
type InvalidateCacheRequest struct {
	Country   string `query:"country"`
	StartDate string `query:"start_date"`
	EndDate   string `query:"end_date"`
	Key       string `query:"key"`
}

// InvalidateCacheResponse resultado de la invalidación.
type InvalidateCacheResponse struct {
	Scope   string `json:"scope"`
	Removed int    `json:"removed"`
}

// ── Ranking de ventas ─────────────────────────────────────────────────────────

// SalesFactDTO fila del ranking de ventas.
type SalesFactDTO struct {
	ProductEAN        string              `json:"product_ean"`
	Group             string              `json:"group,omitempty"`
	Brand             string              `json:"brand,omitempty"`
	Description       string              `json:"description,omitempty"`
	InternalSalePrice decimal.Decimal     `json:"internal_sale_price"`
	CostPrice         decimal.NullDecimal `json:"cost_price"`
	PurchasePriceHT   decimal.NullDecimal `json:"purchase_price_ht"`
	TotalQtySold      int64               `json:"total_qty_sold"`
	TotalRevenue      decimal.Decimal     `json:"total_revenue"`
	RankByQty         int                 `json:"rank_by_qty"`     // 1 = más unidades
	RankByRevenue     int                 `json:"rank_by_revenue"` // 1 = más facturación
}

// RankingReportDTO respuesta de GET /api/pricing/ranking.
type RankingReportDTO struct {
	Country string         `json:"country"`
	Period  PeriodDTO      `json:"period"`
	Sort    string         `json:"sort"`
	Groups  []string       `json:"groups"`
	Items   []SalesFactDTO `json:"items"`
	Page    *PageDTO       `json:"page,omitempty"`
}

// ── Comparación con el mercado ────────────────────────────────────────────────

// SiteDTO sitio de la competencia con su nombre de presentación.
type SiteDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SiteOfferDTO precio de un sitio para una fila. Price nulo = sin oferta ("N/A").
type SiteOfferDTO struct {
	SiteID       int64               `json:"site_id"`
	SiteName     string              `json:"site_name"`
	Price        decimal.NullDecimal `json:"price"`
	PriceDiff    decimal.NullDecimal `json:"price_diff"`     // oferta - precio propio
	PriceDiffPct decimal.NullDecimal `json:"price_diff_pct"` // % sobre precio propio
	ProductURL   string              `json:"product_url,omitempty"`
	ProductName  string              `json:"product_name,omitempty"`
	Vendor       string              `json:"vendor,omitempty"`
}

// PopularityDTO posición en el ranking externo. Delta > 0 = el producto sube.
type PopularityDTO struct {
	Rank           *int   `json:"rank"`
	PreviousRank   *int   `json:"previous_rank"`
	Delta          *int   `json:"delta"`
	RelativeDemand string `json:"relative_demand,omitempty"`
}

// ComparisonRowDTO fila del informe de comparación.
type ComparisonRowDTO struct {
	Sale               SalesFactDTO        `json:"sale"`
	Offers             []SiteOfferDTO      `json:"offers"`
	OffersCount        int                 `json:"offers_count"`
	AverageMarketPrice decimal.NullDecimal `json:"average_market_price"`
	MarketDelta        decimal.NullDecimal `json:"market_delta"`     // mercado - precio propio
	MarketDeltaPct     decimal.NullDecimal `json:"market_delta_pct"` // % sobre precio propio
	MarginPct          decimal.NullDecimal `json:"margin_pct"`       // margen sobre compra HT
	Popularity         *PopularityDTO      `json:"popularity"`       // null si la API no respondió
}

// PortfolioStatsDTO resumen de cartera. Ganancia = somos más baratos que el mercado.
type PortfolioStatsDTO struct {
	SumMarketPrice   decimal.Decimal `json:"sum_market_price"`
	SumPositiveDelta decimal.Decimal `json:"sum_positive_delta"`
	SumNegativeDelta decimal.Decimal `json:"sum_negative_delta"`
	CountCompared    int             `json:"count_compared"`
	AvgGain          decimal.Decimal `json:"avg_gain"`
	AvgLoss          decimal.Decimal `json:"avg_loss"`
	PctGain          decimal.Decimal `json:"pct_gain"`
	PctLoss          decimal.Decimal `json:"pct_loss"`
}

// Ámbito de Stats en ComparisonReportDTO.
const (
	StatsScopeAll  = "all"  // todas las filas comparadas del periodo
	StatsScopePage = "page" // solo las filas de la página devuelta
)

// ComparisonReportDTO respuesta de GET /api/pricing/comparison y entrada de los exportadores.
// Con paginación Stats se calcula sobre las filas de la página, no sobre la cartera
// completa; StatsScope lo indica.
type ComparisonReportDTO struct {
	ReportID   string             `json:"report_id"`
	Country    string             `json:"country"`
	Period     PeriodDTO          `json:"period"`
	Sort       string             `json:"sort"`
	Groups     []string           `json:"groups"`
	Sites      []SiteDTO          `json:"sites"`
	Rows       []ComparisonRowDTO `json:"rows"`
	Stats      PortfolioStatsDTO  `json:"stats"`
	StatsScope string             `json:"stats_scope"` // "all" o "page"
	Page       *PageDTO           `json:"page,omitempty"`
	ComputedAt time.Time          `json:"computed_at"`
}

package entity

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// SiteComparison resultado de un sitio para una fila. Offer nil = sitio sin oferta.
// PriceDiff y PriceDiffPct solo son válidos si ambos precios son estrictamente positivos.
type SiteComparison struct {
	SiteID       int64
	Offer        *CompetitorOffer
	PriceDiff    decimal.NullDecimal // oferta - precio propio
	PriceDiffPct decimal.NullDecimal // PriceDiff / precio propio * 100
}

// ComparisonRow un SalesFact cruzado con los precios de la competencia.
// Sites sigue el orden de los sitios de comparación solicitados.
type ComparisonRow struct {
	Sale               SalesFact
	Sites              []SiteComparison
	OffersCount        int                 // ofertas con precio > 0
	AverageMarketPrice decimal.NullDecimal // media de las ofertas presentes
	MarketDelta        decimal.NullDecimal // AverageMarketPrice - precio propio
	MarketDeltaPct     decimal.NullDecimal // MarketDelta / precio propio * 100
	MarginPct          decimal.NullDecimal // (precio propio - compra HT) / precio propio * 100
	Popularity         *PopularityRank
}

// OfferFor devuelve la oferta del sitio o nil si no la hay.
func (r ComparisonRow) OfferFor(siteID int64) *CompetitorOffer {
	for _, s := range r.Sites {
		if s.SiteID == siteID {
			return s.Offer
		}
	}
	return nil
}

// Compared indica si la fila entra en las estadísticas de cartera.
func (r ComparisonRow) Compared() bool {
	return r.MarketDelta.Valid
}

// PortfolioStats acumulado sobre las filas con MarketDelta no nulo.
//
// Convención de signo: delta = mercado - precio propio.
//   - delta > 0: somos más baratos que el mercado → "ganancia" (SumPositiveDelta).
//   - delta < 0: somos más caros que el mercado → "pérdida" (SumNegativeDelta).
//
// La suma es conmutativa: el resultado no depende del orden de las filas.
type PortfolioStats struct {
	SumMarketPrice   decimal.Decimal
	SumPositiveDelta decimal.Decimal
	SumNegativeDelta decimal.Decimal
	CountCompared    int

	AvgGain decimal.Decimal // |SumPositiveDelta| / CountCompared
	AvgLoss decimal.Decimal // |SumNegativeDelta| / CountCompared
	PctGain decimal.Decimal // ((SumMarketPrice + SumPositiveDelta) / SumMarketPrice - 1) * 100
	PctLoss decimal.Decimal // ((SumMarketPrice + SumNegativeDelta) / SumMarketPrice - 1) * 100
}

// Accumulate suma una fila comparada. Las filas sin MarketDelta se ignoran.
func (s *PortfolioStats) Accumulate(row ComparisonRow) {
	if !row.MarketDelta.Valid || !row.AverageMarketPrice.Valid {
		return
	}
	s.SumMarketPrice = s.SumMarketPrice.Add(row.AverageMarketPrice.Decimal)
	delta := row.MarketDelta.Decimal
	switch {
	case delta.IsPositive():
		s.SumPositiveDelta = s.SumPositiveDelta.Add(delta)
	case delta.IsNegative():
		s.SumNegativeDelta = s.SumNegativeDelta.Add(delta)
	}
	s.CountCompared++
}

// Derive calcula los campos derivados a partir de las sumas (redondeo a 2 decimales).
func (s *PortfolioStats) Derive() {
	s.AvgGain, s.AvgLoss = decimal.Zero, decimal.Zero
	s.PctGain, s.PctLoss = decimal.Zero, decimal.Zero
	if s.CountCompared > 0 {
		n := decimal.NewFromInt(int64(s.CountCompared))
		s.AvgGain = s.SumPositiveDelta.Abs().Div(n).Round(2)
		s.AvgLoss = s.SumNegativeDelta.Abs().Div(n).Round(2)
	}
	if s.SumMarketPrice.IsPositive() {
		s.PctGain = relativeChangePct(s.SumMarketPrice, s.SumPositiveDelta)
		s.PctLoss = relativeChangePct(s.SumMarketPrice, s.SumNegativeDelta)
	}
}

// relativeChangePct ((base + signed) / base - 1) * 100, redondeado a 2 decimales.
func relativeChangePct(base, signed decimal.Decimal) decimal.Decimal {
	return base.Add(signed).Div(base).Sub(decimal.NewFromInt(1)).Mul(hundred).Round(2)
}

// NewPortfolioStats recalcula las estadísticas desde cero sobre rows.
func NewPortfolioStats(rows []ComparisonRow) PortfolioStats {
	var s PortfolioStats
	for _, r := range rows {
		s.Accumulate(r)
	}
	s.Derive()
	return s
}

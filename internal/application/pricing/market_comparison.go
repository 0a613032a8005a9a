package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/Comparador-api/internal/domain/barcode"
	"github.com/jhoicas/Comparador-api/internal/domain/entity"
	"github.com/jhoicas/Comparador-api/internal/domain/repository"
)

const (
	defaultWorkers     = 4
	defaultLookupBatch = 500
)

var hundred = decimal.NewFromInt(100)

// MarketComparisonEngine cruza cada SalesFact con las ofertas de la competencia
// en un conjunto ordenado de sitios y acumula las estadísticas de cartera.
//
// Las consultas de ofertas se hacen por lotes de códigos de barras, en paralelo con
// un máximo de workers lotes simultáneos. El orden de las filas de salida es
// siempre el de entrada.
type MarketComparisonEngine struct {
	offers    repository.CompetitorPriceSource
	workers   int
	batchSize int
}

// NewMarketComparisonEngine construye el motor. Valores <= 0 usan los por defecto.
func NewMarketComparisonEngine(offers repository.CompetitorPriceSource, workers, batchSize int) *MarketComparisonEngine {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if batchSize <= 0 {
		batchSize = defaultLookupBatch
	}
	return &MarketComparisonEngine{offers: offers, workers: workers, batchSize: batchSize}
}

// Compare devuelve una ComparisonRow por fact (mismo orden) y las PortfolioStats
// recalculadas desde cero. Un fallo de la fuente de ofertas es fatal (ErrDataSource).
func (e *MarketComparisonEngine) Compare(
	ctx context.Context,
	facts []entity.SalesFact,
	sites []entity.Site,
) ([]entity.ComparisonRow, entity.PortfolioStats, error) {
	offers, err := e.lookupOffers(ctx, facts, sites)
	if err != nil {
		return nil, entity.PortfolioStats{}, err
	}

	rows := make([]entity.ComparisonRow, 0, len(facts))
	for _, f := range facts {
		rows = append(rows, BuildComparisonRow(f, sites, offers[barcode.Canonicalize(f.ProductEAN)]))
	}
	return rows, entity.NewPortfolioStats(rows), nil
}

// offerIndex código canónico → sitio → oferta.
type offerIndex map[string]map[int64]entity.CompetitorOffer

// lookupOffers consulta las ofertas por lotes. Cada lote escribe en su propia
// posición de results, así que el índice final no depende del orden de finalización.
func (e *MarketComparisonEngine) lookupOffers(
	ctx context.Context,
	facts []entity.SalesFact,
	sites []entity.Site,
) (offerIndex, error) {
	index := make(offerIndex)
	if len(facts) == 0 || len(sites) == 0 {
		return index, nil
	}

	siteIDs := make([]int64, 0, len(sites))
	for _, s := range sites {
		siteIDs = append(siteIDs, s.ID)
	}

	eans := make([]string, 0, len(facts))
	seen := make(map[string]struct{}, len(facts))
	for _, f := range facts {
		if _, ok := seen[f.ProductEAN]; ok {
			continue
		}
		seen[f.ProductEAN] = struct{}{}
		eans = append(eans, f.ProductEAN)
	}
	batches := chunk(eans, e.batchSize)
	results := make([][]entity.CompetitorOffer, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, batch := range batches {
		g.Go(func() error {
			found, err := e.offers.FindByBarcodes(gctx, batch, siteIDs)
			if err != nil {
				return fmt.Errorf("ofertas de la competencia: %w", asDataSourceError(err))
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	wanted := make(map[int64]struct{}, len(siteIDs))
	for _, id := range siteIDs {
		wanted[id] = struct{}{}
	}
	for _, found := range results {
		for _, o := range found {
			if _, ok := wanted[o.SiteID]; !ok {
				continue
			}
			key := barcode.Canonicalize(o.Barcode)
			if key == "" {
				continue
			}
			bySite, ok := index[key]
			if !ok {
				bySite = make(map[int64]entity.CompetitorOffer, len(sites))
				index[key] = bySite
			}
			bySite[o.SiteID] = o
		}
	}
	return index, nil
}

// BuildComparisonRow calcula las diferencias por sitio y la media de mercado de un fact.
//
// Reglas:
//   - Diferencia por sitio solo si precio propio y oferta son > 0.
//   - La media de mercado usa solo las ofertas con precio > 0; sin ofertas es nula.
//   - Precio propio <= 0: la fila se devuelve con todos los deltas nulos.
//   - Importes y porcentajes se redondean a 2 decimales en el momento del cálculo.
func BuildComparisonRow(fact entity.SalesFact, sites []entity.Site, offers map[int64]entity.CompetitorOffer) entity.ComparisonRow {
	row := entity.ComparisonRow{
		Sale:  fact,
		Sites: make([]entity.SiteComparison, 0, len(sites)),
	}
	price := fact.InternalSalePrice
	priceOK := price.IsPositive()

	sum := decimal.Zero
	for _, s := range sites {
		sc := entity.SiteComparison{SiteID: s.ID}
		if o, ok := offers[s.ID]; ok {
			offer := o
			if offer.SiteName == "" {
				offer.SiteName = s.Name
			}
			sc.Offer = &offer
			if offer.PriceExclTax.IsPositive() {
				row.OffersCount++
				sum = sum.Add(offer.PriceExclTax)
				if priceOK {
					diff := offer.PriceExclTax.Sub(price).Round(2)
					sc.PriceDiff = decimal.NewNullDecimal(diff)
					sc.PriceDiffPct = decimal.NewNullDecimal(diff.Div(price).Mul(hundred).Round(2))
				}
			}
		}
		row.Sites = append(row.Sites, sc)
	}

	if row.OffersCount > 0 {
		avg := sum.Div(decimal.NewFromInt(int64(row.OffersCount))).Round(2)
		row.AverageMarketPrice = decimal.NewNullDecimal(avg)
		if priceOK {
			delta := avg.Sub(price).Round(2)
			row.MarketDelta = decimal.NewNullDecimal(delta)
			row.MarketDeltaPct = decimal.NewNullDecimal(delta.Div(price).Mul(hundred).Round(2))
		}
	}

	if priceOK && fact.PurchasePriceHT.Valid && fact.PurchasePriceHT.Decimal.IsPositive() {
		margin := price.Sub(fact.PurchasePriceHT.Decimal).Div(price).Mul(hundred).Round(2)
		row.MarginPct = decimal.NewNullDecimal(margin)
	}
	return row
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

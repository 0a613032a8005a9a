// Package pricing contiene el motor de comparación ventas vs. mercado:
// ranking de ventas, cruce con precios de la competencia, popularidad externa
// y el caso de uso que los orquesta con caché.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Comparador-api/internal/domain"
	"github.com/jhoicas/Comparador-api/internal/domain/entity"
	"github.com/jhoicas/Comparador-api/internal/domain/repository"
)

// DefaultLimit tope de filas cuando la consulta no está paginada.
const DefaultLimit = 100

// AggregateParams parámetros del ranking de ventas.
type AggregateParams struct {
	Country string
	Period  entity.Period
	Sort    entity.SortMetric
	Groups  []string // vacío = sin filtro
	Limit   int      // 0 = tope por defecto; < 0 = sin tope (paginación/exportación)
}

// RankedSalesAggregator convierte las ventas crudas en una tabla deduplicada por
// código de barras con dos rankings independientes (unidades y facturación).
//
// Los rangos se calculan sobre el conjunto completo del país/período, antes del
// filtro de grupos: un producto conserva su posición global aunque se filtre por grupo.
// Desempate: mayor métrica primero, luego código de barras ascendente.
type RankedSalesAggregator struct {
	source       repository.SalesFactSource
	defaultLimit int
}

// NewRankedSalesAggregator construye el agregador. defaultLimit <= 0 usa DefaultLimit.
func NewRankedSalesAggregator(source repository.SalesFactSource, defaultLimit int) *RankedSalesAggregator {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &RankedSalesAggregator{source: source, defaultLimit: defaultLimit}
}

// Aggregate devuelve los SalesFact filtrados y ordenados por el rango de la métrica elegida.
// Un fallo de la fuente se propaga como domain.ErrDataSource; nunca devuelve rangos parciales.
func (a *RankedSalesAggregator) Aggregate(ctx context.Context, p AggregateParams) ([]entity.SalesFact, error) {
	if strings.TrimSpace(p.Country) == "" {
		return nil, fmt.Errorf("%w: country es obligatorio", domain.ErrInvalidInput)
	}

	records, err := a.source.QuerySales(ctx, p.Country, p.Period.Start, p.Period.End)
	if err != nil {
		return nil, fmt.Errorf("ranking de ventas: %w", asDataSourceError(err))
	}

	facts := consolidate(records)
	assignRanks(facts)

	filtered := filterGroups(facts, p.Groups)
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Rank(p.Sort) < filtered[j].Rank(p.Sort)
	})

	limit := p.Limit
	if limit == 0 {
		limit = a.defaultLimit
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// consolidate agrupa por código de barras conservando el orden de primera aparición.
// Cantidades y facturación se suman; el precio es el primero estrictamente positivo
// y los textos el primero no vacío. Las filas sin código de barras se descartan.
func consolidate(records []repository.SalesRecord) []entity.SalesFact {
	index := make(map[string]int, len(records))
	facts := make([]entity.SalesFact, 0, len(records))

	for _, r := range records {
		ean := strings.TrimSpace(r.Barcode)
		if ean == "" {
			continue
		}
		i, ok := index[ean]
		if !ok {
			index[ean] = len(facts)
			facts = append(facts, entity.SalesFact{
				ProductEAN:        ean,
				Group:             strings.TrimSpace(r.Group),
				Brand:             strings.TrimSpace(r.Brand),
				Description:       strings.TrimSpace(r.Description),
				InternalSalePrice: positiveOrZero(r.Price),
				CostPrice:         r.CostPrice,
				PurchasePriceHT:   r.PurchasePriceHT,
				TotalQtySold:      nonNegative(r.Qty),
				TotalRevenue:      positiveOrZero(r.Revenue),
			})
			continue
		}

		f := &facts[i]
		f.TotalQtySold += nonNegative(r.Qty)
		f.TotalRevenue = f.TotalRevenue.Add(positiveOrZero(r.Revenue))
		if !f.InternalSalePrice.IsPositive() && r.Price.IsPositive() {
			f.InternalSalePrice = r.Price
		}
		if f.Group == "" {
			f.Group = strings.TrimSpace(r.Group)
		}
		if f.Brand == "" {
			f.Brand = strings.TrimSpace(r.Brand)
		}
		if f.Description == "" {
			f.Description = strings.TrimSpace(r.Description)
		}
		if !f.CostPrice.Valid {
			f.CostPrice = r.CostPrice
		}
		if !f.PurchasePriceHT.Valid {
			f.PurchasePriceHT = r.PurchasePriceHT
		}
	}
	return facts
}

// assignRanks calcula RankByQty y RankByRevenue: permutaciones de 1..N sin huecos.
func assignRanks(facts []entity.SalesFact) {
	rankBy(facts,
		func(a, b entity.SalesFact) int { return compareInt64(b.TotalQtySold, a.TotalQtySold) },
		func(f *entity.SalesFact, rank int) { f.RankByQty = rank },
	)
	rankBy(facts,
		func(a, b entity.SalesFact) int { return b.TotalRevenue.Cmp(a.TotalRevenue) },
		func(f *entity.SalesFact, rank int) { f.RankByRevenue = rank },
	)
}

func rankBy(facts []entity.SalesFact, cmp func(a, b entity.SalesFact) int, set func(*entity.SalesFact, int)) {
	order := make([]int, len(facts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := facts[order[i]], facts[order[j]]
		if c := cmp(a, b); c != 0 {
			return c < 0
		}
		return a.ProductEAN < b.ProductEAN
	})
	for rank, i := range order {
		set(&facts[i], rank+1)
	}
}

// filterGroups conserva los facts cuyo grupo está en groups. Sin grupos devuelve una copia de todo.
func filterGroups(facts []entity.SalesFact, groups []string) []entity.SalesFact {
	allowed := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" {
			allowed[g] = struct{}{}
		}
	}
	out := make([]entity.SalesFact, 0, len(facts))
	for _, f := range facts {
		if len(allowed) > 0 {
			if _, ok := allowed[f.Group]; !ok {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

// asDataSourceError marca el error como DataSourceFailure salvo cancelaciones del llamador.
func asDataSourceError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, domain.ErrDataSource) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrDataSource, err)
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func positiveOrZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

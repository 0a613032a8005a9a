package pricing_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Comparador-api/internal/application/dto"
	"github.com/jhoicas/Comparador-api/internal/application/ports"
	"github.com/jhoicas/Comparador-api/internal/application/pricing"
	"github.com/jhoicas/Comparador-api/internal/domain"
	"github.com/jhoicas/Comparador-api/internal/domain/entity"
	"github.com/jhoicas/Comparador-api/internal/domain/repository"
	"github.com/jhoicas/Comparador-api/internal/infrastructure/cache"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	sales  *fakeSales
	offers *fakeOffers
	pop    *fakePopularity
	cache  ports.ResultCache
	uc     *pricing.ComparisonUseCase
}

func catalog() []repository.SalesRecord {
	return []repository.SalesRecord{
		sale("3000000000001", "A", 10, "500", "50"),
		sale("3000000000002", "B", 30, "300", "10"),
		sale("3000000000003", "A", 20, "900", "45"),
		sale("3000000000004", "C", 5, "100", "20"),
		sale("3000000000005", "B", 1, "1000", "1000"),
	}
}

func marketOffers() []entity.CompetitorOffer {
	return []entity.CompetitorOffer{
		offer("3000000000001", 1, "60"),
		offer("3000000000001", 2, "40"),
		offer("3000000000002", 1, "12"),
		offer("3000000000003", 2, "40"),
	}
}

// newFixture arma el caso de uso con fakes; withCache usa una caché en memoria real.
func newFixture(withCache bool) *fixture {
	f := &fixture{
		sales: &fakeSales{records: catalog()},
		offers: &fakeOffers{
			offers: marketOffers(),
			sites:  []entity.Site{{ID: 1, Name: "S1"}, {ID: 2, Name: "S2"}},
		},
		pop: &fakePopularity{ranks: []entity.PopularityRank{
			{CanonicalBarcode: "03000000000001", Rank: intPtr(3), PreviousRank: intPtr(5)},
		}},
	}
	if withCache {
		f.cache = cache.NewResultCache(cache.NewMemoryStore(0), nil, nil)
	}
	f.uc = pricing.NewComparisonUseCase(pricing.ComparisonDeps{
		Aggregator: pricing.NewRankedSalesAggregator(f.sales, 0),
		Engine:     pricing.NewMarketComparisonEngine(f.offers, 2, 2),
		Merger:     pricing.NewPopularityMerger(f.pop, time.Second, nil, nil),
		Offers:     f.offers,
		Cache:      f.cache,
		Keys:       pricing.NewKeyBuilder("test"),
		SiteIDs:    []int64{1, 2},
		Now:        func() time.Time { return fixedNow },
	})
	return f
}

func baseRequest() dto.ComparisonRequest {
	return dto.ComparisonRequest{Country: "fr", StartDate: "2026-03-01", EndDate: "2026-03-15"}
}

// reportJSON serializa el informe sin el identificador, que es distinto en cada respuesta.
func reportJSON(t *testing.T, r *dto.ComparisonReportDTO) string {
	t.Helper()
	c := *r
	c.ReportID = ""
	b, err := json.Marshal(c)
	require.NoError(t, err)
	return string(b)
}

// ══════════════════════════════════════════════════════════════════════════════
// Transparencia de la caché
// ══════════════════════════════════════════════════════════════════════════════

func TestGetComparison_CacheTransparente(t *testing.T) {
	ctx := context.Background()
	plain := newFixture(false)
	cached := newFixture(true)

	want, err := plain.uc.GetComparison(ctx, baseRequest())
	require.NoError(t, err)

	miss, err := cached.uc.GetComparison(ctx, baseRequest())
	require.NoError(t, err)
	hit, err := cached.uc.GetComparison(ctx, baseRequest())
	require.NoError(t, err)

	assert.JSONEq(t, reportJSON(t, want), reportJSON(t, miss))
	assert.JSONEq(t, reportJSON(t, want), reportJSON(t, hit))
	assert.Equal(t, int32(1), cached.sales.calls.Load(), "el segundo informe sale de la caché")
	assert.NotEqual(t, miss.ReportID, hit.ReportID)
}

func TestGetComparison_Contenido(t *testing.T) {
	rep, err := newFixture(false).uc.GetComparison(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, "FR", rep.Country)
	assert.Equal(t, dto.PeriodDTO{StartDate: "2026-03-01", EndDate: "2026-03-15"}, rep.Period)
	assert.Equal(t, "qty", rep.Sort)
	assert.Equal(t, []dto.SiteDTO{{ID: 1, Name: "S1"}, {ID: 2, Name: "S2"}}, rep.Sites)
	assert.Nil(t, rep.Page)
	require.Len(t, rep.Rows, 5)

	// orden por unidades: 002 (30), 003 (20), 001 (10), 004 (5), 005 (1)
	assert.Equal(t, "3000000000002", rep.Rows[0].Sale.ProductEAN)
	assert.Equal(t, 1, rep.Rows[0].Sale.RankByQty)
	assert.Equal(t, "3000000000001", rep.Rows[2].Sale.ProductEAN)

	r := rep.Rows[2]
	require.Len(t, r.Offers, 2)
	assert.Equal(t, "50", r.AverageMarketPrice.Decimal.String())
	assert.Equal(t, "0", r.MarketDelta.Decimal.String())
	require.NotNil(t, r.Popularity)
	assert.Equal(t, 3, *r.Popularity.Rank)
	assert.Equal(t, 2, *r.Popularity.Delta)

	assert.False(t, rep.Rows[3].AverageMarketPrice.Valid)
	assert.Nil(t, rep.Rows[3].Popularity)
	assert.Equal(t, 3, rep.Stats.CountCompared)
	assert.Equal(t, dto.StatsScopeAll, rep.StatsScope)
}

func TestGetComparison_GruposEnCualquierOrdenCompartenEntrada(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)

	req := baseRequest()
	req.Groups = "B,A"
	first, err := f.uc.GetComparison(ctx, req)
	require.NoError(t, err)

	req.Groups = " A , B ,A"
	second, err := f.uc.GetComparison(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.sales.calls.Load())
	assert.Equal(t, []string{"A", "B"}, second.Groups)
	assert.JSONEq(t, reportJSON(t, first), reportJSON(t, second))
	assert.Len(t, second.Rows, 4)
}

func TestGetComparison_PopularidadDegradadaNoSeCachea(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	f.pop.err = errors.New("quota exceeded")

	first, err := f.uc.GetComparison(ctx, baseRequest())
	require.NoError(t, err)
	for _, r := range first.Rows {
		assert.Nil(t, r.Popularity)
	}

	f.pop.err = nil
	second, err := f.uc.GetComparison(ctx, baseRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.sales.calls.Load())
	require.NotNil(t, second.Rows[2].Popularity)
	assert.Equal(t, 3, *second.Rows[2].Popularity.Rank)
}

func TestGetComparison_ErroresNoSeCachean(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	f.sales.err = errors.New("connection refused")

	_, err := f.uc.GetComparison(ctx, baseRequest())
	assert.ErrorIs(t, err, domain.ErrDataSource)

	f.sales.err = nil
	rep, err := f.uc.GetComparison(ctx, baseRequest())
	require.NoError(t, err)
	assert.Len(t, rep.Rows, 5)
	assert.Equal(t, int32(2), f.sales.calls.Load())
}

func TestGetComparison_ErrorDeSitiosEsDataSource(t *testing.T) {
	f := newFixture(false)
	f.offers.sitesErr = errors.New("relation competitor_sites does not exist")

	_, err := f.uc.GetComparison(context.Background(), baseRequest())
	assert.ErrorIs(t, err, domain.ErrDataSource)
}

// ══════════════════════════════════════════════════════════════════════════════
// Paginación y exportación
// ══════════════════════════════════════════════════════════════════════════════

func TestGetComparison_Paginado(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)

	req := baseRequest()
	req.Page, req.PageSize = 2, 2
	rep, err := f.uc.GetComparison(ctx, req)
	require.NoError(t, err)

	require.Len(t, rep.Rows, 2)
	assert.Equal(t, "3000000000001", rep.Rows[0].Sale.ProductEAN)
	assert.Equal(t, "3000000000004", rep.Rows[1].Sale.ProductEAN)
	assert.Equal(t, &dto.PageDTO{Page: 2, PageSize: 2, Total: 5, TotalPages: 3}, rep.Page)
	// estadísticas sobre las filas de la página
	assert.Equal(t, 1, rep.Stats.CountCompared)
	assert.Equal(t, dto.StatsScopePage, rep.StatsScope)

	req.Page = 3
	last, err := f.uc.GetComparison(ctx, req)
	require.NoError(t, err)
	assert.Len(t, last.Rows, 1)

	req.Page = 10
	empty, err := f.uc.GetComparison(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, empty.Rows)
	assert.Equal(t, 5, empty.Page.Total)

	assert.Equal(t, int32(1), f.sales.calls.Load(), "la tabla completa se calcula una vez para todas las páginas")
}

func TestGetComparison_PageSizePorDefectoYTope(t *testing.T) {
	f := newFixture(false)

	q, err := f.uc.ParseRequest(dto.ComparisonRequest{Country: "FR", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 50, q.PageSize)

	q, err = f.uc.ParseRequest(dto.ComparisonRequest{Country: "FR", Page: 1, PageSize: 10_000})
	require.NoError(t, err)
	assert.Equal(t, 500, q.PageSize)

	q, err = f.uc.ParseRequest(dto.ComparisonRequest{Country: "FR", PageSize: 20})
	require.NoError(t, err)
	assert.False(t, q.Paginated())
	assert.Zero(t, q.PageSize)
}

func TestExportComparison_SinTope(t *testing.T) {
	f := newFixture(false)
	var records []repository.SalesRecord
	for i := 0; i < 150; i++ {
		records = append(records, sale(fmt.Sprintf("%013d", i+1), "", int64(150-i), "10", "1"))
	}
	f.sales.records = records

	top, err := f.uc.GetComparison(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Len(t, top.Rows, pricing.DefaultLimit)

	req := baseRequest()
	req.Page, req.PageSize = 2, 10
	full, err := f.uc.ExportComparison(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, full.Rows, 150)
	assert.Nil(t, full.Page)
}

func TestGetRanking(t *testing.T) {
	f := newFixture(false)
	req := baseRequest()
	req.Sort = "revenue"

	rep, err := f.uc.GetRanking(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, rep.Items, 5)
	assert.Equal(t, "revenue", rep.Sort)
	assert.Equal(t, "3000000000005", rep.Items[0].ProductEAN)
	assert.Equal(t, 1, rep.Items[0].RankByRevenue)
	assert.Equal(t, 5, rep.Items[0].RankByQty)
	assert.Equal(t, []string{}, rep.Groups)
}

// ══════════════════════════════════════════════════════════════════════════════
// Validación
// ══════════════════════════════════════════════════════════════════════════════

func TestParseRequest_Invalidos(t *testing.T) {
	uc := newFixture(false).uc
	cases := map[string]dto.ComparisonRequest{
		"sin país":         {},
		"país ISO-3":       {Country: "FRA"},
		"país con dígitos": {Country: "F1"},
		"sort desconocido": {Country: "FR", Sort: "price"},
		"fecha ilegible":   {Country: "FR", StartDate: "01/03/2026"},
		"inicio tras fin":  {Country: "FR", StartDate: "2026-03-10", EndDate: "2026-03-01"},
		"página negativa":  {Country: "FR", Page: -1},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := uc.ParseRequest(req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestParseRequest_PeriodoPorDefecto(t *testing.T) {
	q, err := newFixture(false).uc.ParseRequest(dto.ComparisonRequest{Country: " de "})
	require.NoError(t, err)

	assert.Equal(t, "DE", q.Country)
	assert.Equal(t, "2026-03-01", q.Period.StartDate())
	assert.Equal(t, "2026-03-15", q.Period.EndDate())
	assert.Equal(t, entity.SortByQty, q.Sort)
	assert.Empty(t, q.Groups)
}

// ══════════════════════════════════════════════════════════════════════════════
// Invalidación
// ══════════════════════════════════════════════════════════════════════════════

func TestInvalidateCache_PorPais(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)

	fr := baseRequest()
	de := baseRequest()
	de.Country = "DE"
	_, err := f.uc.GetComparison(ctx, fr)
	require.NoError(t, err)
	_, err = f.uc.GetComparison(ctx, de)
	require.NoError(t, err)
	require.Equal(t, int32(2), f.sales.calls.Load())

	resp, err := f.uc.InvalidateCache(ctx, dto.InvalidateCacheRequest{Country: "fr"})
	require.NoError(t, err)
	assert.Equal(t, "test:FR:", resp.Scope)
	assert.Equal(t, 2, resp.Removed, "comparación y ranking")

	_, err = f.uc.GetComparison(ctx, fr)
	require.NoError(t, err)
	_, err = f.uc.GetComparison(ctx, de)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.sales.calls.Load(), "solo FR se recalcula")
}

func TestInvalidateCache_PorPeriodo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	_, err := f.uc.GetComparison(ctx, baseRequest())
	require.NoError(t, err)

	resp, err := f.uc.InvalidateCache(ctx, dto.InvalidateCacheRequest{
		Country: "FR", StartDate: "2026-02-01", EndDate: "2026-02-28",
	})
	require.NoError(t, err)
	assert.Equal(t, "test:FR:2026-02-01_2026-02-28:", resp.Scope)
	assert.Zero(t, resp.Removed)

	resp, err = f.uc.InvalidateCache(ctx, dto.InvalidateCacheRequest{
		Country: "FR", StartDate: "2026-03-01", EndDate: "2026-03-15",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Removed)
}

func TestInvalidateCache_Todo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	_, err := f.uc.GetComparison(ctx, baseRequest())
	require.NoError(t, err)

	resp, err := f.uc.InvalidateCache(ctx, dto.InvalidateCacheRequest{})
	require.NoError(t, err)
	assert.Equal(t, "test:", resp.Scope)
	assert.Equal(t, 2, resp.Removed)
}

func TestInvalidateCache_ClaveConcreta(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	_, err := f.uc.GetComparison(ctx, baseRequest())
	require.NoError(t, err)

	q, err := f.uc.ParseRequest(baseRequest())
	require.NoError(t, err)
	key := pricing.NewKeyBuilder("test").Query(pricing.KindComparison, q)

	resp, err := f.uc.InvalidateCache(ctx, dto.InvalidateCacheRequest{Key: key})
	require.NoError(t, err)
	assert.Equal(t, key, resp.Scope)

	_, err = f.uc.GetComparison(ctx, baseRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.sales.calls.Load(), "el ranking sigue en caché")
}

func TestInvalidateCache_Invalidos(t *testing.T) {
	uc := newFixture(true).uc
	cases := map[string]dto.InvalidateCacheRequest{
		"clave ajena":        {Key: "otro:FR:x"},
		"período sin país":   {StartDate: "2026-03-01", EndDate: "2026-03-02"},
		"período incompleto": {Country: "FR", StartDate: "2026-03-01"},
		"país inválido":      {Country: "France"},
		"fecha ilegible":     {Country: "FR", StartDate: "ayer", EndDate: "hoy"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := uc.InvalidateCache(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestInvalidateCache_SinCache(t *testing.T) {
	resp, err := newFixture(false).uc.InvalidateCache(context.Background(), dto.InvalidateCacheRequest{Country: "FR"})
	require.NoError(t, err)
	assert.Equal(t, "test:FR:", resp.Scope)
	assert.Zero(t, resp.Removed)
}

// ══════════════════════════════════════════════════════════════════════════════
// Popularidad cacheada
// ══════════════════════════════════════════════════════════════════════════════

func TestCachedPopularitySource(t *testing.T) {
	ctx := context.Background()
	src := &fakePopularity{ranks: []entity.PopularityRank{{CanonicalBarcode: "00000000000111", Rank: intPtr(1)}}}
	c := cache.NewResultCache(cache.NewMemoryStore(0), nil, nil)
	cachedSrc := pricing.NewCachedPopularitySource(src, c, pricing.NewKeyBuilder("test"), time.Hour, nil)

	first, err := cachedSrc.Search(ctx, []string{"111", "222"}, "FR")
	require.NoError(t, err)
	second, err := cachedSrc.Search(ctx, []string{"0222", "111"}, "FR")
	require.NoError(t, err)

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"00000000000111", "00000000000222"}, src.lastArgs)

	_, err = cachedSrc.Search(ctx, []string{"111"}, "DE")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load(), "otro país, otra entrada")
}

func TestCachedPopularitySource_ErrorNoSeCachea(t *testing.T) {
	ctx := context.Background()
	src := &fakePopularity{err: errors.New("401")}
	c := cache.NewResultCache(cache.NewMemoryStore(0), nil, nil)
	cachedSrc := pricing.NewCachedPopularitySource(src, c, pricing.NewKeyBuilder("test"), time.Hour, nil)

	_, err := cachedSrc.Search(ctx, []string{"111"}, "FR")
	require.Error(t, err)
	_, err = cachedSrc.Search(ctx, []string{"111"}, "FR")
	require.Error(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestNewCachedPopularitySource_SinFuenteNiCache(t *testing.T) {
	assert.Nil(t, pricing.NewCachedPopularitySource(nil, nil, pricing.NewKeyBuilder(""), 0, nil))

	src := &fakePopularity{}
	assert.Same(t, src, pricing.NewCachedPopularitySource(src, nil, pricing.NewKeyBuilder(""), 0, nil))
}

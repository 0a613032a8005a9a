package pricing_test

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Comparador-api/internal/application/pricing"
	"github.com/jhoicas/Comparador-api/internal/domain"
	"github.com/jhoicas/Comparador-api/internal/domain/entity"
	"github.com/jhoicas/Comparador-api/internal/domain/repository"
)

func aggregate(t *testing.T, src *fakeSales, p pricing.AggregateParams) []entity.SalesFact {
	t.Helper()
	if p.Country == "" {
		p.Country = "FR"
	}
	if p.Period.Start.IsZero() {
		p.Period = period("2024-01-01", "2024-01-31")
	}
	facts, err := pricing.NewRankedSalesAggregator(src, 0).Aggregate(context.Background(), p)
	require.NoError(t, err)
	return facts
}

func TestAggregate_UnaVentaRangoUno(t *testing.T) {
	src := &fakeSales{records: []repository.SalesRecord{sale("1234567890123", "", 10, "500", "50")}}

	facts := aggregate(t, src, pricing.AggregateParams{Sort: entity.SortByQty})

	require.Len(t, facts, 1)
	assert.Equal(t, 1, facts[0].RankByQty)
	assert.Equal(t, 1, facts[0].RankByRevenue)
	assert.Equal(t, "FR", src.country)
}

func TestAggregate_EmpateDesempataPorCodigo(t *testing.T) {
	src := &fakeSales{records: []repository.SalesRecord{
		sale("222", "", 5, "100", "20"),
		sale("111", "", 5, "100", "20"),
	}}

	facts := aggregate(t, src, pricing.AggregateParams{Sort: entity.SortByQty})

	require.Len(t, facts, 2)
	assert.Equal(t, "111", facts[0].ProductEAN)
	assert.Equal(t, 1, facts[0].RankByQty)
	assert.Equal(t, "222", facts[1].ProductEAN)
	assert.Equal(t, 2, facts[1].RankByQty)
}

func TestAggregate_ConsolidaPorCodigo(t *testing.T) {
	first := sale("111", "", 3, "30", "0")
	first.Description = "Sérum"
	second := sale("111", "Soins", 2, "20", "10")
	second.Description = "otro texto"

	src := &fakeSales{records: []repository.SalesRecord{first, second, sale("", "X", 99, "999", "1")}}
	facts := aggregate(t, src, pricing.AggregateParams{})

	require.Len(t, facts, 1, "las filas sin código se descartan")
	f := facts[0]
	assert.EqualValues(t, 5, f.TotalQtySold)
	assert.True(t, d("50").Equal(f.TotalRevenue))
	assert.True(t, d("10").Equal(f.InternalSalePrice), "primer precio estrictamente positivo")
	assert.Equal(t, "Sérum", f.Description, "primer texto no vacío")
	assert.Equal(t, "Soins", f.Group)
}

func TestAggregate_CantidadesNegativasCuentanComoCero(t *testing.T) {
	src := &fakeSales{records: []repository.SalesRecord{
		sale("111", "", 4, "40", "10"),
		sale("111", "", -2, "-20", "10"),
	}}
	facts := aggregate(t, src, pricing.AggregateParams{})

	require.Len(t, facts, 1)
	assert.EqualValues(t, 4, facts[0].TotalQtySold)
	assert.True(t, d("40").Equal(facts[0].TotalRevenue))
}

func TestAggregate_RangosSonPermutacion(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var records []repository.SalesRecord
	for i := 0; i < 60; i++ {
		ean := string(rune('A'+i%26)) + string(rune('a'+i/26))
		records = append(records, sale(ean, []string{"A", "B", "C"}[i%3], int64(rng.Intn(10)), strconv.Itoa(rng.Intn(10)), "5"))
	}
	src := &fakeSales{records: records}

	facts := aggregate(t, src, pricing.AggregateParams{Limit: -1})
	n := len(facts)
	require.Equal(t, 60, n)

	for _, rank := range []func(entity.SalesFact) int{
		func(f entity.SalesFact) int { return f.RankByQty },
		func(f entity.SalesFact) int { return f.RankByRevenue },
	} {
		got := make([]int, 0, n)
		for _, f := range facts {
			got = append(got, rank(f))
		}
		sort.Ints(got)
		for i, r := range got {
			assert.Equal(t, i+1, r)
		}
	}
}

func TestAggregate_OrdenDeEntradaNoCambiaRangos(t *testing.T) {
	records := []repository.SalesRecord{
		sale("111", "", 5, "50", "10"),
		sale("222", "", 5, "80", "16"),
		sale("333", "", 9, "50", "5"),
		sale("444", "", 1, "200", "200"),
	}
	base := aggregate(t, &fakeSales{records: records}, pricing.AggregateParams{Limit: -1})

	reversed := make([]repository.SalesRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	again := aggregate(t, &fakeSales{records: reversed}, pricing.AggregateParams{Limit: -1})

	ranks := func(facts []entity.SalesFact) map[string][2]int {
		m := make(map[string][2]int)
		for _, f := range facts {
			m[f.ProductEAN] = [2]int{f.RankByQty, f.RankByRevenue}
		}
		return m
	}
	assert.Equal(t, ranks(base), ranks(again))
}

func TestAggregate_FiltroDeGruposConservaRangoGlobal(t *testing.T) {
	src := &fakeSales{records: []repository.SalesRecord{
		sale("111", "Maquillaje", 50, "500", "10"),
		sale("222", "Soins", 40, "400", "10"),
		sale("333", "Maquillaje", 30, "300", "10"),
		sale("444", "Soins", 20, "200", "10"),
	}}

	facts := aggregate(t, src, pricing.AggregateParams{Groups: []string{"Soins"}})

	require.Len(t, facts, 2)
	assert.Equal(t, "222", facts[0].ProductEAN)
	assert.Equal(t, 2, facts[0].RankByQty)
	assert.Equal(t, "444", facts[1].ProductEAN)
	assert.Equal(t, 4, facts[1].RankByQty)
}

func TestAggregate_OrdenaPorFacturacion(t *testing.T) {
	src := &fakeSales{records: []repository.SalesRecord{
		sale("111", "", 100, "100", "1"),
		sale("222", "", 1, "900", "900"),
	}}

	byRevenue := aggregate(t, src, pricing.AggregateParams{Sort: entity.SortByRevenue})
	assert.Equal(t, "222", byRevenue[0].ProductEAN)

	byQty := aggregate(t, src, pricing.AggregateParams{Sort: entity.SortByQty})
	assert.Equal(t, "111", byQty[0].ProductEAN)
}

func TestAggregate_Limite(t *testing.T) {
	var records []repository.SalesRecord
	for i := 0; i < 150; i++ {
		records = append(records, sale(string(rune(0x4e00+i)), "", int64(i), "1", "1"))
	}
	src := &fakeSales{records: records}

	assert.Len(t, aggregate(t, src, pricing.AggregateParams{}), pricing.DefaultLimit)
	assert.Len(t, aggregate(t, src, pricing.AggregateParams{Limit: 10}), 10)
	assert.Len(t, aggregate(t, src, pricing.AggregateParams{Limit: -1}), 150)
}

func TestAggregate_ErrorDeFuenteEsDataSource(t *testing.T) {
	src := &fakeSales{err: errors.New("connection refused")}
	_, err := pricing.NewRankedSalesAggregator(src, 0).Aggregate(context.Background(), pricing.AggregateParams{
		Country: "FR", Period: period("2024-01-01", "2024-01-31"),
	})
	assert.ErrorIs(t, err, domain.ErrDataSource)
	assert.ErrorContains(t, err, "connection refused")
}

func TestAggregate_CancelacionNoSeReclasifica(t *testing.T) {
	src := &fakeSales{err: context.Canceled}
	_, err := pricing.NewRankedSalesAggregator(src, 0).Aggregate(context.Background(), pricing.AggregateParams{
		Country: "FR", Period: period("2024-01-01", "2024-01-31"),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrDataSource)
}

func TestAggregate_SinPaisEsEntradaInvalida(t *testing.T) {
	_, err := pricing.NewRankedSalesAggregator(&fakeSales{}, 0).Aggregate(context.Background(), pricing.AggregateParams{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

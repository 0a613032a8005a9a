package pricing_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Comparador-api/internal/application/pricing"
	"github.com/jhoicas/Comparador-api/internal/domain/entity"
	"github.com/jhoicas/Comparador-api/pkg/metrics"
)

func rowsFor(eans ...string) []entity.ComparisonRow {
	rows := make([]entity.ComparisonRow, 0, len(eans))
	for _, e := range eans {
		rows = append(rows, entity.ComparisonRow{Sale: fact(e, "10")})
	}
	return rows
}

// ══════════════════════════════════════════════════════════════════════════════
// Degradación
// ══════════════════════════════════════════════════════════════════════════════

func TestMerge_ErrorDeLaFuenteDejaPopularidadNula(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPricingMetrics(reg)
	src := &fakePopularity{err: errors.New("503 Service Unavailable")}
	merger := pricing.NewPopularityMerger(src, time.Second, nil, m)

	rows := rowsFor("111", "222")
	out := merger.Merge(context.Background(), rows, "FR")

	require.Len(t, out, 2)
	for _, r := range out {
		assert.Nil(t, r.Popularity)
	}
	assert.Equal(t, "111", out[0].Sale.ProductEAN)
	expected := `
# HELP pricing_popularity_degraded_total Popularity lookups that failed and were served as null.
# TYPE pricing_popularity_degraded_total counter
pricing_popularity_degraded_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "pricing_popularity_degraded_total"))
}

func TestMerge_TimeoutNoBloquea(t *testing.T) {
	src := &fakePopularity{block: true}
	merger := pricing.NewPopularityMerger(src, 20*time.Millisecond, nil, nil)

	start := time.Now()
	out := merger.Merge(context.Background(), rowsFor("111"), "FR")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Nil(t, out[0].Popularity)
}

func TestMerge_PanicDelClienteSeRecupera(t *testing.T) {
	src := &fakePopularity{panicMsg: "nil map"}
	merger := pricing.NewPopularityMerger(src, time.Second, nil, nil)

	var out []entity.ComparisonRow
	require.NotPanics(t, func() {
		out = merger.Merge(context.Background(), rowsFor("111"), "FR")
	})
	assert.Nil(t, out[0].Popularity)
}

func TestMerge_SinFuenteNoConsulta(t *testing.T) {
	merger := pricing.NewPopularityMerger(nil, 0, nil, nil)
	out := merger.Merge(context.Background(), rowsFor("111"), "FR")
	assert.Nil(t, out[0].Popularity)
}

// ══════════════════════════════════════════════════════════════════════════════
// Cruce
// ══════════════════════════════════════════════════════════════════════════════

func TestMerge_UnaLlamadaConCodigosCanonicos(t *testing.T) {
	src := &fakePopularity{ranks: []entity.PopularityRank{
		{CanonicalBarcode: "00000000000111", Rank: intPtr(12), PreviousRank: intPtr(20)},
		{CanonicalBarcode: "00000000000111", Rank: intPtr(4), PreviousRank: intPtr(3)},
		{CanonicalBarcode: "00000000000999", Rank: intPtr(1)},
	}}
	merger := pricing.NewPopularityMerger(src, time.Second, nil, nil)

	out := merger.Merge(context.Background(), rowsFor("111", "0111", "222"), "FR")

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, []string{"00000000000111", "00000000000222"}, src.lastArgs)

	require.NotNil(t, out[0].Popularity)
	assert.Equal(t, 4, *out[0].Popularity.Rank, "gana el menor rango entre variantes")
	assert.Equal(t, -1, *out[0].Popularity.Delta)
	require.NotNil(t, out[1].Popularity)
	assert.Equal(t, 4, *out[1].Popularity.Rank)
	assert.Nil(t, out[2].Popularity)
}

func TestMerge_NoModificaLasFilasDeEntrada(t *testing.T) {
	src := &fakePopularity{ranks: []entity.PopularityRank{{CanonicalBarcode: "111", Rank: intPtr(2)}}}
	merger := pricing.NewPopularityMerger(src, time.Second, nil, nil)

	rows := rowsFor("111")
	out := merger.Merge(context.Background(), rows, "FR")

	assert.Nil(t, rows[0].Popularity)
	require.NotNil(t, out[0].Popularity)
	assert.Equal(t, 2, *out[0].Popularity.Rank)
}

func TestBestPopularityByBarcode(t *testing.T) {
	best := pricing.BestPopularityByBarcode([]entity.PopularityRank{
		{CanonicalBarcode: "5", Rank: nil},
		{CanonicalBarcode: "5", Rank: intPtr(8), PreviousRank: intPtr(10)},
		{CanonicalBarcode: "", Rank: intPtr(1)},
		{CanonicalBarcode: "6", Rank: intPtr(3), PreviousRank: intPtr(1), Delta: intPtr(7)},
	})

	require.Len(t, best, 2)
	p := best["00000000000005"]
	assert.Equal(t, 8, *p.Rank)
	assert.Equal(t, 2, *p.Delta)
	assert.Equal(t, 7, *best["00000000000006"].Delta, "el delta de la fuente se respeta")
}

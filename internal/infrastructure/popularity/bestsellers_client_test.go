package popularity_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Comparador-api/internal/domain"
	"github.com/jhoicas/Comparador-api/internal/infrastructure/popularity"
	"github.com/jhoicas/Comparador-api/pkg/config"
	"github.com/jhoicas/Comparador-api/pkg/logger"
)

func newClient(srv *httptest.Server) *popularity.BestSellersClient {
	return newClientWithLogger(srv, nil)
}

func newClientWithLogger(srv *httptest.Server, log *logger.Logger) *popularity.BestSellersClient {
	return popularity.NewBestSellersClient(config.PopularityConfig{
		BaseURL:   srv.URL,
		AccountID: "123",
		Token:     "tok",
		Timeout:   time.Second,
	}, log)
}

func TestSearch_FiltraPorCodigoYPagina(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/reports/v1beta/accounts/123/reports:search", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["query"], "report_country_code = 'FR'")

		if body["pageToken"] == nil {
			_, _ = w.Write([]byte(`{
				"results": [
					{"bestSellersProductClusterView": {"rank": "4", "previousRank": "9", "relativeDemand": "HIGH", "variantGtins": ["1234567890123", "999"]}},
					{"bestSellersProductClusterView": {"rank": "50", "variantGtins": ["5555555555555"]}}
				],
				"nextPageToken": "p2"
			}`))
			return
		}
		assert.Equal(t, "p2", body["pageToken"])
		_, _ = w.Write([]byte(`{"results": [
			{"bestSellersProductClusterView": {"rank": "2", "previousRank": "1", "variantGtins": ["01234567890123"]}}
		]}`))
	}))
	defer srv.Close()

	ranks, err := newClient(srv).Search(context.Background(), []string{"1234567890123"}, "fr")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, ranks, 2)

	assert.Equal(t, "01234567890123", ranks[0].CanonicalBarcode)
	assert.Equal(t, 4, *ranks[0].Rank)
	assert.Equal(t, 5, *ranks[0].Delta)
	assert.Equal(t, "HIGH", ranks[0].RelativeDemand)

	assert.Equal(t, 2, *ranks[1].Rank)
	assert.Equal(t, -1, *ranks[1].Delta)
}

func TestSearch_SinCredencialesDegrada(t *testing.T) {
	c := popularity.NewBestSellersClient(config.PopularityConfig{BaseURL: "http://unused"}, nil)
	_, err := c.Search(context.Background(), []string{"1"}, "FR")
	assert.ErrorIs(t, err, domain.ErrExternalDegraded)
}

func TestSearch_ErrorHTTPSePropaga(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "denied", "status": "PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	_, err := newClient(srv).Search(context.Background(), []string{"1234567890123"}, "FR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERMISSION_DENIED")
}

func TestSearch_RespuestaMalformada(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": [{"bestSellersProductClusterView": {"rank": "abc", "variantGtins": ["1234567890123"]}}]}`))
	}))
	defer srv.Close()

	_, err := newClient(srv).Search(context.Background(), []string{"1234567890123"}, "FR")
	assert.ErrorContains(t, err, "malformada")
}

func TestSearch_ContextoCanceladoNoBloquea(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newClient(srv).Search(ctx, []string{"1234567890123"}, "FR")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSearch_SinCodigosNoLlamaALaAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no debería llamarse")
	}))
	defer srv.Close()

	ranks, err := newClient(srv).Search(context.Background(), []string{"", "abc"}, "FR")
	require.NoError(t, err)
	assert.Empty(t, ranks)
}

func TestSearch_PaisInvalidoNoLlamaALaAPI(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	for _, country := range []string{"'X", "F1", "F'", "FRA", "", "é"} {
		_, err := newClient(srv).Search(context.Background(), []string{"1234567890123"}, country)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, country)
	}
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestSearch_TruncaAlMaximoDePaginasYLoRegistra(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{
			"results": [{"bestSellersProductClusterView": {"rank": "` + strconv.Itoa(int(n)) + `", "variantGtins": ["1234567890123"]}}],
			"nextPageToken": "p` + strconv.Itoa(int(n)) + `"
		}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	log := logger.New(logger.Config{Env: "production", Level: "warn", Out: &buf})

	ranks, err := newClientWithLogger(srv, log).Search(context.Background(), []string{"1234567890123"}, "FR")
	require.NoError(t, err)
	assert.EqualValues(t, 20, atomic.LoadInt32(&calls))
	assert.Len(t, ranks, 20)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "FR", entry["country"])
	assert.EqualValues(t, 20, entry["pages"])
	assert.Contains(t, entry["message"], "truncado")
}

// Package popularity adapta la API de informes "best sellers" de Merchant Center
// al puerto PopularitySource.
package popularity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jhoicas/Comparador-api/internal/application/ports"
	"github.com/jhoicas/Comparador-api/internal/domain"
	"github.com/jhoicas/Comparador-api/internal/domain/barcode"
	"github.com/jhoicas/Comparador-api/internal/domain/entity"
	"github.com/jhoicas/Comparador-api/pkg/config"
	"github.com/jhoicas/Comparador-api/pkg/logger"
)

var _ ports.PopularitySource = (*BestSellersClient)(nil)

const (
	searchPathFmt = "/reports/v1beta/accounts/%s/reports:search"
	pageSize      = 1000
	maxPages      = 20
	maxBodyBytes  = 8 << 20
)

// BestSellersClient consulta el ranking semanal de clusters de producto más vendidos
// de un país y lo filtra a los códigos pedidos.
type BestSellersClient struct {
	baseURL    string
	accountID  string
	token      string
	httpClient *http.Client
	log        *logger.Logger
}

// NewBestSellersClient construye el cliente. Sin cuenta o token las llamadas devuelven
// ErrExternalDegraded en lugar de fallar al arrancar. log puede ser nil.
func NewBestSellersClient(cfg config.PopularityConfig, log *logger.Logger) *BestSellersClient {
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BestSellersClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		accountID: cfg.AccountID,
		token:     cfg.Token,
		// El merger impone además su propio context.WithTimeout.
		httpClient: &http.Client{Timeout: 2 * timeout},
		log:        log,
	}
}

// ── Protocolo reports:search ──────────────────────────────────────────────────

type searchRequest struct {
	Query     string `json:"query"`
	PageSize  int    `json:"pageSize,omitempty"`
	PageToken string `json:"pageToken,omitempty"`
}

type searchResponse struct {
	Results []struct {
		Cluster *clusterView `json:"bestSellersProductClusterView"`
	} `json:"results"`
	NextPageToken string `json:"nextPageToken"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// clusterView los enteros int64 llegan como string en JSON.
type clusterView struct {
	Rank           string   `json:"rank"`
	PreviousRank   string   `json:"previousRank"`
	RelativeDemand string   `json:"relativeDemand"`
	VariantGtins   []string `json:"variantGtins"`
}

// ── Implementación del puerto ─────────────────────────────────────────────────

// Search devuelve una entrada por cada GTIN de variante que coincide con barcodes.
// Un mismo código puede aparecer en varios clusters; el merger se queda con el mejor.
func (c *BestSellersClient) Search(ctx context.Context, barcodes []string, countryCode string) ([]entity.PopularityRank, error) {
	if c.accountID == "" || c.token == "" {
		return nil, fmt.Errorf("%w: POPULARITY_ACCOUNT_ID o POPULARITY_TOKEN no configurados", domain.ErrExternalDegraded)
	}
	country := strings.ToUpper(strings.TrimSpace(countryCode))
	if !validCountry(country) {
		return nil, fmt.Errorf("%w: país inválido %q", domain.ErrInvalidInput, countryCode)
	}

	wanted := make(map[string]struct{}, len(barcodes))
	for _, b := range barcode.CanonicalizeAll(barcodes) {
		wanted[b] = struct{}{}
	}
	if len(wanted) == 0 {
		return []entity.PopularityRank{}, nil
	}

	query := fmt.Sprintf(
		"SELECT rank, previous_rank, relative_demand, variant_gtins "+
			"FROM best_sellers_product_cluster_view "+
			"WHERE report_country_code = '%s' AND report_granularity = 'WEEKLY'", country)

	var out []entity.PopularityRank
	token := ""
	for page := 0; ; page++ {
		if page == maxPages {
			c.log.Warn().Str("country", country).Int("pages", maxPages).Int("matches", len(out)).
				Msg("ranking de popularidad truncado: se alcanzó el máximo de páginas")
			break
		}
		resp, err := c.search(ctx, searchRequest{Query: query, PageSize: pageSize, PageToken: token})
		if err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			if r.Cluster == nil {
				continue
			}
			ranks, err := toRanks(*r.Cluster, wanted)
			if err != nil {
				return nil, fmt.Errorf("popularity: respuesta malformada: %w", err)
			}
			out = append(out, ranks...)
		}
		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}
	return out, nil
}

// validCountry exige exactamente dos letras ASCII mayúsculas; el código se
// interpola en la consulta.
func validCountry(c string) bool {
	if len(c) != 2 {
		return false
	}
	for i := 0; i < len(c); i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}

func (c *BestSellersClient) search(ctx context.Context, payload searchRequest) (*searchResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("popularity: serializar request: %w", err)
	}
	url := c.baseURL + fmt.Sprintf(searchPathFmt, c.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("popularity: crear HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("popularity: timeout o cancelación: %w", ctx.Err())
		}
		return nil, fmt.Errorf("popularity: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("popularity: leer respuesta: %w", err)
	}

	var parsed searchResponse
	if resp.StatusCode != http.StatusOK {
		if jsonErr := json.Unmarshal(raw, &parsed); jsonErr == nil && parsed.Error != nil {
			return nil, fmt.Errorf("popularity: error %s (%d): %s", parsed.Error.Status, parsed.Error.Code, parsed.Error.Message)
		}
		return nil, fmt.Errorf("popularity: HTTP %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("popularity: deserializar respuesta: %w", err)
	}
	return &parsed, nil
}

// toRanks expande un cluster en una entrada por GTIN pedido.
func toRanks(v clusterView, wanted map[string]struct{}) ([]entity.PopularityRank, error) {
	rank, err := parseOptionalInt(v.Rank)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	previous, err := parseOptionalInt(v.PreviousRank)
	if err != nil {
		return nil, fmt.Errorf("previousRank: %w", err)
	}

	var out []entity.PopularityRank
	for _, gtin := range v.VariantGtins {
		key := barcode.Canonicalize(gtin)
		if _, ok := wanted[key]; !ok {
			continue
		}
		out = append(out, entity.PopularityRank{
			CanonicalBarcode: key,
			Rank:             rank,
			PreviousRank:     previous,
			RelativeDemand:   v.RelativeDemand,
		}.WithDelta())
	}
	return out, nil
}

func parseOptionalInt(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

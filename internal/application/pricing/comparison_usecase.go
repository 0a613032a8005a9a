package pricing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/Comparador-api/internal/application/dto"
	"github.com/jhoicas/Comparador-api/internal/application/ports"
	"github.com/jhoicas/Comparador-api/internal/domain"
	"github.com/jhoicas/Comparador-api/internal/domain/entity"
	"github.com/jhoicas/Comparador-api/internal/domain/repository"
	"github.com/jhoicas/Comparador-api/pkg/logger"
	"github.com/jhoicas/Comparador-api/pkg/metrics"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// TTLConfig duración de cada tipo de entrada en caché.
type TTLConfig struct {
	Results    time.Duration // ventas agregadas y comparaciones (1 h)
	Popularity time.Duration // ranking externo (6 h)
	Count      time.Duration // totales de paginación (2 h)
}

// DefaultTTLConfig valores por defecto.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{Results: time.Hour, Popularity: 6 * time.Hour, Count: 2 * time.Hour}
}

// Query consulta normalizada: país en mayúsculas, período a días completos y
// grupos deduplicados y ordenados. Es la base de las claves de caché.
type Query struct {
	Country  string
	Period   entity.Period
	Sort     entity.SortMetric
	Groups   []string
	Page     int
	PageSize int
}

// Paginated indica si la consulta pide una página concreta.
func (q Query) Paginated() bool { return q.Page > 0 }

// ComparisonDeps dependencias del caso de uso.
type ComparisonDeps struct {
	Aggregator *RankedSalesAggregator
	Engine     *MarketComparisonEngine
	Merger     *PopularityMerger
	Offers     repository.CompetitorPriceSource
	Cache      ports.ResultCache // nil = sin caché
	Keys       KeyBuilder
	TTL        TTLConfig
	SiteIDs    []int64
	Log        *logger.Logger
	Metrics    *metrics.PricingMetrics
	Now        func() time.Time
}

// ComparisonUseCase orquesta el pipeline ventas → comparación → popularidad con caché.
// La caché es transparente: con o sin ella el resultado es el mismo.
type ComparisonUseCase struct {
	aggregator *RankedSalesAggregator
	engine     *MarketComparisonEngine
	merger     *PopularityMerger
	offers     repository.CompetitorPriceSource
	cache      ports.ResultCache
	keys       KeyBuilder
	ttl        TTLConfig
	siteIDs    []int64
	log        *logger.Logger
	metrics    *metrics.PricingMetrics
	now        func() time.Time
}

// NewComparisonUseCase construye el caso de uso.
func NewComparisonUseCase(deps ComparisonDeps) *ComparisonUseCase {
	ttl := deps.TTL
	def := DefaultTTLConfig()
	if ttl.Results <= 0 {
		ttl.Results = def.Results
	}
	if ttl.Popularity <= 0 {
		ttl.Popularity = def.Popularity
	}
	if ttl.Count <= 0 {
		ttl.Count = def.Count
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	keys := deps.Keys
	if keys.prefix == "" {
		keys = NewKeyBuilder("")
	}
	merger := deps.Merger
	if merger == nil {
		merger = NewPopularityMerger(nil, 0, log, deps.Metrics)
	}
	return &ComparisonUseCase{
		aggregator: deps.Aggregator,
		engine:     deps.Engine,
		merger:     merger,
		offers:     deps.Offers,
		cache:      deps.Cache,
		keys:       keys,
		ttl:        ttl,
		siteIDs:    append([]int64(nil), deps.SiteIDs...),
		log:        log,
		metrics:    deps.Metrics,
		now:        now,
	}
}

// comparisonResult parte cacheable de una comparación (sin popularidad, que tiene su propio TTL).
type comparisonResult struct {
	Sites      []entity.Site
	Rows       []entity.ComparisonRow
	Stats      entity.PortfolioStats
	ComputedAt time.Time
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// GetRanking devuelve el ranking de ventas (sin cruce con el mercado).
func (uc *ComparisonUseCase) GetRanking(ctx context.Context, req dto.ComparisonRequest) (*dto.RankingReportDTO, error) {
	q, err := uc.ParseRequest(req)
	if err != nil {
		return nil, err
	}
	facts, page, err := uc.salesForQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	return &dto.RankingReportDTO{
		Country: q.Country,
		Period:  periodDTO(q.Period),
		Sort:    string(q.Sort),
		Groups:  nonNilStrings(q.Groups),
		Items:   toSalesFactDTOs(facts),
		Page:    page,
	}, nil
}

// GetComparison ejecuta el pipeline completo para una consulta (paginada o top N).
func (uc *ComparisonUseCase) GetComparison(ctx context.Context, req dto.ComparisonRequest) (*dto.ComparisonReportDTO, error) {
	q, err := uc.ParseRequest(req)
	if err != nil {
		return nil, err
	}

	var page *dto.PageDTO
	res, err := cached(ctx, uc.cache, uc.log, uc.keys.Query(KindComparison, q), uc.ttl.Results,
		func(ctx context.Context) (comparisonResult, error) {
			facts, _, err := uc.salesForQuery(ctx, q)
			if err != nil {
				return comparisonResult{}, err
			}
			return uc.compare(ctx, facts)
		})
	if err != nil {
		return nil, err
	}
	if q.Paginated() {
		total, err := uc.count(ctx, q)
		if err != nil {
			return nil, err
		}
		page = dto.NewPageDTO(q.Page, q.PageSize, total)
	}
	return uc.buildReport(ctx, q, res, page), nil
}

// ExportComparison devuelve la comparación completa (sin tope ni paginación) para los exportadores.
func (uc *ComparisonUseCase) ExportComparison(ctx context.Context, req dto.ComparisonRequest) (*dto.ComparisonReportDTO, error) {
	req.Page, req.PageSize = 0, 0
	q, err := uc.ParseRequest(req)
	if err != nil {
		return nil, err
	}
	res, err := cached(ctx, uc.cache, uc.log, uc.keys.Query(KindExport, q), uc.ttl.Results,
		func(ctx context.Context) (comparisonResult, error) {
			facts, err := uc.salesTable(ctx, q)
			if err != nil {
				return comparisonResult{}, err
			}
			return uc.compare(ctx, facts)
		})
	if err != nil {
		return nil, err
	}
	return uc.buildReport(ctx, q, res, nil), nil
}

// InvalidateCache borra una clave concreta o todo un ámbito (namespace, país, país+período).
func (uc *ComparisonUseCase) InvalidateCache(ctx context.Context, req dto.InvalidateCacheRequest) (*dto.InvalidateCacheResponse, error) {
	if key := strings.TrimSpace(req.Key); key != "" {
		if !uc.keys.Owns(key) {
			return nil, fmt.Errorf("%w: la clave no pertenece al namespace %q", domain.ErrInvalidInput, uc.keys.Prefix())
		}
		if uc.cache == nil {
			return &dto.InvalidateCacheResponse{Scope: key}, nil
		}
		if err := uc.cache.Invalidate(ctx, key); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCache, err)
		}
		return &dto.InvalidateCacheResponse{Scope: key, Removed: 1}, nil
	}

	country := ""
	if strings.TrimSpace(req.Country) != "" {
		c, err := normalizeCountry(req.Country)
		if err != nil {
			return nil, err
		}
		country = c
	}

	var period *entity.Period
	if req.StartDate != "" || req.EndDate != "" {
		if country == "" {
			return nil, fmt.Errorf("%w: el período requiere country", domain.ErrInvalidInput)
		}
		if req.StartDate == "" || req.EndDate == "" {
			return nil, fmt.Errorf("%w: start_date y end_date son obligatorios juntos", domain.ErrInvalidInput)
		}
		p, err := parsePeriod(req.StartDate, req.EndDate, uc.now())
		if err != nil {
			return nil, err
		}
		period = &p
	}

	scope := uc.keys.Scope(country, period)
	if uc.cache == nil {
		return &dto.InvalidateCacheResponse{Scope: scope}, nil
	}
	n, err := uc.cache.InvalidateAll(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCache, err)
	}
	uc.log.Info().Str("scope", scope).Int("removed", n).Msg("caché invalidada")
	return &dto.InvalidateCacheResponse{Scope: scope, Removed: n}, nil
}

// ── Etapas ────────────────────────────────────────────────────────────────────

// salesForQuery top N sin paginar, o la página pedida de la tabla completa.
func (uc *ComparisonUseCase) salesForQuery(ctx context.Context, q Query) ([]entity.SalesFact, *dto.PageDTO, error) {
	if !q.Paginated() {
		facts, err := cached(ctx, uc.cache, uc.log, uc.keys.Query(KindRanking, q), uc.ttl.Results,
			func(ctx context.Context) ([]entity.SalesFact, error) {
				return uc.aggregate(ctx, q, 0)
			})
		return facts, nil, err
	}

	all, err := uc.salesTable(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	start := (q.Page - 1) * q.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + q.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], dto.NewPageDTO(q.Page, q.PageSize, len(all)), nil
}

// salesTable tabla completa filtrada y ordenada (sin página: la clave no depende de ella).
func (uc *ComparisonUseCase) salesTable(ctx context.Context, q Query) ([]entity.SalesFact, error) {
	q.Page, q.PageSize = 0, 0
	return cached(ctx, uc.cache, uc.log, uc.keys.Query(KindSales, q), uc.ttl.Results,
		func(ctx context.Context) ([]entity.SalesFact, error) {
			return uc.aggregate(ctx, q, -1)
		})
}

// count total de filas tras el filtro de grupos, con TTL propio.
func (uc *ComparisonUseCase) count(ctx context.Context, q Query) (int, error) {
	q.Page, q.PageSize = 0, 0
	return cached(ctx, uc.cache, uc.log, uc.keys.Query(KindCount, q), uc.ttl.Count,
		func(ctx context.Context) (int, error) {
			all, err := uc.salesTable(ctx, q)
			if err != nil {
				return 0, err
			}
			return len(all), nil
		})
}

func (uc *ComparisonUseCase) aggregate(ctx context.Context, q Query, limit int) ([]entity.SalesFact, error) {
	start := time.Now()
	facts, err := uc.aggregator.Aggregate(ctx, AggregateParams{
		Country: q.Country,
		Period:  q.Period,
		Sort:    q.Sort,
		Groups:  q.Groups,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	uc.metrics.ObserveStage("aggregate", time.Since(start))
	uc.log.Debug().
		Str("country", q.Country).
		Str("start", q.Period.StartDate()).
		Str("end", q.Period.EndDate()).
		Str("sort", string(q.Sort)).
		Int("rows", len(facts)).
		Dur("duration", time.Since(start)).
		Msg("ranking de ventas calculado")
	return facts, nil
}

func (uc *ComparisonUseCase) compare(ctx context.Context, facts []entity.SalesFact) (comparisonResult, error) {
	start := time.Now()
	sites, err := uc.sites(ctx)
	if err != nil {
		return comparisonResult{}, err
	}
	rows, stats, err := uc.engine.Compare(ctx, facts, sites)
	if err != nil {
		return comparisonResult{}, err
	}
	uc.metrics.ObserveStage("compare", time.Since(start))
	return comparisonResult{Sites: sites, Rows: rows, Stats: stats, ComputedAt: uc.now().UTC()}, nil
}

func (uc *ComparisonUseCase) sites(ctx context.Context) ([]entity.Site, error) {
	if len(uc.siteIDs) == 0 {
		return []entity.Site{}, nil
	}
	sites, err := uc.offers.ListSites(ctx, uc.siteIDs)
	if err != nil {
		return nil, fmt.Errorf("sitios de comparación: %w", asDataSourceError(err))
	}
	return sites, nil
}

// buildReport añade la popularidad (fuera de la entrada cacheada) y mapea a DTO.
func (uc *ComparisonUseCase) buildReport(ctx context.Context, q Query, res comparisonResult, page *dto.PageDTO) *dto.ComparisonReportDTO {
	rows := uc.merger.Merge(ctx, res.Rows, q.Country)
	scope := dto.StatsScopeAll
	if page != nil {
		scope = dto.StatsScopePage
	}
	return &dto.ComparisonReportDTO{
		ReportID:   uuid.NewString(),
		Country:    q.Country,
		Period:     periodDTO(q.Period),
		Sort:       string(q.Sort),
		Groups:     nonNilStrings(q.Groups),
		Sites:      toSiteDTOs(res.Sites),
		Rows:       toComparisonRowDTOs(rows, res.Sites),
		Stats:      toPortfolioStatsDTO(res.Stats),
		StatsScope: scope,
		Page:       page,
		ComputedAt: res.ComputedAt,
	}
}

// ── Validación de la consulta ─────────────────────────────────────────────────

// ParseRequest valida y normaliza los parámetros. Errores envuelven domain.ErrInvalidInput.
func (uc *ComparisonUseCase) ParseRequest(req dto.ComparisonRequest) (Query, error) {
	country, err := normalizeCountry(req.Country)
	if err != nil {
		return Query{}, err
	}
	period, err := parsePeriod(req.StartDate, req.EndDate, uc.now())
	if err != nil {
		return Query{}, err
	}
	metric, err := entity.ParseSortMetric(req.Sort)
	if err != nil {
		return Query{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if req.Page < 0 || req.PageSize < 0 {
		return Query{}, fmt.Errorf("%w: page y page_size no pueden ser negativos", domain.ErrInvalidInput)
	}

	q := Query{
		Country: country,
		Period:  period,
		Sort:    metric,
		Groups:  normalizeGroups(req.Groups),
	}
	if req.Page > 0 {
		q.Page = req.Page
		q.PageSize = req.PageSize
		if q.PageSize == 0 {
			q.PageSize = defaultPageSize
		}
		if q.PageSize > maxPageSize {
			q.PageSize = maxPageSize
		}
	}
	return q, nil
}

func normalizeCountry(raw string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if len(c) != 2 || c[0] < 'A' || c[0] > 'Z' || c[1] < 'A' || c[1] > 'Z' {
		return "", fmt.Errorf("%w: country debe ser un código ISO-2 (ej. FR)", domain.ErrInvalidInput)
	}
	return c, nil
}

// normalizeGroups separa por comas, recorta, deduplica y ordena.
func normalizeGroups(raw string) []string {
	seen := make(map[string]struct{})
	var groups []string
	for _, g := range strings.Split(raw, ",") {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// parsePeriod convierte los strings de fecha; aplica valores por defecto si están vacíos
// (primer día del mes en curso → hoy). El fin es inclusivo hasta las 23:59:59.
func parsePeriod(startStr, endStr string, now time.Time) (entity.Period, error) {
	end := now
	if endStr != "" {
		e, err := time.ParseInLocation("2006-01-02", endStr, now.Location())
		if err != nil {
			return entity.Period{}, fmt.Errorf("%w: end_date inválido: %w", domain.ErrInvalidInput, err)
		}
		end = e
	}

	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if startStr != "" {
		s, err := time.ParseInLocation("2006-01-02", startStr, now.Location())
		if err != nil {
			return entity.Period{}, fmt.Errorf("%w: start_date inválido: %w", domain.ErrInvalidInput, err)
		}
		start = s
	}

	p, err := entity.NewPeriod(start, end)
	if err != nil {
		return entity.Period{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return p, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

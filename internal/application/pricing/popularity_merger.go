package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/Comparador-api/internal/application/ports"
	"github.com/jhoicas/Comparador-api/internal/domain"
	"github.com/jhoicas/Comparador-api/internal/domain/barcode"
	"github.com/jhoicas/Comparador-api/internal/domain/entity"
	"github.com/jhoicas/Comparador-api/pkg/logger"
	"github.com/jhoicas/Comparador-api/pkg/metrics"
)

const defaultPopularityTimeout = 5 * time.Second

// PopularityMerger añade a cada fila su posición en el ranking externo de más vendidos.
//
// Dependencia blanda: si la fuente falla, tarda demasiado o no está configurada,
// todas las filas se devuelven con Popularity nil y solo se registra un warning.
type PopularityMerger struct {
	source  ports.PopularitySource
	timeout time.Duration
	log     *logger.Logger
	metrics *metrics.PricingMetrics
}

// NewPopularityMerger construye el merger. source puede ser nil (popularidad desactivada).
func NewPopularityMerger(
	source ports.PopularitySource,
	timeout time.Duration,
	log *logger.Logger,
	m *metrics.PricingMetrics,
) *PopularityMerger {
	if timeout <= 0 {
		timeout = defaultPopularityTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PopularityMerger{source: source, timeout: timeout, log: log, metrics: m}
}

// Merge devuelve una copia de rows con Popularity rellenado cuando la fuente lo conoce.
// Hace una única llamada a la fuente con el conjunto de códigos canónicos.
func (m *PopularityMerger) Merge(ctx context.Context, rows []entity.ComparisonRow, countryCode string) []entity.ComparisonRow {
	out := make([]entity.ComparisonRow, len(rows))
	copy(out, rows)
	for i := range out {
		out[i].Popularity = nil
	}
	if m.source == nil || len(out) == 0 {
		return out
	}

	eans := make([]string, 0, len(out))
	for _, r := range out {
		eans = append(eans, r.Sale.ProductEAN)
	}
	canonical := barcode.CanonicalizeAll(eans)
	if len(canonical) == 0 {
		return out
	}

	ranks, err := m.search(ctx, canonical, countryCode)
	if err != nil {
		m.metrics.PopularityDegraded()
		m.log.Warn().Err(err).
			Str("country", countryCode).
			Int("barcodes", len(canonical)).
			Msg("popularidad no disponible, se continúa sin ranking externo")
		return out
	}

	best := BestPopularityByBarcode(ranks)
	for i := range out {
		if p, ok := best[barcode.Canonicalize(out[i].Sale.ProductEAN)]; ok {
			rank := p
			out[i].Popularity = &rank
		}
	}
	return out
}

// search aplica el timeout y convierte un panic del cliente en ErrExternalDegraded.
func (m *PopularityMerger) search(ctx context.Context, barcodes []string, countryCode string) (ranks []entity.PopularityRank, err error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			ranks = nil
			err = fmt.Errorf("%w: panic en la fuente de popularidad: %v", domain.ErrExternalDegraded, r)
		}
	}()

	ranks, err = m.source.Search(ctx, barcodes, countryCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExternalDegraded, err)
	}
	return ranks, nil
}

// BestPopularityByBarcode indexa por GTIN-14 quedándose con el menor rango
// cuando varias entradas (variantes) comparten código. Calcula Delta si falta.
func BestPopularityByBarcode(ranks []entity.PopularityRank) map[string]entity.PopularityRank {
	best := make(map[string]entity.PopularityRank, len(ranks))
	for _, r := range ranks {
		key := barcode.Canonicalize(r.CanonicalBarcode)
		if key == "" {
			continue
		}
		r.CanonicalBarcode = key
		r = r.WithDelta()
		current, ok := best[key]
		if !ok || r.Better(current) {
			best[key] = r
		}
	}
	return best
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PricingMetrics agrupa los colectores del motor de comparación.
// Un *PricingMetrics nil es válido: todas las operaciones son no-op.
type PricingMetrics struct {
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheErrors        *prometheus.CounterVec
	popularityDegraded prometheus.Counter
	pipelineDuration   *prometheus.HistogramVec
}

// NewPricingMetrics registra los colectores en el registerer indicado.
func NewPricingMetrics(reg prometheus.Registerer) *PricingMetrics {
	if reg == nil {
		return &PricingMetrics{}
	}
	m := &PricingMetrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricing_cache_hits_total",
			Help: "Result cache hits by key kind.",
		}, []string{"kind"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricing_cache_misses_total",
			Help: "Result cache misses by key kind.",
		}, []string{"kind"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricing_cache_errors_total",
			Help: "Result cache store failures by operation.",
		}, []string{"op"}),
		popularityDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricing_popularity_degraded_total",
			Help: "Popularity lookups that failed and were served as null.",
		}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricing_pipeline_duration_seconds",
			Help:    "Duration of uncached pipeline computations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	reg.MustRegister(m.cacheHits, m.cacheMisses, m.cacheErrors, m.popularityDegraded, m.pipelineDuration)
	return m
}

// CacheHit cuenta un acierto de caché.
func (m *PricingMetrics) CacheHit(kind string) {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.WithLabelValues(normalizeLabel(kind)).Inc()
}

// CacheMiss cuenta un fallo de caché.
func (m *PricingMetrics) CacheMiss(kind string) {
	if m == nil || m.cacheMisses == nil {
		return
	}
	m.cacheMisses.WithLabelValues(normalizeLabel(kind)).Inc()
}

// CacheError cuenta un error del almacén (get, set, delete).
func (m *PricingMetrics) CacheError(op string) {
	if m == nil || m.cacheErrors == nil {
		return
	}
	m.cacheErrors.WithLabelValues(normalizeLabel(op)).Inc()
}

// PopularityDegraded cuenta una degradación de la API de popularidad.
func (m *PricingMetrics) PopularityDegraded() {
	if m == nil || m.popularityDegraded == nil {
		return
	}
	m.popularityDegraded.Inc()
}

// ObserveStage registra la duración de una etapa del pipeline.
func (m *PricingMetrics) ObserveStage(stage string, d time.Duration) {
	if m == nil || m.pipelineDuration == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(normalizeLabel(stage)).Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

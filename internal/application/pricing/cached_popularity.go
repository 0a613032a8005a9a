package pricing

import (
	"context"
	"time"

	"github.com/jhoicas/Comparador-api/internal/application/ports"
	"github.com/jhoicas/Comparador-api/internal/domain/barcode"
	"github.com/jhoicas/Comparador-api/internal/domain/entity"
	"github.com/jhoicas/Comparador-api/pkg/logger"
)

// cachedPopularitySource guarda las respuestas de la fuente de popularidad con su
// propio TTL. Los errores no se cachean: una API caída se vuelve a consultar.
type cachedPopularitySource struct {
	inner ports.PopularitySource
	cache ports.ResultCache
	keys  KeyBuilder
	ttl   time.Duration
	log   *logger.Logger
}

var _ ports.PopularitySource = (*cachedPopularitySource)(nil)

// NewCachedPopularitySource envuelve inner con la caché. Devuelve nil si inner es nil
// y el propio inner si no hay caché.
func NewCachedPopularitySource(
	inner ports.PopularitySource,
	cache ports.ResultCache,
	keys KeyBuilder,
	ttl time.Duration,
	log *logger.Logger,
) ports.PopularitySource {
	if inner == nil {
		return nil
	}
	if cache == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = DefaultTTLConfig().Popularity
	}
	if log == nil {
		log = logger.Nop()
	}
	return &cachedPopularitySource{inner: inner, cache: cache, keys: keys, ttl: ttl, log: log}
}

func (s *cachedPopularitySource) Search(ctx context.Context, barcodes []string, countryCode string) ([]entity.PopularityRank, error) {
	canonical := barcode.CanonicalizeAll(barcodes)
	key := s.keys.Popularity(countryCode, canonical)
	return cached(ctx, s.cache, s.log, key, s.ttl, func(ctx context.Context) ([]entity.PopularityRank, error) {
		return s.inner.Search(ctx, canonical, countryCode)
	})
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/Comparador-api/internal/application/ports"
	"github.com/jhoicas/Comparador-api/pkg/logger"
	"github.com/jhoicas/Comparador-api/pkg/metrics"
)

// ResultCache caché de resultados sobre un Store.
//
// Un fallo del almacén se trata como miss: se registra, se cuenta y se calcula
// directamente. Los errores de compute nunca se guardan. Las peticiones
// concurrentes de una misma clave comparten un único cálculo; si un llamante
// cancela, solo él recibe ctx.Err() y el resto sigue esperando el resultado.
type ResultCache struct {
	store   Store
	group   singleflight.Group
	log     *logger.Logger
	metrics *metrics.PricingMetrics
}

var _ ports.ResultCache = (*ResultCache)(nil)

// computeTimeout acota un cálculo compartido que ya no tiene llamantes esperando.
const computeTimeout = 2 * time.Minute

// NewResultCache construye la caché. log y m pueden ser nil.
func NewResultCache(store Store, log *logger.Logger, m *metrics.PricingMetrics) *ResultCache {
	if log == nil {
		log = logger.Nop()
	}
	return &ResultCache{store: store, log: log, metrics: m}
}

func (c *ResultCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ports.ComputeFunc) ([]byte, error) {
	kind := kindOf(key)

	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		c.metrics.CacheHit(kind)
		return raw, nil
	case errors.Is(err, ErrMiss):
		c.metrics.CacheMiss(kind)
	default:
		c.metrics.CacheError("get")
		c.log.Warn().Err(err).Str("key", key).Msg("lectura de caché fallida, se calcula directamente")
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// El cálculo se comparte entre llamantes: no hereda la cancelación de quien lo inició.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		value, err := safeCompute(cctx, compute)
		if err != nil {
			return nil, err
		}
		if cctx.Err() == nil {
			if err := c.store.Set(cctx, key, value, ttl); err != nil {
				c.metrics.CacheError("set")
				c.log.Warn().Err(err).Str("key", key).Msg("escritura de caché fallida")
			}
		}
		return value, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// safeCompute convierte un panic de compute en error: DoChan lo ejecuta en otra
// goroutine, fuera del recover de fiber.
func safeCompute(ctx context.Context, compute ports.ComputeFunc) (value []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache: panic en compute: %v", r)
		}
	}()
	return compute(ctx)
}

func (c *ResultCache) Invalidate(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		c.metrics.CacheError("delete")
		return err
	}
	return nil
}

func (c *ResultCache) InvalidateAll(ctx context.Context, prefix string) (int, error) {
	n, err := c.store.DeletePrefix(ctx, prefix)
	if err != nil {
		c.metrics.CacheError("delete")
		return n, err
	}
	c.log.Debug().Str("prefix", prefix).Int("removed", n).Msg("entradas de caché invalidadas")
	return n, nil
}

// kindOf extrae el tipo de entrada (penúltimo segmento de la clave) para las métricas.
func kindOf(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) < 2 {
		return "unknown"
	}
	return parts[len(parts)-2]
}

package ports

import (
	"context"
	"time"
)

// ComputeFunc calcula el valor serializado de una entrada de caché.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// ResultCache memoiza los resultados costosos del pipeline de comparación.
// Es una optimización pura: un fallo del almacén equivale a un miss y nunca
// se propaga al llamador. Los errores de compute no se cachean.
type ResultCache interface {
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) ([]byte, error)
	Invalidate(ctx context.Context, key string) error
	InvalidateAll(ctx context.Context, prefix string) (int, error)
}

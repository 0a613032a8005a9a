// Package cache implementa la caché de resultados del motor de comparación
// sobre un almacén clave/valor intercambiable (Redis o memoria).
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss la clave no existe o expiró.
var ErrMiss = errors.New("cache: miss")

// Store almacén de bytes con TTL. Las implementaciones deben ser seguras para uso concurrente.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix borra todas las claves que empiezan por prefix y devuelve cuántas.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

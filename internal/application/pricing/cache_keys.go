package pricing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jhoicas/Comparador-api/internal/application/ports"
	"github.com/jhoicas/Comparador-api/internal/domain/entity"
	"github.com/jhoicas/Comparador-api/pkg/logger"
)

// Tipos de entrada en la caché de resultados.
const (
	KindRanking    = "ranking"    // top N sin paginar
	KindSales      = "sales"      // tabla completa filtrada (paginación y exportación)
	KindCount      = "count"      // total de filas para la paginación
	KindComparison = "comparison" // filas comparadas de una página
	KindExport     = "export"     // comparación completa para exportar
	KindPopularity = "popularity" // ranking externo por conjunto de códigos
)

// KeyBuilder construye claves deterministas con un prefijo legible que permite
// invalidar por ámbito:
//
//	{prefix}:{PAÍS}:{inicio}_{fin}:{tipo}:{hash}
//	{prefix}:{PAÍS}:popularity:{hash}
//
// El hash cubre país, período, métrica, grupos ordenados, página y tamaño de página,
// así que dos consultas lógicamente equivalentes producen la misma clave.
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder construye el generador de claves; prefix vacío usa "pricing".
func NewKeyBuilder(prefix string) KeyBuilder {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "pricing"
	}
	return KeyBuilder{prefix: prefix}
}

// Prefix namespace de todas las claves.
func (b KeyBuilder) Prefix() string { return b.prefix }

// Query clave para un resultado derivado de una consulta de ventas.
func (b KeyBuilder) Query(kind string, q Query) string {
	groups := append([]string(nil), q.Groups...)
	sort.Strings(groups)
	canonical := fmt.Sprintf("country=%s|from=%s|to=%s|sort=%s|groups=%s|page=%d|size=%d",
		q.Country, q.Period.StartDate(), q.Period.EndDate(), q.Sort,
		strings.Join(groups, ","), q.Page, q.PageSize)
	return fmt.Sprintf("%s:%s:%s:%s:%s", b.prefix, q.Country, q.Period.Key(), kind, digest(canonical))
}

// Popularity clave para una búsqueda de popularidad (códigos en cualquier orden).
func (b KeyBuilder) Popularity(country string, barcodes []string) string {
	sorted := append([]string(nil), barcodes...)
	sort.Strings(sorted)
	canonical := "country=" + country + "|barcodes=" + strings.Join(sorted, ",")
	return fmt.Sprintf("%s:%s:%s:%s", b.prefix, country, KindPopularity, digest(canonical))
}

// Scope prefijo de invalidación. Sin país cubre todo el namespace; con período
// solo las entradas de ese país y período.
func (b KeyBuilder) Scope(country string, period *entity.Period) string {
	if country == "" {
		return b.prefix + ":"
	}
	if period == nil {
		return fmt.Sprintf("%s:%s:", b.prefix, country)
	}
	return fmt.Sprintf("%s:%s:%s:", b.prefix, country, period.Key())
}

// Owns indica si la clave pertenece al namespace.
func (b KeyBuilder) Owns(key string) bool {
	return strings.HasPrefix(key, b.prefix+":")
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

// cached serializa el resultado de compute en la caché (JSON) y lo decodifica siempre
// desde los bytes, de modo que un acierto y un cálculo fresco devuelven lo mismo.
// Sin caché llama directamente a compute. Una entrada ilegible se trata como fallo
// de caché: se invalida y se recalcula.
func cached[T any](
	ctx context.Context,
	c ports.ResultCache,
	log *logger.Logger,
	key string,
	ttl time.Duration,
	compute func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	if c == nil {
		return compute(ctx)
	}

	raw, err := c.GetOrCompute(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("entrada de caché ilegible, se recalcula")
		_ = c.Invalidate(ctx, key)
		return compute(ctx)
	}
	return out, nil
}

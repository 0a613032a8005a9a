package ports

import (
	"context"

	"github.com/jhoicas/Comparador-api/internal/domain/entity"
)

// PopularitySource puerto de salida hacia el ranking externo de más vendidos.
// Es una dependencia blanda: su fallo nunca debe abortar la comparación.
// El contexto debe llevar un timeout para evitar bloqueos en llamadas externas.
type PopularitySource interface {
	// Search busca el ranking de los códigos GTIN-14 indicados para un país (ISO-2).
	// Puede devolver varias entradas por código (variantes de un mismo producto).
	Search(ctx context.Context, barcodes []string, countryCode string) ([]entity.PopularityRank, error)
}

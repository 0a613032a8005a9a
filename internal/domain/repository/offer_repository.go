package repository

import (
	"context"

	"github.com/jhoicas/Comparador-api/internal/domain/entity"
)

// CompetitorPriceSource consulta los productos rastreados en la competencia.
type CompetitorPriceSource interface {
	// FindByBarcodes devuelve como mucho una oferta (la más reciente) por
	// (código de barras, sitio), restringida a siteIDs.
	FindByBarcodes(ctx context.Context, barcodes []string, siteIDs []int64) ([]entity.CompetitorOffer, error)

	// ListSites devuelve los sitios indicados en el mismo orden que siteIDs.
	// Un id sin sitio registrado se devuelve con un nombre genérico.
	ListSites(ctx context.Context, siteIDs []int64) ([]entity.Site, error)
}

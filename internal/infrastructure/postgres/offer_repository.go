package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/Comparador-api/internal/domain/barcode"
	"github.com/jhoicas/Comparador-api/internal/domain/entity"
	"github.com/jhoicas/Comparador-api/internal/domain/repository"
)

var _ repository.CompetitorPriceSource = (*OfferRepo)(nil)

// OfferRepo precios de la competencia capturados por el scraper.
type OfferRepo struct {
	pool *pgxpool.Pool
}

// NewOfferRepository construye el adaptador de ofertas.
func NewOfferRepository(pool *pgxpool.Pool) *OfferRepo {
	return &OfferRepo{pool: pool}
}

// FindByBarcodes devuelve la última oferta capturada por (código, sitio).
// Los códigos se buscan tal cual y en su forma GTIN-14, porque el scraper no
// siempre guarda los ceros a la izquierda.
func (r *OfferRepo) FindByBarcodes(ctx context.Context, barcodes []string, siteIDs []int64) ([]entity.CompetitorOffer, error) {
	if len(barcodes) == 0 || len(siteIDs) == 0 {
		return []entity.CompetitorOffer{}, nil
	}

	const query = `
	SELECT DISTINCT ON (o.barcode, o.site_id)
	    o.barcode,
	    o.site_id,
	    s.name,
	    o.price_excl_tax,
	    COALESCE(o.product_url, ''),
	    COALESCE(o.product_name, ''),
	    COALESCE(o.vendor, '')
	FROM competitor_offers o
	JOIN competitor_sites s ON s.id = o.site_id
	WHERE o.barcode = ANY($1)
	  AND o.site_id = ANY($2)
	ORDER BY o.barcode, o.site_id, o.scraped_at DESC`

	rows, err := r.pool.Query(ctx, query, lookupBarcodes(barcodes), siteIDs)
	if err != nil {
		return nil, queryError("offers.FindByBarcodes", err)
	}
	offers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.CompetitorOffer, error) {
		var o entity.CompetitorOffer
		err := row.Scan(&o.Barcode, &o.SiteID, &o.SiteName, &o.PriceExclTax, &o.ProductURL, &o.ProductName, &o.Vendor)
		return o, err
	})
	if err != nil {
		return nil, queryError("offers.FindByBarcodes scan", err)
	}
	for i := range offers {
		offers[i].SiteName = normalizeText(offers[i].SiteName)
		offers[i].ProductName = normalizeText(offers[i].ProductName)
		offers[i].Vendor = normalizeText(offers[i].Vendor)
	}
	return offers, nil
}

// ListSites devuelve los sitios en el orden de siteIDs. Un id sin fila en
// competitor_sites se conserva con un nombre genérico para no desplazar columnas.
func (r *OfferRepo) ListSites(ctx context.Context, siteIDs []int64) ([]entity.Site, error) {
	if len(siteIDs) == 0 {
		return []entity.Site{}, nil
	}
	const query = `SELECT id, name FROM competitor_sites WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, siteIDs)
	if err != nil {
		return nil, queryError("offers.ListSites", err)
	}
	found, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Site, error) {
		var s entity.Site
		err := row.Scan(&s.ID, &s.Name)
		return s, err
	})
	if err != nil {
		return nil, queryError("offers.ListSites scan", err)
	}
	return orderSites(siteIDs, found), nil
}

func orderSites(siteIDs []int64, found []entity.Site) []entity.Site {
	names := make(map[int64]string, len(found))
	for _, s := range found {
		names[s.ID] = normalizeText(s.Name)
	}
	out := make([]entity.Site, 0, len(siteIDs))
	for _, id := range siteIDs {
		name, ok := names[id]
		if !ok || name == "" {
			name = fmt.Sprintf("Sitio %d", id)
		}
		out = append(out, entity.Site{ID: id, Name: name})
	}
	return out
}

// lookupBarcodes códigos originales más su forma canónica, sin duplicados.
func lookupBarcodes(barcodes []string) []string {
	seen := make(map[string]struct{}, len(barcodes)*2)
	out := make([]string, 0, len(barcodes)*2)
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, b := range barcodes {
		add(b)
		add(barcode.Canonicalize(b))
	}
	return out
}

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/Comparador-api/internal/domain/repository"
)

var _ repository.SalesFactSource = (*SalesRepo)(nil)

// SalesRepo lee las líneas de venta del período para alimentar el ranking.
type SalesRepo struct {
	pool *pgxpool.Pool
}

// NewSalesRepository construye el adaptador de ventas.
func NewSalesRepository(pool *pgxpool.Pool) *SalesRepo {
	return &SalesRepo{pool: pool}
}

// QuerySales devuelve las ventas del país entre start y end (inclusive), agregadas por
// código de barras y precio. El orden es estable (primera venta del período primero)
// porque el agregador toma el primer precio y los primeros textos no vacíos.
func (r *SalesRepo) QuerySales(ctx context.Context, country string, start, end time.Time) ([]repository.SalesRecord, error) {
	const query = `
	SELECT
	    s.barcode,
	    COALESCE(p.product_group, '')          AS product_group,
	    COALESCE(p.brand, '')                  AS brand,
	    COALESCE(p.description, '')            AS description,
	    s.unit_price,
	    p.cost_price,
	    p.purchase_price_ht,
	    SUM(s.line_total)                      AS revenue,
	    SUM(s.quantity)::BIGINT                AS qty
	FROM sales_lines s
	LEFT JOIN products p ON p.barcode = s.barcode
	WHERE s.country_code = $1
	  AND s.sold_at BETWEEN $2 AND $3
	  AND COALESCE(s.barcode, '') <> ''
	GROUP BY s.barcode, p.product_group, p.brand, p.description, s.unit_price, p.cost_price, p.purchase_price_ht
	ORDER BY MIN(s.sold_at), s.barcode, s.unit_price DESC`

	rows, err := r.pool.Query(ctx, query, strings.ToUpper(country), start, end)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, queryError("sales.QuerySales", fmt.Errorf("esquema de ventas no migrado: %w", err))
		}
		return nil, queryError("sales.QuerySales", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.SalesRecord, error) {
		var rec repository.SalesRecord
		err := row.Scan(
			&rec.Barcode,
			&rec.Group,
			&rec.Brand,
			&rec.Description,
			&rec.Price,
			&rec.CostPrice,
			&rec.PurchasePriceHT,
			&rec.Revenue,
			&rec.Qty,
		)
		return rec, err
	})
	if err != nil {
		return nil, queryError("sales.QuerySales scan", err)
	}

	for i := range records {
		records[i].Barcode = strings.TrimSpace(records[i].Barcode)
		records[i].Group = normalizeText(records[i].Group)
		records[i].Brand = normalizeText(records[i].Brand)
		records[i].Description = normalizeText(records[i].Description)
	}
	return records, nil
}

package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SalesRecord fila cruda de la consulta de ventas. Puede haber varias filas por
// código de barras (por ejemplo una por referencia interna); el agregador las consolida.
// Los textos llegan ya normalizados a UTF-8 por el adaptador.
type SalesRecord struct {
	Barcode         string
	Group           string
	Brand           string
	Description     string
	Price           decimal.Decimal     // precio de venta HT
	CostPrice       decimal.NullDecimal // precio de coste
	PurchasePriceHT decimal.NullDecimal // precio de compra HT
	Revenue         decimal.Decimal
	Qty             int64
}

// SalesFactSource consulta las ventas agregadas por producto para un país y un
// rango de fechas inclusivo. Las implementaciones son read-only.
type SalesFactSource interface {
	QuerySales(ctx context.Context, country string, start, end time.Time) ([]SalesRecord, error)
}

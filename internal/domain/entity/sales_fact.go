package entity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SortMetric métrica de ordenación del ranking de ventas.
type SortMetric string

const (
	SortByQty     SortMetric = "qty"     // unidades vendidas
	SortByRevenue SortMetric = "revenue" // facturación
)

// ParseSortMetric convierte el parámetro de consulta; vacío equivale a SortByQty.
func ParseSortMetric(s string) (SortMetric, error) {
	switch SortMetric(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortByQty:
		return SortByQty, nil
	case SortByRevenue:
		return SortByRevenue, nil
	default:
		return "", fmt.Errorf("sort inválido %q (qty|revenue)", s)
	}
}

// SalesFact una fila por SKU vendido distinto en el período y país consultados.
// Los rangos son 1-based, sin huecos ni duplicados, calculados sobre el conjunto
// previo al filtro de grupos (1 = mejor producto según la métrica).
type SalesFact struct {
	ProductEAN        string
	Group             string // vacío = sin grupo
	Brand             string
	Description       string
	InternalSalePrice decimal.Decimal     // precio de venta propio (HT)
	CostPrice         decimal.NullDecimal // precio de coste, si se conoce
	PurchasePriceHT   decimal.NullDecimal // precio de compra sin impuestos, si se conoce
	TotalQtySold      int64
	TotalRevenue      decimal.Decimal
	RankByQty         int
	RankByRevenue     int
}

// Rank devuelve el rango según la métrica indicada.
func (f SalesFact) Rank(metric SortMetric) int {
	if metric == SortByRevenue {
		return f.RankByRevenue
	}
	return f.RankByQty
}

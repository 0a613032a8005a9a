package entity

import "github.com/shopspring/decimal"

// Site sitio de la competencia cuyos precios se rastrean.
type Site struct {
	ID   int64
	Name string
}

// CompetitorOffer último precio observado de un código de barras en un sitio.
// Como mucho se considera una oferta por (Barcode, SiteID); los duplicados se
// resuelven en la fuente (gana la última escritura).
type CompetitorOffer struct {
	Barcode      string
	SiteID       int64
	SiteName     string
	PriceExclTax decimal.Decimal
	ProductURL   string
	ProductName  string
	Vendor       string
}

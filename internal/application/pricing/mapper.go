package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Comparador-api/internal/application/dto"
	"github.com/jhoicas/Comparador-api/internal/domain/entity"
)

func periodDTO(p entity.Period) dto.PeriodDTO {
	return dto.PeriodDTO{StartDate: p.StartDate(), EndDate: p.EndDate()}
}

func toSalesFactDTO(f entity.SalesFact) dto.SalesFactDTO {
	return dto.SalesFactDTO{
		ProductEAN:        f.ProductEAN,
		Group:             f.Group,
		Brand:             f.Brand,
		Description:       f.Description,
		InternalSalePrice: f.InternalSalePrice,
		CostPrice:         f.CostPrice,
		PurchasePriceHT:   f.PurchasePriceHT,
		TotalQtySold:      f.TotalQtySold,
		TotalRevenue:      f.TotalRevenue,
		RankByQty:         f.RankByQty,
		RankByRevenue:     f.RankByRevenue,
	}
}

func toSalesFactDTOs(facts []entity.SalesFact) []dto.SalesFactDTO {
	out := make([]dto.SalesFactDTO, 0, len(facts))
	for _, f := range facts {
		out = append(out, toSalesFactDTO(f))
	}
	return out
}

func toSiteDTOs(sites []entity.Site) []dto.SiteDTO {
	out := make([]dto.SiteDTO, 0, len(sites))
	for _, s := range sites {
		out = append(out, dto.SiteDTO{ID: s.ID, Name: s.Name})
	}
	return out
}

// toComparisonRowDTOs una columna de oferta por sitio, en el orden de sites.
func toComparisonRowDTOs(rows []entity.ComparisonRow, sites []entity.Site) []dto.ComparisonRowDTO {
	names := make(map[int64]string, len(sites))
	for _, s := range sites {
		names[s.ID] = s.Name
	}

	out := make([]dto.ComparisonRowDTO, 0, len(rows))
	for _, r := range rows {
		offers := make([]dto.SiteOfferDTO, 0, len(r.Sites))
		for _, sc := range r.Sites {
			o := dto.SiteOfferDTO{
				SiteID:       sc.SiteID,
				SiteName:     names[sc.SiteID],
				PriceDiff:    sc.PriceDiff,
				PriceDiffPct: sc.PriceDiffPct,
			}
			if sc.Offer != nil {
				if sc.Offer.SiteName != "" {
					o.SiteName = sc.Offer.SiteName
				}
				o.Price = decimal.NewNullDecimal(sc.Offer.PriceExclTax)
				o.ProductURL = sc.Offer.ProductURL
				o.ProductName = sc.Offer.ProductName
				o.Vendor = sc.Offer.Vendor
			}
			offers = append(offers, o)
		}

		var pop *dto.PopularityDTO
		if r.Popularity != nil {
			pop = &dto.PopularityDTO{
				Rank:           r.Popularity.Rank,
				PreviousRank:   r.Popularity.PreviousRank,
				Delta:          r.Popularity.Delta,
				RelativeDemand: r.Popularity.RelativeDemand,
			}
		}

		out = append(out, dto.ComparisonRowDTO{
			Sale:               toSalesFactDTO(r.Sale),
			Offers:             offers,
			OffersCount:        r.OffersCount,
			AverageMarketPrice: r.AverageMarketPrice,
			MarketDelta:        r.MarketDelta,
			MarketDeltaPct:     r.MarketDeltaPct,
			MarginPct:          r.MarginPct,
			Popularity:         pop,
		})
	}
	return out
}

func toPortfolioStatsDTO(s entity.PortfolioStats) dto.PortfolioStatsDTO {
	return dto.PortfolioStatsDTO{
		SumMarketPrice:   s.SumMarketPrice,
		SumPositiveDelta: s.SumPositiveDelta,
		SumNegativeDelta: s.SumNegativeDelta,
		CountCompared:    s.CountCompared,
		AvgGain:          s.AvgGain,
		AvgLoss:          s.AvgLoss,
		PctGain:          s.PctGain,
		PctLoss:          s.PctLoss,
	}
}

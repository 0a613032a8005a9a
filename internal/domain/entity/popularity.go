package entity

// PopularityRank posición en el ranking externo de más vendidos, indexada por GTIN-14.
// Delta = PreviousRank - Rank: positivo significa que el producto subió hacia el #1.
type PopularityRank struct {
	CanonicalBarcode string
	Rank             *int
	PreviousRank     *int
	Delta            *int
	RelativeDemand   string
}

// Better indica si p tiene mejor (menor) rango que other. Un rango ausente pierde siempre.
func (p PopularityRank) Better(other PopularityRank) bool {
	if p.Rank == nil {
		return false
	}
	if other.Rank == nil {
		return true
	}
	return *p.Rank < *other.Rank
}

// WithDelta devuelve una copia con Delta calculado si falta y ambos rangos existen.
func (p PopularityRank) WithDelta() PopularityRank {
	if p.Delta == nil && p.Rank != nil && p.PreviousRank != nil {
		d := *p.PreviousRank - *p.Rank
		p.Delta = &d
	}
	return p
}

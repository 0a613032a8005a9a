package entity

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Period rango de fechas inclusivo expandido a días completos:
// Start a las 00:00:00 y End a las 23:59:59 del último día.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod normaliza los límites a días completos y valida el orden.
func NewPeriod(start, end time.Time) (Period, error) {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	e := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, end.Location())
	if s.After(e) {
		return Period{}, fmt.Errorf("start_date no puede ser posterior a end_date")
	}
	return Period{Start: s, End: e}, nil
}

// StartDate fecha de inicio en formato YYYY-MM-DD.
func (p Period) StartDate() string { return p.Start.Format(dateLayout) }

// EndDate fecha de fin en formato YYYY-MM-DD.
func (p Period) EndDate() string { return p.End.Format(dateLayout) }

// Key representación estable del período para claves de caché.
func (p Period) Key() string {
	return p.StartDate() + "_" + p.EndDate()
}

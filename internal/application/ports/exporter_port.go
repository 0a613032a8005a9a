package ports

import (
	"context"

	"github.com/jhoicas/Comparador-api/internal/application/dto"
)

// ReportExporter renderiza un informe de comparación (filas ordenadas, un resumen
// de cartera y la lista de sitios) en un formato descargable.
type ReportExporter interface {
	Export(ctx context.Context, report *dto.ComparisonReportDTO) ([]byte, error)
	ContentType() string
	Extension() string
}

package http

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Comparador-api/internal/application/dto"
	"github.com/jhoicas/Comparador-api/internal/application/ports"
	"github.com/jhoicas/Comparador-api/internal/application/pricing"
	"github.com/jhoicas/Comparador-api/internal/domain"
	"github.com/jhoicas/Comparador-api/pkg/logger"
)

// PricingHandler endpoints del comparador de precios ventas vs. mercado.
type PricingHandler struct {
	uc        *pricing.ComparisonUseCase
	exporters map[string]ports.ReportExporter
	log       *logger.Logger
}

// NewPricingHandler construye el handler. exporters se indexa por formato ("xlsx", "pdf").
func NewPricingHandler(uc *pricing.ComparisonUseCase, exporters map[string]ports.ReportExporter, log *logger.Logger) *PricingHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &PricingHandler{uc: uc, exporters: exporters, log: log}
}

// GetRanking godoc
// @Summary      Ranking de ventas por unidades o facturación
// @Description  Tabla deduplicada por EAN con rank_by_qty y rank_by_revenue calculados sobre
//               todo el país/período (antes del filtro de grupos). Sin page devuelve el top N.
// @Tags         pricing
// @Security     Bearer
// @Produce      json
// @Param        country     query  string  true   "País ISO-2 (ej. FR)"
// @Param        start_date  query  string  false  "Inicio del período (YYYY-MM-DD). Default: primer día del mes."
// @Param        end_date    query  string  false  "Fin del período (YYYY-MM-DD). Default: hoy."
// @Param        sort        query  string  false  "qty | revenue (default qty)"
// @Param        groups      query  string  false  "Grupos separados por comas"
// @Param        page        query  int     false  "Página (1..n). Sin page: top N sin paginar."
// @Param        page_size   query  int     false  "Tamaño de página (default 50, max 500)"
// @Success      200  {object}  dto.RankingReportDTO
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/pricing/ranking [get]
func (h *PricingHandler) GetRanking(c *fiber.Ctx) error {
	var req dto.ComparisonRequest
	if err := c.QueryParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Code: "INVALID_PARAMS", Message: "parámetros de consulta inválidos",
		})
	}
	report, err := h.uc.GetRanking(c.UserContext(), req)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(report)
}

// GetComparison godoc
// @Summary      Comparación de precios con la competencia
// @Description  Cruza el ranking de ventas con las ofertas de los sitios configurados: diferencia
//               por sitio, media de mercado, delta, estadísticas de cartera y popularidad externa
//               (null si la API no respondió).
// @Tags         pricing
// @Security     Bearer
// @Produce      json
// @Param        country     query  string  true   "País ISO-2 (ej. FR)"
// @Param        start_date  query  string  false  "Inicio del período (YYYY-MM-DD)"
// @Param        end_date    query  string  false  "Fin del período (YYYY-MM-DD)"
// @Param        sort        query  string  false  "qty | revenue (default qty)"
// @Param        groups      query  string  false  "Grupos separados por comas"
// @Param        page        query  int     false  "Página (1..n)"
// @Param        page_size   query  int     false  "Tamaño de página (default 50, max 500)"
// @Success      200  {object}  dto.ComparisonReportDTO
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/pricing/comparison [get]
func (h *PricingHandler) GetComparison(c *fiber.Ctx) error {
	var req dto.ComparisonRequest
	if err := c.QueryParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Code: "INVALID_PARAMS", Message: "parámetros de consulta inválidos",
		})
	}
	report, err := h.uc.GetComparison(c.UserContext(), req)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(report)
}

// ExportComparison godoc
// @Summary      Exportar la comparación completa
// @Description  Genera un XLSX (detalle por sitio) o un PDF (resumen) con todas las filas,
//               sin tope ni paginación.
// @Tags         pricing
// @Security     Bearer
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce      application/pdf
// @Param        format      query  string  false  "xlsx | pdf (default xlsx)"
// @Param        country     query  string  true   "País ISO-2 (ej. FR)"
// @Param        start_date  query  string  false  "Inicio del período (YYYY-MM-DD)"
// @Param        end_date    query  string  false  "Fin del período (YYYY-MM-DD)"
// @Param        sort        query  string  false  "qty | revenue (default qty)"
// @Param        groups      query  string  false  "Grupos separados por comas"
// @Success      200  {file}    binary
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/pricing/comparison/export [get]
func (h *PricingHandler) ExportComparison(c *fiber.Ctx) error {
	format := strings.ToLower(strings.TrimSpace(c.Query("format", "xlsx")))
	exporter, ok := h.exporters[format]
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Code: "BAD_REQUEST", Message: fmt.Sprintf("formato no soportado: %q", format),
		})
	}

	var req dto.ComparisonRequest
	if err := c.QueryParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Code: "INVALID_PARAMS", Message: "parámetros de consulta inválidos",
		})
	}
	ctx := c.UserContext()
	report, err := h.uc.ExportComparison(ctx, req)
	if err != nil {
		return h.writeError(c, err)
	}
	body, err := exporter.Export(ctx, report)
	if err != nil {
		h.log.Error().Err(err).Str("format", format).Str("report_id", report.ReportID).Msg("exportación fallida")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Code: "EXPORT_FAILED", Message: "no se pudo generar el archivo",
		})
	}

	c.Set(fiber.HeaderContentType, exporter.ContentType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, exportFileName(report, exporter.Extension())))
	return c.Send(body)
}

// InvalidateCache godoc
// @Summary      Invalidar la caché de resultados
// @Description  Sin parámetros borra todo el namespace; con country solo ese país; con country,
//               start_date y end_date solo ese período. key borra una entrada concreta.
// @Tags         pricing
// @Security     Bearer
// @Produce      json
// @Param        country     query  string  false  "País ISO-2"
// @Param        start_date  query  string  false  "Inicio del período (YYYY-MM-DD)"
// @Param        end_date    query  string  false  "Fin del período (YYYY-MM-DD)"
// @Param        key         query  string  false  "Clave exacta"
// @Success      200  {object}  dto.InvalidateCacheResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Router       /api/pricing/cache [delete]
func (h *PricingHandler) InvalidateCache(c *fiber.Ctx) error {
	var req dto.InvalidateCacheRequest
	if err := c.QueryParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Code: "INVALID_PARAMS", Message: "parámetros de consulta inválidos",
		})
	}
	resp, err := h.uc.InvalidateCache(c.UserContext(), req)
	if err != nil {
		return h.writeError(c, err)
	}
	h.log.Info().Str("user_id", GetUserID(c)).Str("scope", resp.Scope).Int("removed", resp.Removed).Msg("invalidación manual de caché")
	return c.JSON(resp)
}

// writeError traduce la taxonomía de errores del dominio a HTTP.
func (h *PricingHandler) writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
	case errors.Is(err, domain.ErrDataSource):
		h.log.Error().Err(err).Str("path", c.Path()).Msg("fuente de datos no disponible")
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "DATA_SOURCE_FAILURE", Message: "fuente de datos no disponible"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.log.Warn().Err(err).Str("path", c.Path()).Msg("petición cancelada")
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "CANCELED", Message: "petición cancelada o fuera de tiempo"})
	default:
		h.log.Error().Err(err).Str("path", c.Path()).Msg("error interno")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"})
	}
}

func exportFileName(report *dto.ComparisonReportDTO, ext string) string {
	id := report.ReportID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("comparacion_%s_%s_%s_%s.%s",
		report.Country, report.Period.StartDate, report.Period.EndDate, id, ext)
}

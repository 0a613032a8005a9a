package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/Comparador-api/internal/application/ports"
	"github.com/jhoicas/Comparador-api/internal/application/pricing"
	"github.com/jhoicas/Comparador-api/pkg/logger"
)

// Pinger comprobación de salud de una dependencia (DB, Redis).
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps dependencias para el router.
type RouterDeps struct {
	PricingUC *pricing.ComparisonUseCase
	Exporters map[string]ports.ReportExporter
	JWTSecret string
	Log       *logger.Logger
	Gatherer  prometheus.Gatherer // nil = sin /metrics
	Checks    map[string]Pinger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", healthHandler(deps.Checks))
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Rutas protegidas (requieren Bearer Token)
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	pricingHandler := NewPricingHandler(deps.PricingUC, deps.Exporters, deps.Log)
	p := api.Group("/pricing")
	p.Get("/ranking", pricingHandler.GetRanking)
	p.Get("/comparison", pricingHandler.GetComparison)
	p.Get("/comparison/export", pricingHandler.ExportComparison)
	p.Delete("/cache", RequireRole(RoleAdmin), pricingHandler.InvalidateCache)
}

// healthHandler 200 si todas las dependencias responden; 503 con el detalle si alguna falla.
func healthHandler(checks map[string]Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := fiber.StatusOK
		deps := make(map[string]string, len(checks))
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				deps[name] = err.Error()
				status = fiber.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}
		state := "ok"
		if status != fiber.StatusOK {
			state = "degraded"
		}
		return c.Status(status).JSON(fiber.Map{"status": state, "dependencies": deps})
	}
}

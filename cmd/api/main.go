package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jhoicas/Comparador-api/internal/application/ports"
	"github.com/jhoicas/Comparador-api/internal/application/pricing"
	"github.com/jhoicas/Comparador-api/internal/infrastructure/cache"
	"github.com/jhoicas/Comparador-api/internal/infrastructure/export"
	"github.com/jhoicas/Comparador-api/internal/infrastructure/popularity"
	"github.com/jhoicas/Comparador-api/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/Comparador-api/internal/interfaces/http"
	"github.com/jhoicas/Comparador-api/pkg/config"
	"github.com/jhoicas/Comparador-api/pkg/logger"
	"github.com/jhoicas/Comparador-api/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Ints64("sites", cfg.Comparison.SiteIDs).
		Msg("iniciando aplicación")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET es obligatorio")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pricingMetrics := metrics.NewPricingMetrics(reg)

	checks := map[string]httpRouter.Pinger{"postgres": pool}

	// Caché de resultados: Redis si está configurado, si no memoria local.
	var resultCache ports.ResultCache
	if cfg.Cache.Enabled {
		var store cache.Store
		if cfg.Redis.Enabled() {
			redisStore, err := cache.NewRedisStore(ctx, cfg.Redis)
			if err != nil {
				log.Fatal().Err(err).Msg("conexión a Redis")
			}
			defer redisStore.Close()
			checks["redis"] = redisStore
			store = redisStore
		} else {
			memStore := cache.NewMemoryStore(time.Minute)
			defer memStore.Close()
			store = memStore
			log.Warn().Msg("REDIS_URL no definido: caché en memoria local")
		}
		resultCache = cache.NewResultCache(store, log.Component("cache"), pricingMetrics)
	}

	keys := pricing.NewKeyBuilder(cfg.Cache.Prefix)
	ttl := pricing.TTLConfig{
		Results:    cfg.Cache.TTLResults,
		Popularity: cfg.Cache.TTLPopularity,
		Count:      cfg.Cache.TTLCount,
	}

	salesRepo := postgres.NewSalesRepository(pool)
	offerRepo := postgres.NewOfferRepository(pool)

	// Popularidad: dependencia blanda, solo si hay cuenta configurada.
	var popularitySource ports.PopularitySource
	if cfg.Popularity.AccountID != "" {
		popularitySource = pricing.NewCachedPopularitySource(
			popularity.NewBestSellersClient(cfg.Popularity, log.Component("bestsellers")),
			resultCache, keys, ttl.Popularity, log.Component("popularity"),
		)
	} else {
		log.Warn().Msg("POPULARITY_ACCOUNT_ID no definido: comparación sin ranking externo")
	}

	comparisonUC := pricing.NewComparisonUseCase(pricing.ComparisonDeps{
		Aggregator: pricing.NewRankedSalesAggregator(salesRepo, cfg.Comparison.DefaultLimit),
		Engine:     pricing.NewMarketComparisonEngine(offerRepo, cfg.Comparison.Workers, cfg.Comparison.LookupBatch),
		Merger:     pricing.NewPopularityMerger(popularitySource, cfg.Popularity.Timeout, log.Component("popularity"), pricingMetrics),
		Offers:     offerRepo,
		Cache:      resultCache,
		Keys:       keys,
		TTL:        ttl,
		SiteIDs:    cfg.Comparison.SiteIDs,
		Log:        log.Component("pricing"),
		Metrics:    pricingMetrics,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 60,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Comparador API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		PricingUC: comparisonUC,
		Exporters: map[string]ports.ReportExporter{
			"xlsx": export.NewXLSXExporter(),
			"pdf":  export.NewPDFExporter(),
		},
		JWTSecret: cfg.JWT.Secret,
		Log:       log.Component("http"),
		Gatherer:  reg,
		Checks:    checks,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}

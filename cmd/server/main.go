package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/toolstack/toolstack/billing"
	"github.com/toolstack/toolstack/catalog"
	"github.com/toolstack/toolstack/entitlement"
	"github.com/toolstack/toolstack/handler"
	"github.com/toolstack/toolstack/identity"
	adminmodule "github.com/toolstack/toolstack/modules/admin"
	billingmodule "github.com/toolstack/toolstack/modules/billing"
	toolsmodule "github.com/toolstack/toolstack/modules/tools"
	"github.com/toolstack/toolstack/pkg/config"
	"github.com/toolstack/toolstack/pkg/httpserver"
	"github.com/toolstack/toolstack/pkg/logger"
	"github.com/toolstack/toolstack/pkg/pg"
	"github.com/toolstack/toolstack/pkg/redis"
	"github.com/toolstack/toolstack/pkg/requestid"
	"github.com/toolstack/toolstack/subscription"
	"github.com/toolstack/toolstack/usage"
)

type appConfig struct {
	Env             string `env:"APP_ENV" envDefault:"development"`
	ServiceName     string `env:"SERVICE_NAME" envDefault:"toolstack"`
	HTTPAddr        string `env:"HTTP_ADDR" envDefault:":8080"`
	CatalogSeedPath string `env:"CATALOG_SEED_PATH"`
}

func main() {
	ctx := context.Background()

	var cfg appConfig
	config.MustLoad(&cfg)
	var pgCfg pg.Config
	config.MustLoad(&pgCfg)
	var redisCfg redis.Config
	config.MustLoad(&redisCfg)
	var paddleCfg billing.PaddleConfig
	config.MustLoad(&paddleCfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	if err := run(ctx, cfg, pgCfg, redisCfg, paddleCfg, log); err != nil {
		log.ErrorContext(ctx, "server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, pgCfg pg.Config, redisCfg redis.Config, paddleCfg billing.PaddleConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	provider, err := billing.NewPaddleProvider(paddleCfg)
	if err != nil {
		return err
	}

	catalogRepo := catalog.NewPgRepository(pool)
	if cfg.CatalogSeedPath != "" {
		if err := catalog.SeedFromFile(ctx, catalogRepo, cfg.CatalogSeedPath); err != nil {
			return err
		}
		log.InfoContext(ctx, "catalog seeded", slog.String("path", cfg.CatalogSeedPath))
	}

	users := identity.NewPgStore(pool)
	usageStore := usage.NewPgStore(pool)
	reserver := usage.NewRedisReserver(redisClient, usageStore)

	subStore := subscription.NewPgStore(pool)
	payments := subscription.NewPgPaymentStore(pool)
	subService := subscription.NewService(subStore, payments, catalogRepo, users, provider, log)
	reconciler := subscription.NewReconciler(subStore, payments, catalogRepo, users, log)

	evaluator := entitlement.NewEvaluator(
		catalogRepo, catalogRepo, catalogRepo,
		subscription.NewPlanSource(subStore),
		usageStore,
	)

	errorHandler := handler.NewErrorHandler(log)
	toolsSvc := toolsmodule.NewService(catalogRepo, evaluator, usageStore, reserver, log, errorHandler)
	billingSvc := billingmodule.NewService(catalogRepo, subService, reconciler, provider, log, errorHandler)
	adminSvc := adminmodule.NewService(catalogRepo, subService, log, errorHandler)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)

	r.Get("/health", httpserver.HealthCheckHandler(ctx, log,
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient),
	))

	// Webhook authenticates by signature, outside the user middleware.
	r.Post("/webhook/paddle", billingSvc.HandleWebhook())

	r.Group(func(r chi.Router) {
		r.Use(identity.RequireUser(users, log))
		r.Mount("/tools", toolsSvc.Handle())
		r.Mount("/billing", billingSvc.Handle())
		r.Mount("/admin", adminSvc.Handle())
	})

	srv := httpserver.New(
		httpserver.WithAddr(cfg.HTTPAddr),
		httpserver.WithLogger(log),
		httpserver.WithReadTimeout(10*time.Second),
		httpserver.WithWriteTimeout(30*time.Second),
		httpserver.WithStartHook(func(l *slog.Logger) {
			l.Info("http server starting", slog.String("addr", cfg.HTTPAddr))
		}),
		httpserver.WithStopHook(func(l *slog.Logger) {
			l.Info("http server stopped")
		}),
	)
	return srv.Run(ctx, http.Handler(r))
}

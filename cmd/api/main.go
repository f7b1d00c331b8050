package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"clipforge/internal/adapter/repo"
	"clipforge/internal/domain"
	"clipforge/internal/http/handlers"
	"clipforge/internal/http/httpapi"
	"clipforge/internal/infra"
	"clipforge/internal/infra/geoip"
	"clipforge/internal/localstore"
	"clipforge/internal/middleware"
	"clipforge/internal/provider"
	"clipforge/internal/service"
	"clipforge/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("ensure schema")
	}

	jobs := repo.NewJobLedger(pool)
	points := repo.NewPointsLedger(pool, cfg.StarterPoints)

	local, err := localstore.New(cfg.LocalStorePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("init device store")
	}

	var objects storage.ObjectStore
	var staticDir string
	if cfg.UseS3() {
		objects, err = storage.NewS3Store(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("init s3 storage")
		}
	} else {
		objects, err = storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("init filesystem storage")
		}
		staticDir = cfg.StoragePath
	}

	tasks, err := provider.NewClient(provider.Options{
		APIKey:       cfg.ProviderAPIKey,
		BaseURL:      cfg.ProviderBaseURL,
		WrapperModel: cfg.ProviderModel,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init provider client")
	}

	classifier := domain.NewFailureClassifier(cfg.SafetyMarkers)
	settler := service.NewSettler(points, logger)
	reconciler := service.NewReconciler(jobs, local, tasks, classifier, settler, logger, service.ReconcilerOptions{
		FastInterval: cfg.PollFastInterval,
		SlowInterval: cfg.PollSlowInterval,
		FastPhase:    cfg.PollFastPhase,
		MaxAge:       cfg.PollMaxAge,
	})
	reconciler.Start(ctx)
	go reconciler.RunSweeps(ctx, cfg.SweepInterval)

	submitter := service.NewSubmitter(jobs, points, local, objects, tasks, reconciler, logger)
	pointsSvc := service.NewPoints(points, cfg.PromoCodes, logger)

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip unavailable")
	} else if resolver != nil {
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		Submitter:  submitter,
		Reconciler: reconciler,
		Points:     pointsSvc,
		Jobs:       jobs,
		Local:      local,
		Objects:    objects,
		Logger:     logger,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Config:        cfg,
		Logger:        logger,
		CountryLookup: lookup,
		StaticDir:     staticDir,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	logger.Info().Msg("server stopped")
}

package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"songapi/internal/adapter/repo"
	"songapi/internal/domain"
	"songapi/internal/generation"
	"songapi/internal/http/handlers"
	httpapi "songapi/internal/http/httpapi"
	"songapi/internal/infra"
	"songapi/internal/infra/geoip"
	"songapi/internal/middleware"
	"songapi/internal/providers/acestep"
	"songapi/internal/providers/lyrics"
	"songapi/internal/quota"
	"songapi/internal/telemetry"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Quota
	store := quota.NewStore()
	store.StartJanitor(ctx, cfg.QuotaSweepInterval, func(removed int) {
		logger.Debug().Int("removed", removed).Msg("quota sweep")
	})
	memStats := quota.NewMemoryStats()
	recorders := []quota.StatsRecorder{memStats}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, quota stats kept in memory only")
	}
	if rdb != nil {
		defer rdb.Close()
		recorders = append(recorders, quota.NewRedisStats(rdb))
	}

	// History
	var history domain.GenerationRepository
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	if pool != nil {
		defer pool.Close()
		generations := repo.NewGenerationRepository(infra.NewSQLRunner(pool, logger))
		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := generations.EnsureSchema(schemaCtx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare generations table")
		}
		cancel()
		history = generations
	}

	// Providers
	lyricClient := lyrics.NewClient(lyrics.Options{
		BaseURL: cfg.LyricsBaseURL,
		Locale:  cfg.LyricsLocale,
		Logger:  &logger,
	})
	audioClient := acestep.NewClient(acestep.Options{
		BaseURL: cfg.AceStepBaseURL,
		Logger:  &logger,
	})
	orchestrator := generation.New(generation.Options{
		Lyrics:  lyricClient,
		Audio:   audioClient,
		Budget:  acestep.PollBudget{MaxAttempts: cfg.PollMaxAttempts, Interval: cfg.PollInterval},
		Timeout: cfg.GenerationTimeout,
		History: history,
		Logger:  &logger,
	})

	// Geo
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath, cfg.GeoIPASNDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, falling back to http lookup")
	}
	var (
		geo           geoip.Chain
		countryLookup middleware.CountryLookup
	)
	if resolver != nil {
		defer resolver.Close()
		geo = append(geo, resolver)
		countryLookup = resolver.CountryCode
	}
	geo = append(geo, geoip.NewHTTPProvider(cfg.GeoHTTPBaseURL, nil))

	requests := new(atomic.Int64)
	app := handlers.NewApp(handlers.App{
		Creator:    cfg.Creator,
		DailyLimit: cfg.DailyLimit,
		Generator:  orchestrator,
		Quota:      store,
		QuotaStats: memStats,
		Requests:   requests,
		System:     telemetry.NewCollector(telemetry.Options{Logger: &logger}),
		Geo:        geo,
		History:    history,
		Logger:     &logger,
		StartedAt:  time.Now(),
	})

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger: logger,
		Quota: middleware.QuotaOptions{
			Store:   store,
			Limit:   cfg.DailyLimit,
			Creator: cfg.Creator,
			Stats:   quota.Fanout(recorders...),
			Total:   requests,
			Logger:  &logger,
		},
		MaxConcurrent:      cfg.GenerationMaxConcurrent,
		AcquireTimeout:     2 * time.Second,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		DefaultLocale:      cfg.LyricsLocale,
		CountryLookup:      countryLookup,
		StaticDir:          cfg.StaticDir,
	})

	server := infra.NewHTTPServer(cfg, router)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Int("daily_limit", cfg.DailyLimit).
			Int("routes", app.RoutesLoaded).
			Msg("songapi listening")
		serveErr <- server.Start()
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn().Err(err).Msg("systemd notify failed")
	} else if ok {
		logger.Debug().Msg("systemd notified ready")
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/monitor"
	"server/internal/progress"
	"server/internal/providers/mediastore"
	"server/internal/upload"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := repo.RunMigrations(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}

	geo, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		// Geo enrichment is optional; the service runs without it.
		logger.Warn().Err(err).Msg("geoip database unavailable, country logging disabled")
		geo = nil
	}
	if geo != nil {
		defer geo.Close()
	}

	mediaLogger := logger.With().Str("component", "mediastore").Logger()
	assets, err := mediastore.NewClient(mediastore.Options{
		CloudName:      cfg.MediaCloudName,
		APIKey:         cfg.MediaAPIKey,
		APISecret:      cfg.MediaAPISecret,
		RequestTimeout: cfg.MediaUploadTimeout,
		Logger:         &mediaLogger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure media storage client")
	}

	ledger := progress.NewLedger(cfg.UploadStatusTTL)
	videos := repo.NewVideoRepository(dbpool)
	users := repo.NewUserRepository(dbpool)

	app := &handlers.App{
		Logger:   logger,
		Pool:     dbpool,
		Cfg:      cfg,
		Videos:   videos,
		Users:    users,
		Uploader: upload.NewOrchestrator(assets, videos, ledger, logger, cfg.MediaVideoFolder, cfg.MediaThumbnailFolder),
		Progress: ledger,
		Monitor:  monitor.NewStore(cfg.SlowRequestThreshold),
	}

	router := httpapi.NewRouter(app, geo)
	server := infra.NewHTTPServer(cfg, router)

	// Periodic sweep bounds ledger memory between polls; expiry itself is
	// enforced lazily on every read.
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if evicted := ledger.Sweep(); evicted > 0 {
					logger.Debug().Int("evicted", evicted).Msg("expired upload sessions swept")
				}
			}
		}
	}()

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

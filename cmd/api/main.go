package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"mediatools/internal/adapter/redisusage"
	"mediatools/internal/adapter/repo"
	"mediatools/internal/domain"
	"mediatools/internal/http/handlers"
	httpapi "mediatools/internal/http/httpapi"
	"mediatools/internal/infra"
	"mediatools/internal/infra/geoip"
	"mediatools/internal/jobs"
	"mediatools/internal/middleware"
	"mediatools/internal/orchestrator"
	"mediatools/internal/plans"
	"mediatools/internal/providers/media"
	"mediatools/internal/quota"
	"mediatools/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable usage and plan stores are optional; without them the process
	// runs on in-memory counters only.
	var (
		planStore   domain.PlanStore
		usageStores []domain.UsageStore
	)
	pool, err := infra.NewDBPool(ctx, cfg)
	switch {
	case err == nil:
		defer pool.Close()
		runner := infra.NewSQLRunner(pool, logger)
		profiles := repo.NewProfileRepository(runner)
		planStore = profiles
		usageStores = append(usageStores, profiles, repo.NewUsageRepository(runner))
	case errors.Is(err, infra.ErrNoDatabase):
		logger.Warn().Msg("DATABASE_URL not set, plans come from tokens and usage is in-memory")
	default:
		logger.Fatal().Err(err).Msg("failed to connect database")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	if rdb != nil {
		defer rdb.Close()
		usageStores = append(usageStores, redisusage.New(rdb))
	}

	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer geo.Close()
	var country middleware.CountryLookup
	if geo != nil {
		country = geo.CountryCode
	}

	store, filesDir := newResultStore(ctx, cfg, logger)

	registry := jobs.NewRegistry(logger)
	tracker := quota.NewTracker(plans.Lowest().Limits(), logger, quota.WithWindow(cfg.QuotaWindow))
	resolver := plans.NewResolver(logger, planStore, usageStores...)
	orch := orchestrator.New(registry, tracker, resolver, logger, orchestrator.WithJobTimeout(cfg.JobTimeout))

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	registry.StartSweeper(bgCtx, cfg.JobSweepInterval, cfg.JobRetention)
	tracker.Start(bgCtx, cfg.QuotaSweepInterval)

	app := &handlers.App{
		Orchestrator:   orch,
		Registry:       registry,
		Tracker:        tracker,
		Plans:          resolver,
		Downloader:     media.NewDownloader(store, cfg.WorkDir, cfg.YTDLPPath),
		Converter:      media.NewConverter(store, cfg.WorkDir, cfg.FFmpegPath, cfg.FFprobePath),
		Info:           media.NewInfoClient(),
		Store:          store,
		Logger:         logger,
		UploadDir:      filepath.Join(cfg.WorkDir, "uploads"),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	router := httpapi.NewRouter(app, logger, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		JWTIssuer:       cfg.JWTIssuer,
		AdminToken:      cfg.AdminToken,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		RateLimitBurst:  cfg.RateLimitBurst,
		Country:         country,
		TrustedProxies:  cfg.TrustedProxies,
		FilesDir:        filesDir,
		FilesPrefix:     cfg.PublicFilesBase,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	cancelBackground()
	if err := orch.Wait(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("jobs still running at shutdown")
	}
	logger.Info().Msg("server stopped")
}

// newResultStore picks S3 when an endpoint is configured and the local
// file store otherwise. The returned directory is served over HTTP and is
// empty for S3.
func newResultStore(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (media.ResultStore, string) {
	if cfg.UseS3() {
		s3, err := storage.NewS3Store(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			URLTTL:    cfg.S3URLTTL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("s3 storage init failed")
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			logger.Fatal().Err(err).Msg("s3 bucket unavailable")
		}
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("storing results in s3")
		return s3, ""
	}

	fs, err := storage.NewFileStore(cfg.StoragePath, cfg.PublicFilesBase)
	if err != nil {
		logger.Fatal().Err(err).Msg("file storage init failed")
	}
	return fs, fs.BasePath()
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/feedback"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/providers/genai"
	"server/internal/providers/retouch"
	"server/internal/retouchjob"
	"server/internal/storage"
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

	var blobs storage.Store
	switch cfg.Storage {
	case "minio":
		blobs, err = storage.NewMinioStore(ctx, storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			BaseURL:   cfg.StorageBaseURL,
		})
	default:
		blobs, err = storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		ImageModel: cfg.GeminiImageModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure gemini client")
	}
	if cfg.GeminiAPIKey == "" {
		logger.Warn().Str("model", geminiClient.Model()).Msg("gemini api key missing, using synthetic providers")
	}
	provider := retouch.NewGeminiProvider(geminiClient)

	jobs := repo.NewJobRepository(dbpool)
	ratings := repo.NewRatingRepository(dbpool)
	overrides := repo.NewPromptOverrideRepository(dbpool)

	aggregator := feedback.NewAggregator(ratings, overrides)
	revisor := feedback.NewController(aggregator, jobs, overrides, blobs, provider, logger)

	orchestrator := retouchjob.NewOrchestrator(retouchjob.Options{
		Jobs:      jobs,
		Overrides: overrides,
		Ratings:   ratings,
		Blobs:     blobs,
		Detector:  provider,
		Retoucher: provider,
		Logger:    logger,
		OnRated: func(ctx context.Context) {
			if _, err := revisor.CheckAndRevise(ctx); err != nil {
				logger.Warn().Err(err).Msg("revision check failed")
			}
		},
	})

	app := &handlers.App{
		Orchestrator:   orchestrator,
		Aggregator:     aggregator,
		Revisor:        revisor,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	}

	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
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

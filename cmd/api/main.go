package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/voxdoc/voxdoc-back/internal/config"
	httpserver "github.com/voxdoc/voxdoc-back/internal/http"
	"github.com/voxdoc/voxdoc-back/internal/http/handlers"
	"github.com/voxdoc/voxdoc-back/internal/pipeline"
	"github.com/voxdoc/voxdoc-back/internal/progress"
	"github.com/voxdoc/voxdoc-back/internal/queue"
	"github.com/voxdoc/voxdoc-back/internal/service"
	"github.com/voxdoc/voxdoc-back/internal/storage"
	"github.com/voxdoc/voxdoc-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[voxdoc] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("failed loading .env file: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	progress.ConfigureRetention(
		time.Duration(cfg.ProgressTTLMinutes)*time.Minute,
		time.Duration(cfg.ArtifactTTLHours)*time.Hour,
	)

	store, storeCloser := setupProgressStore(ctx, cfg, logger)
	defer storeCloser()

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	cache, cacheCloser := setupArtifactCache(ctx, cfg, logger)
	defer cacheCloser()

	remote := storage.NewRemoteClient(storage.RemoteClientConfig{
		BaseURL:    cfg.StorageBaseURL,
		APIKey:     cfg.StorageAPIKey,
		Bucket:     cfg.StorageBucket,
		CDNBaseURL: cfg.StorageCDNURL,
		Timeout:    time.Duration(cfg.StorageTimeoutMS) * time.Millisecond,
	})
	outputs := storage.NewOutputStore(cache, remote, logger)

	translator := pipeline.NewTranslator(pipeline.TranslatorConfig{
		BaseURL:      cfg.TranslateBaseURL,
		APIKey:       cfg.TranslateAPIKey,
		ChunkTimeout: time.Duration(cfg.TranslateTimeoutMS) * time.Millisecond,
		DocTimeout:   time.Duration(cfg.TranslateDocTimeoutMS) * time.Millisecond,
		Pacer:        pipeline.NewPacer(cfg.TranslateMaxRPS),
	})
	synthesizer := pipeline.NewSynthesizer(pipeline.SynthesizerConfig{
		BaseURL:      cfg.SynthesisBaseURL,
		APIKey:       cfg.SynthesisAPIKey,
		Timeout:      time.Duration(cfg.SynthesisTimeoutMS) * time.Millisecond,
		MaxRetries:   cfg.SynthesisMaxRetries,
		RetryBackoff: time.Duration(cfg.SynthesisRetryBackoffMS) * time.Millisecond,
		FfmpegPath:   cfg.FfmpegPath,
		Pacer:        pipeline.NewPacer(cfg.SynthesisMaxRPS),
		Logger:       logger,
	})

	jobsService := service.NewJobsService(store, producer, outputs, cfg.UploadDir)
	api := handlers.NewAPI(jobsService, cfg.MaxUploadBytes)

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		processor := worker.NewProcessor(worker.Dependencies{
			Consumer:    consumer,
			Store:       store,
			Outputs:     outputs,
			Extractor:   pipeline.NewExtractor(cfg.PdftotextPath),
			Chunker:     pipeline.NewChunker(cfg.MaxChunkChars),
			Translator:  translator,
			Synthesizer: synthesizer,
			Dispatcher:  pipeline.NewDispatcher(cfg.DispatcherWidth, logger),
			Assembler: pipeline.NewAssembler(pipeline.AssemblerConfig{
				MemLimitBytes: int64(cfg.AssembleMemLimitMB) << 20,
				BatchSize:     cfg.AssembleBatchSize,
				FfmpegPath:    cfg.FfmpegPath,
			}),
			Renderer:  pipeline.NewRenderer(),
			OutputDir: cfg.OutputDir,
			Logger:    logger,
		})
		go processor.Start(ctx)
		logger.Printf("worker enabled and started")
	} else {
		logger.Printf("worker disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupProgressStore(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (progress.Store, func()) {
	fallback, err := progress.NewFileStore(cfg.StateDir)
	if err != nil {
		logger.Printf("failed to initialize file progress store: %v", err)
	}

	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory progress store")
		if fallback == nil {
			return progress.NewMemoryStore(), func() {}
		}
		return progress.NewTiered(progress.NewMemoryStore(), fallback, logger), func() {}
	}

	primary, err := progress.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres progress store, fallback to memory: %v", err)
		if fallback == nil {
			return progress.NewMemoryStore(), func() {}
		}
		return progress.NewTiered(progress.NewMemoryStore(), fallback, logger), func() {}
	}
	logger.Printf("postgres progress store initialized")
	go cleanupExpiredStates(ctx, primary, logger)
	if fallback == nil {
		return primary, primary.Close
	}
	return progress.NewTiered(primary, fallback, logger), primary.Close
}

func cleanupExpiredStates(ctx context.Context, store *progress.PostgresStore, logger *log.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupExpired(ctx)
			if err != nil {
				logger.Printf("expired state cleanup failed: %v", err)
				continue
			}
			if removed > 0 {
				logger.Printf("expired state cleanup removed %d records", removed)
			}
		}
	}
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(128, 3, logger)
		return local, local, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Stream:      cfg.RedisStream,
		DLQStream:   cfg.RedisDLQ,
		Group:       cfg.RedisGroup,
		Consumer:    cfg.RedisConsumer,
		MaxAttempts: 3,
	})
	if err != nil {
		logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
		local := queue.NewLocalQueue(128, 3, logger)
		return local, local, func() {}
	}
	logger.Printf("redis streams queue initialized")
	return streams, streams, func() {
		_ = streams.Close()
	}
}

func setupArtifactCache(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (storage.ArtifactCache, func()) {
	ttl := time.Duration(cfg.ArtifactCacheTTLDays) * 24 * time.Hour
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using in-memory artifact cache")
		return storage.NewMemoryCache(ttl, 256), func() {}
	}

	cache, err := storage.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, ttl)
	if err != nil {
		logger.Printf("failed to initialize redis artifact cache, fallback to memory: %v", err)
		return storage.NewMemoryCache(ttl, 256), func() {}
	}
	logger.Printf("redis artifact cache initialized")
	return cache, func() {
		_ = cache.Close()
	}
}

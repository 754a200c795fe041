// Command ingestd wires the config, database pool, object-store loader,
// AI client, queue, worker pool, and HTTP surface into a single running
// service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"semanticpipe/internal/config"
	"semanticpipe/internal/consolidate"
	"semanticpipe/internal/consolidate/chunker"
	"semanticpipe/internal/enrich/aiclient"
	"semanticpipe/internal/enrich/jobtracker"
	"semanticpipe/internal/enrich/persist"
	"semanticpipe/internal/enrich/queue"
	"semanticpipe/internal/enrich/ratelimit"
	"semanticpipe/internal/enrich/worker"
	"semanticpipe/internal/httpapi"
	"semanticpipe/internal/ingest"
	"semanticpipe/internal/notify"
	"semanticpipe/internal/obs"
	"semanticpipe/internal/persistence"
	"semanticpipe/internal/search"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func main() {
	logger := obs.NewLogrusLogger(getenv("LOG_LEVEL", "info"))
	if err := run(logger); err != nil {
		logger.Error("ingestd: fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger obs.Logger) error {
	baseCtx := context.Background()

	var cfg *config.PipelineConfig
	if path := os.Getenv("PIPELINE_CONFIG_FILE"); path != "" {
		loaded, err := config.LoadPipelineConfig(path)
		if err != nil {
			return fmt.Errorf("load pipeline config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = &config.PipelineConfig{}
	}
	applyEnvOverrides(cfg)

	pool, err := persistence.OpenPool(baseCtx, getenv("DATABASE_URL", ""))
	if err != nil {
		return fmt.Errorf("open database pool: %w", err)
	}
	defer pool.Close()

	store, err := persistence.NewPostgresStore(baseCtx, pool, dimensionsFromEnv())
	if err != nil {
		return fmt.Errorf("init postgres store: %w", err)
	}

	loader, err := ingest.NewS3Loader(baseCtx, cfg.DefaultS3Bucket)
	if err != nil {
		return fmt.Errorf("init s3 loader: %w", err)
	}

	limiters, err := buildLimiters(cfg)
	if err != nil {
		return fmt.Errorf("init rate limiters: %w", err)
	}
	ai := aiclient.New(aiclient.Config{
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		ChatModel:        cfg.ModelID,
		MaxTokens:        int64(cfg.BedrockMaxTokens),
		EmbeddingBaseURL: os.Getenv("EMBEDDING_BASE_URL"),
		EmbeddingPath:    getenv("EMBEDDING_PATH", "/embed"),
		EmbeddingAPIKey:  os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingHeader:  getenv("EMBEDDING_AUTH_HEADER", "Authorization"),
		EmbeddingTimeout: 30 * time.Second,
	}, limiters, http.DefaultClient)

	q, err := queue.NewSQSQueue(baseCtx, cfg.QueueURL, cfg.QueueVisibilitySec)
	if err != nil {
		return fmt.Errorf("init sqs queue: %w", err)
	}

	notifier := notify.NewRegistry()
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		sink, err := notify.NewKafkaSink(brokers, getenv("KAFKA_TOPIC", "ingestd.progress"))
		if err != nil {
			return fmt.Errorf("init kafka sink: %w", err)
		}
		notifier.SetSink(sink)
	}

	consolidator := consolidate.New(consolidate.Config{
		DeduplicateConsolidated: cfg.DeduplicateConsolidated,
		Chunker: chunkerConfig(cfg),
	}, store, store, store, store, store, ai, logger)

	tracker := jobtracker.New(store, consolidator, notifier, logger)
	persister := persist.New(store)

	pool2 := worker.New(worker.Config{
		PoolSize:      cfg.WorkerPoolSize,
		ThrottleDelay: time.Duration(cfg.ThrottleDelaySec) * time.Second,
	}, q, ai, persister, tracker, store, logger)

	orchestrator := ingest.New(loader, store, store, q, store, ingest.WithLogger(logger))
	searcher := search.New(store, ai)
	httpServer := httpapi.NewPipelineServer(orchestrator, store, notifier, searcher)

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- pool2.Run(ctx)
	}()

	srv := &http.Server{Addr: ":" + getenv("HTTP_PORT", "8080"), Handler: httpServer}
	go func() {
		logger.Info("ingestd: http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("ingestd: component exited early", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ingestd: http shutdown error", "error", err)
	}

	logger.Info("ingestd: stopped")
	return nil
}

func applyEnvOverrides(cfg *config.PipelineConfig) {
	if v := os.Getenv("QUEUE_URL"); v != "" {
		cfg.QueueURL = v
	}
	if v := os.Getenv("DEFAULT_S3_BUCKET"); v != "" {
		cfg.DefaultS3Bucket = v
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = getenvInt("WORKER_POOL_SIZE", 4)
	}
	if cfg.QueueVisibilitySec <= 0 {
		cfg.QueueVisibilitySec = int32(getenvInt("QUEUE_VISIBILITY_SEC", 300))
	}
	if cfg.ThrottleDelaySec <= 0 {
		cfg.ThrottleDelaySec = getenvInt("THROTTLE_DELAY_SEC", 180)
	}
	if cfg.ChatQPS <= 0 {
		cfg.ChatQPS = 0.5
	}
	if cfg.EmbedQPS <= 0 {
		cfg.EmbedQPS = 5.0
	}
}

// buildLimiters returns process-local limiters by default, or Redis-backed
// limiters shared across instances when REDIS_ADDR is set.
func buildLimiters(cfg *config.PipelineConfig) (*ratelimit.Limiters, error) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return ratelimit.NewRedisLimiters(addr, cfg.ChatQPS, cfg.EmbedQPS)
	}
	return ratelimit.New(cfg.ChatQPS, cfg.EmbedQPS), nil
}

func dimensionsFromEnv() int {
	return getenvInt("EMBEDDING_DIMENSIONS", 1536)
}

func chunkerConfig(cfg *config.PipelineConfig) chunker.Config {
	return chunker.Config{
		LengthThreshold:   cfg.LengthThreshold,
		SentencesPerChunk: cfg.SentencesPerChunk,
		SentenceOverlap:   cfg.SentenceOverlap,
	}
}

// Package main is the entry point for the contextforge service
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/contextforge/contextforge/internal/api"
	"github.com/contextforge/contextforge/internal/cache"
	"github.com/contextforge/contextforge/internal/config"
	"github.com/contextforge/contextforge/internal/crawler"
	"github.com/contextforge/contextforge/internal/embedding"
	"github.com/contextforge/contextforge/internal/observability"
	"github.com/contextforge/contextforge/internal/pipeline"
	"github.com/contextforge/contextforge/internal/processor"
	"github.com/contextforge/contextforge/internal/repository"
	"github.com/contextforge/contextforge/internal/search"
	"github.com/contextforge/contextforge/internal/service"
	"github.com/contextforge/contextforge/internal/vector"
	"github.com/contextforge/contextforge/migrations"
)

var (
	// Version information (set via ldflags during build)
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("contextforge\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n",
			version, buildTime, gitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewStandardLoggerWithLevel("contextforge", observability.ParseLevel(cfg.Service.LogLevel))
	logger.Info("Starting contextforge", map[string]interface{}{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	if err := runMigrations(db, logger); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store, err := vector.NewMilvusStore(ctx, cfg.Vector.Address, logger)
	if err != nil {
		log.Fatalf("Failed to connect to vector store: %v", err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("Failed to close vector store connection", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	sourceRepo := repository.NewSourceRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	jobRepo := repository.NewCrawlJobRepository(db)

	router, err := vector.NewRouter(store, sourceRepo, logger)
	if err != nil {
		log.Fatalf("Failed to create collection router: %v", err)
	}

	provider, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		Endpoint:       cfg.Embedding.Endpoint,
		APIKey:         cfg.Embedding.APIKey,
		Model:          cfg.Embedding.Model,
		Dimensions:     cfg.Embedding.Dimensions,
		RequestTimeout: cfg.Embedding.SubBatchTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to create embedding provider: %v", err)
	}

	batcher := embedding.NewBatcher(provider, embedding.BatcherConfig{
		SubBatchSize:    cfg.Embedding.BatchSize,
		MaxRetries:      cfg.Embedding.RetryAttempts,
		RetryDelay:      cfg.Embedding.RetryDelay,
		SubBatchTimeout: cfg.Embedding.SubBatchTimeout,
		RateLimitRPM:    cfg.Embedding.RateLimitRPM,
	}, logger)

	embCache := buildEmbeddingCache(cfg, logger)

	chunker := processor.NewChunker(cfg.Processing.ChunkSize, cfg.Processing.ChunkOverlap)
	pipe := pipeline.NewPipeline(sourceRepo, documentRepo, chunkRepo, store, router, batcher, chunker, logger)

	fetcher := crawler.NewFetcher(crawler.FetcherConfig{
		UserAgent:         cfg.Crawler.UserAgent,
		Timeout:           cfg.Crawler.FetchTimeout,
		RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
	}, logger)

	crawls := crawler.NewManager(jobRepo, fetcher, pipe, crawler.ManagerConfig{
		MaxPages:          cfg.Crawler.MaxPages,
		MaxDepth:          cfg.Crawler.MaxDepth,
		ErrorThreshold:    cfg.Crawler.ErrorThreshold,
		JobTimeout:        cfg.Crawler.JobTimeout,
		MaxConcurrentJobs: cfg.Crawler.MaxConcurrentJobs,
	}, logger)

	engine := search.NewEngine(batcher, store, chunkRepo, sourceRepo, embCache, search.Config{
		VectorWeight: cfg.Search.VectorWeight,
		TextWeight:   cfg.Search.TextWeight,
		Oversample:   cfg.Search.Oversample,
		DefaultLimit: cfg.Search.DefaultLimit,
	}, logger)

	svc := service.NewService(db, sourceRepo, documentRepo, router, pipe, crawls, engine, logger)

	httpRouter := mux.NewRouter()
	api.NewHandler(svc, logger).RegisterRoutes(httpRouter)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Service.Port),
		Handler: httpRouter,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", map[string]interface{}{
			"port": cfg.Service.Port,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})
	case err := <-serverErr:
		logger.Error("HTTP server error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger.Info("Starting graceful shutdown", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to stop background crawls", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cancel()
	logger.Info("Shutdown complete", nil)
}

// connectDatabase opens the relational store and verifies connectivity
func connectDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	return db, nil
}

// runMigrations applies the embedded schema migrations
func runMigrations(db *sqlx.DB, logger observability.Logger) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info("Database migrations applied", nil)
	return nil
}

// buildEmbeddingCache wires the optional Redis-backed query embedding
// cache. An empty Redis address disables caching; the search engine
// then embeds every query directly.
func buildEmbeddingCache(cfg *config.Config, logger observability.Logger) *cache.EmbeddingCache {
	if cfg.Redis.Address == "" {
		logger.Info("Redis not configured, embedding cache disabled", nil)
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Address,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.Database,
		DialTimeout: cfg.Redis.DialTimeout,
		PoolSize:    cfg.Redis.PoolSize,
	})

	redisCache := cache.NewRedisCache(client, cache.DefaultConfig(), logger)
	return cache.NewEmbeddingCache(redisCache, cfg.Embedding.Model, logger)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/valtric/dealbrain/internal/config"
	"github.com/valtric/dealbrain/internal/domain"
	logpkg "github.com/valtric/dealbrain/internal/logger"
	"github.com/valtric/dealbrain/internal/metrics"
	"github.com/valtric/dealbrain/internal/postgres"
	"github.com/valtric/dealbrain/internal/redis"
	dealrepo "github.com/valtric/dealbrain/internal/repository/deal"
	"github.com/valtric/dealbrain/internal/repository/embcache"
	"github.com/valtric/dealbrain/internal/repository/evidence"
	lineagerepo "github.com/valtric/dealbrain/internal/repository/lineage"
	snapshotrepo "github.com/valtric/dealbrain/internal/repository/snapshot"
	vectorrepo "github.com/valtric/dealbrain/internal/repository/vector"
	chiTransport "github.com/valtric/dealbrain/internal/transport/chi"
	openaiTransport "github.com/valtric/dealbrain/internal/transport/openai"
	analysisuc "github.com/valtric/dealbrain/internal/usecase/analysis"
	healthuc "github.com/valtric/dealbrain/internal/usecase/health"
	retrievaluc "github.com/valtric/dealbrain/internal/usecase/retrieval"
	routinguc "github.com/valtric/dealbrain/internal/usecase/routing"
	snapshotuc "github.com/valtric/dealbrain/internal/usecase/snapshot"
	"github.com/valtric/dealbrain/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting dealbrain API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("redis_addrs", cfg.Redis.Addrs),
	)

	ctx := context.Background()

	// Relational store: deals, snapshots, chunks, lineage
	pool, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("Failed to create postgres pool", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.WaitForReady(ctx, pool, time.Duration(cfg.Postgres.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Postgres not ready", zap.Error(err))
	}
	logger.Info("Connected to postgres")

	// Cache store: evidence packs and embeddings
	store, err := redis.NewStore(redis.Config{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create redis store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, 10*time.Second); err != nil {
		logger.Fatal("Redis not ready", zap.Error(err))
	}
	logger.Info("Connected to redis")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Embedder chain — composition root
	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:     logger,
	})
	embedder := embcache.New(baseEmbedder, store, cfg.Redis.KeyPrefix, metrics.EmbeddingCacheTotal, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// One completer per inference tier, each behind its own circuit breaker
	tiers := openaiTransport.Tiers{
		Fast: openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
			APIKey:      cfg.Inference.APIKey,
			BaseURL:     cfg.Inference.BaseURL,
			Tier:        domain.TierFast,
			Model:       cfg.Inference.Fast.Model,
			Temperature: cfg.Inference.Fast.Temperature,
			Logger:      logger,
		}),
		Deep: openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
			APIKey:      cfg.Inference.APIKey,
			BaseURL:     cfg.Inference.BaseURL,
			Tier:        domain.TierDeep,
			Model:       cfg.Inference.Deep.Model,
			Temperature: cfg.Inference.Deep.Temperature,
			Logger:      logger,
		}),
	}

	// Repositories
	dealRepo := dealrepo.New(pool)
	snapRepo := snapshotrepo.New(pool)
	vectorRepo := vectorrepo.New(pool)
	lineageRepo := lineagerepo.New(pool)
	packCache := evidence.NewCache(
		store,
		cfg.Redis.KeyPrefix,
		time.Duration(cfg.Retrieval.CacheTTLSec)*time.Second,
		metrics.EvidenceCacheTotal,
		logger,
	)

	// Use case services
	snapSvc := snapshotuc.New(snapRepo, logger)
	retrievalSvc := retrievaluc.New(
		vectorRepo,
		embedder,
		packCache,
		retrievaluc.NewReranker(cfg.Retrieval.Reranker),
		retrievaluc.Config{
			TopK:            cfg.Retrieval.TopK,
			OverFetchFactor: cfg.Retrieval.OverFetchFactor,
			VectorWeight:    cfg.Retrieval.VectorWeight,
			LexicalWeight:   cfg.Retrieval.LexicalWeight,
			Timeout:         time.Duration(cfg.Retrieval.TimeoutSec) * time.Second,
		},
		logger,
	)
	routerSvc := routinguc.New(routinguc.Config{
		ScoreFloor:        cfg.Routing.ScoreFloor,
		EscalateBelow:     cfg.Routing.EscalateBelow,
		InsufficientBelow: cfg.Routing.InsufficientBelow,
	}, logger)
	analysisSvc := analysisuc.New(
		dealRepo,
		snapRepo,
		retrievalSvc,
		routerSvc,
		tiers,
		lineageRepo,
		analysisuc.Config{
			InferenceTimeout: time.Duration(cfg.Inference.TimeoutSec) * time.Second,
			MaxInFlight:      int64(cfg.Inference.MaxInFlight),
		},
		logger,
	)

	// Health service
	healthSvc := healthuc.New(pool, store, baseEmbedder)

	// Create chi server
	server := chiTransport.NewServer(analysisSvc, snapSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

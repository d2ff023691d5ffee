package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/iris-gateway/internal/cache"
	"github.com/af-corp/iris-gateway/internal/config"
	"github.com/af-corp/iris-gateway/internal/gateway"
	"github.com/af-corp/iris-gateway/internal/pipeline"
	"github.com/af-corp/iris-gateway/internal/provider"
	"github.com/af-corp/iris-gateway/internal/ratelimit"
	"github.com/af-corp/iris-gateway/internal/telemetry"
	"github.com/af-corp/iris-gateway/internal/upstream"
	"github.com/af-corp/iris-gateway/internal/vision"
)

var version = "dev"

// core holds the rebuildable parts of the gateway. Config hot reload swaps
// the whole set; a pipeline's config is immutable for its lifetime.
type core struct {
	mu   sync.RWMutex
	pipe *pipeline.Pipeline
	up   *upstream.Client
}

func (c *core) Pipeline() *pipeline.Pipeline {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pipe
}

func (c *core) Upstream() *upstream.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.up
}

func buildCore(loader *config.Loader, rdb *redis.Client, metrics *telemetry.Metrics, logger *slog.Logger) (*pipeline.Pipeline, *upstream.Client) {
	cfg := loader.Config()
	prov := loader.Providers()

	up := upstream.NewClient(prov.Upstream)
	limiter := ratelimit.NewLimiter(rdb)
	vc := vision.NewClient(up, limiter, metrics, cfg.Enhance, logger)
	resolver := provider.NewResolver(prov)

	var emitter pipeline.StatusEmitter = pipeline.NopEmitter{}
	if cfg.Enhance.StatusUpdates {
		emitter = pipeline.LogEmitter{Logger: logger}
	}

	pipe := pipeline.New(cfg.Enhance, cache.New(cfg.Enhance.MaxCacheSize), vc, resolver, emitter, metrics, logger)
	return pipe, up
}

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfg := loader.Config()
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg),
	}))
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	// Redis backs the vision-call rate limiter; without it the limiter
	// fails open.
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (vision rate limiting disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics()

	c := &core{}
	c.pipe, c.up = buildCore(loader, rdb, metrics, logger)
	loader.OnReload(func() {
		pipe, up := buildCore(loader, rdb, metrics, logger)
		c.mu.Lock()
		c.pipe = pipe
		c.up = up
		c.mu.Unlock()
		logger.Info("pipeline rebuilt from reloaded config")
	})

	handler := gateway.NewHandler(c.Pipeline, c.Upstream, loader.Config)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/iris/v1/health", healthHandler)
	r.Post("/v1/chat/completions", handler.ChatCompletions)
	r.Get("/v1/models", handler.ListModels)

	if port := cfg.Telemetry.MetricsPort; port > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", port)
			logger.Info("metrics server starting", "addr", addr)
			if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.Enhance.DebugMode {
		return slog.LevelDebug
	}
	switch cfg.Telemetry.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

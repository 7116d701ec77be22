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
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/solara-labs/prism-gateway/internal/config"
	"github.com/solara-labs/prism-gateway/internal/gateway"
	"github.com/solara-labs/prism-gateway/internal/keypool"
	"github.com/solara-labs/prism-gateway/internal/middleware"
	"github.com/solara-labs/prism-gateway/internal/protocol"
	"github.com/solara-labs/prism-gateway/internal/ratelimit"
	"github.com/solara-labs/prism-gateway/internal/storage"
	"github.com/solara-labs/prism-gateway/internal/telemetry"
	"github.com/solara-labs/prism-gateway/internal/upstream"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configPath, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}
	cfg := loader.Config()

	if lvl := parseLogLevel(cfg.Telemetry.LogLevel); lvl != slog.LevelInfo {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
		slog.SetDefault(logger)
	}

	// PostgreSQL is optional; without it historical metrics are dropped.
	var store *storage.Store
	if cfg.Database.Enabled {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
		if err != nil {
			logger.Error("invalid database configuration", "error", err)
			os.Exit(1)
		}
		if cfg.Database.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
		}
		poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		dbPool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
		if err != nil {
			logger.Error("failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()
		if err := dbPool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable (request history disabled)", "error", err)
		} else {
			logger.Info("database connected")
			store = storage.New(dbPool, logger)
		}
	}

	// Redis is optional; without it rate limiting fails open.
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (rate limiting disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.New(prometheus.DefaultRegisterer)

	pool := keypool.New(keypool.Config{
		MaxConsecutiveErrors: cfg.Balancer.MaxConsecutiveErrors,
		MinSampleSize:        cfg.Balancer.MinSampleSize,
		UnhealthyThreshold:   cfg.Balancer.UnhealthyThreshold,
		SuccessRateWeight:    cfg.Balancer.SuccessRateWeight,
		ResponseTimeWeight:   cfg.Balancer.ResponseTimeWeight,
		LatencyFloorMs:       cfg.Balancer.LatencyFloorMs,
		LatencyCeilingMs:     cfg.Balancer.LatencyCeilingMs,
		EMAAlpha:             cfg.Balancer.EMAAlpha,
		PerformanceWindow:    cfg.Balancer.PerformanceWindow,
	})
	stopJanitor := pool.Janitor(cfg.Balancer.PruneInterval)
	defer stopJanitor()

	up := upstream.New(upstream.Options{
		BaseURL:       cfg.Upstream.BaseURL,
		HeaderTimeout: cfg.Upstream.HeaderTimeout,
		MaxIdleConns:  cfg.Upstream.MaxIdleConns,
	})

	handler := gateway.NewHandler(pool, up, store, metrics, loader.Config)
	limiter := ratelimit.NewLimiter(rdb)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", healthHandler)
	r.Get("/admin/keys", handler.KeyPoolSnapshot)

	rpm := 0
	if cfg.RateLimit.Enabled {
		rpm = cfg.RateLimit.RPM
	}

	// Each inbound surface gets its own credential extraction; the rate
	// limiter buckets by the first submitted key.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Extract(protocol.ProtocolOpenAI))
		r.Use(ratelimit.Middleware(limiter, rpm, metrics))
		r.Post("/v1/chat/completions", handler.ChatCompletions)
		r.Get("/v1/models", handler.ListModels)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.Extract(protocol.ProtocolClaude))
		r.Use(ratelimit.Middleware(limiter, rpm, metrics))
		r.Post("/v1/messages", handler.ClaudeMessages)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.Extract(protocol.ProtocolGemini))
		r.Use(ratelimit.Middleware(limiter, rpm, metrics))
		r.Post("/v1beta/models/{modelAction}", handler.GeminiGenerate)
	})

	// Metrics on a dedicated listener.
	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics listener starting", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics listener failed", "error", err)
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

func parseLogLevel(s string) slog.Level {
	switch s {
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

// Package main is the entry point for the API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/briefcast/briefcast/internal/api"
	"github.com/briefcast/briefcast/internal/article"
	"github.com/briefcast/briefcast/internal/batch"
	"github.com/briefcast/briefcast/internal/config"
	"github.com/briefcast/briefcast/internal/health"
	"github.com/briefcast/briefcast/internal/middleware"
	"github.com/briefcast/briefcast/internal/oracle"
	"github.com/briefcast/briefcast/internal/scoring"
	"github.com/briefcast/briefcast/internal/tracing"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	if *help {
		fmt.Println("Briefcast API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	// Tracing
	tracingProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "briefcast-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Backing stores
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}
	scoringMetrics := scoring.NewMetrics()
	if err := scoringMetrics.Register(registry); err != nil {
		logger.Error("failed to register scoring metrics", "error", err)
		os.Exit(1)
	}
	batchMetrics := batch.NewMetrics()
	if err := batchMetrics.Register(registry); err != nil {
		logger.Error("failed to register batch metrics", "error", err)
		os.Exit(1)
	}

	// Scoring engine, optionally backed by the OpenAI relevance oracle
	var relevanceOracle scoring.Oracle
	if cfg.OracleEnabled {
		openAIOracle, err := oracle.NewOpenAIOracle(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			logger.Error("failed to initialize relevance oracle", "error", err)
			os.Exit(1)
		}
		relevanceOracle = openAIOracle
		logger.Info("relevance oracle enabled", "model", cfg.OpenAIModel)
	} else {
		logger.Info("relevance oracle disabled, using heuristic fallback")
	}

	engine := scoring.NewEngine(scoring.EngineConfig{
		Oracle:            relevanceOracle,
		OracleConcurrency: cfg.OracleConcurrency,
		Logger:            logger,
		Metrics:           scoringMetrics,
	})

	catalog := article.NewPostgresCatalog(db, logger)

	orchestrator := batch.NewOrchestrator(batch.OrchestratorConfig{
		ChunkSize: cfg.ChunkSize,
		JobTTL:    cfg.JobTTL(),
		ResultTTL: cfg.ResultTTL(),
		Logger:    logger,
		Metrics:   batchMetrics,
	}, engine, catalog, batch.NewRedisProgressStore(redisClient), batch.NewRedisQueue(redisClient, 0))

	// Handlers
	scoringHandlers := api.NewScoringHandlers(engine, catalog, orchestrator)
	articleHandlers := api.NewArticleHandlers(catalog, engine)
	var oracleChecker api.HealthChecker
	if cfg.OracleEnabled {
		oracleChecker = health.NewOracleChecker(cfg.OracleHealthURL)
	}
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:     health.NewDBChecker(db),
		RedisChecker:  health.NewRedisChecker(redisClient),
		OracleChecker: oracleChecker,
	})

	mux := http.NewServeMux()

	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/api/articles", requireMethod(http.MethodGet, articleHandlers.ListArticles))
	mux.HandleFunc("/api/articles/ranked", requireMethod(http.MethodGet, articleHandlers.RankedArticles))
	mux.HandleFunc("/api/articles/score", requireMethod(http.MethodPost, scoringHandlers.ScoreArticles))
	mux.HandleFunc("/api/articles/score/batch", requireMethod(http.MethodPost, scoringHandlers.SubmitBatch))
	mux.HandleFunc("/api/articles/score/batch/", requireMethod(http.MethodGet, scoringHandlers.BatchStatus))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"briefcast-api","version":"0.0.1"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Rate limit the scoring endpoints harder than the rest of the API:
	// they fan out to the relevance oracle.
	rateLimitStore := middleware.NewRedisRateLimitStore(redisClient).WithMetrics(httpMetrics)
	scoringLimiter := middleware.RateLimiter(rateLimitStore, middleware.DefaultScoringLimit(), middleware.IPKeyFunc())
	globalLimiter := middleware.RateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc())

	limited := http.NewServeMux()
	limited.Handle("/api/articles/score", scoringLimiter(mux))
	limited.Handle("/api/articles/score/", scoringLimiter(mux))
	limited.Handle("/", globalLimiter(mux))

	// Middleware chain: RequestID -> Tracing -> Logging -> HTTPMetrics -> rate limits
	var handler http.Handler = limited
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing("briefcast-api")(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := tracingProvider.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down tracer provider", "error", err)
	}

	logger.Info("server stopped")
}

// requireMethod rejects requests with the wrong HTTP method before
// they reach the handler.
func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeBadRequest)
			api.WriteError(w, ctx, http.StatusMethodNotAllowed, api.ErrCodeBadRequest, "Method not allowed")
			return
		}
		next(w, r)
	}
}

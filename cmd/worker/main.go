// Package main is the entry point for the batch scoring worker.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/briefcast/briefcast/internal/article"
	"github.com/briefcast/briefcast/internal/batch"
	"github.com/briefcast/briefcast/internal/config"
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
		fmt.Println("Briefcast Scoring Worker")
		fmt.Println()
		fmt.Println("Usage: worker [options]")
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

	tracingProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "briefcast-worker",
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
	})

	catalog := article.NewPostgresCatalog(db, logger)
	queue := batch.NewRedisQueue(redisClient, 0)

	orchestrator := batch.NewOrchestrator(batch.OrchestratorConfig{
		ChunkSize: cfg.ChunkSize,
		JobTTL:    cfg.JobTTL(),
		ResultTTL: cfg.ResultTTL(),
		Logger:    logger,
	}, engine, catalog, batch.NewRedisProgressStore(redisClient), queue)

	worker := batch.NewWorker(batch.WorkerConfig{Logger: logger}, queue, orchestrator)
	if err := worker.Start(context.Background()); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	worker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tracingProvider.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down tracer provider", "error", err)
	}

	logger.Info("worker stopped")
}

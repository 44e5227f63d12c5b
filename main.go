package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/thothlabs/coursegen/internal/activities"
	"github.com/thothlabs/coursegen/internal/config"
	"github.com/thothlabs/coursegen/internal/llm"
	_ "github.com/thothlabs/coursegen/internal/metrics" // register collectors
	"github.com/thothlabs/coursegen/internal/profile"
	"github.com/thothlabs/coursegen/internal/search"
	"github.com/thothlabs/coursegen/internal/server"
	temporallog "github.com/thothlabs/coursegen/internal/temporal"
	"github.com/thothlabs/coursegen/internal/tracing"
	"github.com/thothlabs/coursegen/internal/workflows"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("coursegen: %v", err)
	}
}

func run() error {
	bootLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	cfgMgr, err := config.NewManager(config.DefaultPath(), bootLogger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer cfgMgr.Stop()
	cfg := cfgMgr.Current()

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	shutdownTracing, err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	cache := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	defer cache.Close()
	if err := cache.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable at startup, profile cache degraded", zap.Error(err))
	}

	completion := llm.NewHTTPClient(llm.Options{
		BaseURL:       cfg.Backends.CompletionURL,
		Timeout:       cfg.Backends.CompletionTimeout,
		RatePerSecond: cfg.Backends.RatePerSecond,
		Burst:         cfg.Backends.RateBurst,
	}, logger)
	searcher := search.NewHTTPClient(cfg.Backends.SearchURL, cfg.Backends.SearchTimeout, logger)
	profiles := profile.NewProvider(db, cache, logger)
	store := activities.NewSQLCourseStore(db, logger)
	acts := activities.NewActivities(completion, searcher, profiles, cfgMgr, store, logger)

	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("dial temporal %s: %w", cfg.Temporal.HostPort, err)
	}
	defer tc.Close()

	w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: 20,
	})
	registerWorker(w, acts)
	go func() {
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Error("Temporal worker exited", zap.Error(err))
		}
	}()
	logger.Info("Temporal worker started",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("host", cfg.Temporal.HostPort),
	)

	mux := http.NewServeMux()
	server.New(tc, cfg.Temporal.TaskQueue, logger).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // synchronous generation runs are slow
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.Int("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	w.Stop()
	return nil
}

// registerWorker binds workflows and activities under their stable
// names; the workflow schedules activities by these strings.
func registerWorker(w worker.Worker, acts *activities.Activities) {
	w.RegisterWorkflowWithOptions(workflows.CourseGenerationWorkflow,
		workflow.RegisterOptions{Name: workflows.CourseGenerationWorkflowName})
	w.RegisterWorkflowWithOptions(workflows.CourseRefinementWorkflow,
		workflow.RegisterOptions{Name: workflows.CourseRefinementWorkflowName})

	register := func(fn any, name string) {
		w.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
	}
	register(acts.GetPipelineConfig, activities.GetPipelineConfigActivity)
	register(acts.PerformResearch, activities.PerformResearchActivity)
	register(acts.GenerateStructure, activities.GenerateStructureActivity)
	register(acts.GenerateUnitContent, activities.GenerateUnitContentActivity)
	register(acts.ScoreUnit, activities.ScoreUnitActivity)
	register(acts.AssessCourse, activities.AssessCourseActivity)
	register(acts.RefineUnit, activities.RefineUnitActivity)
	register(acts.PersistCourse, activities.PersistCourseActivity)
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

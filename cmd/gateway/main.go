// The gateway binary serves the query API: it wires the classifier, agents,
// orchestrator and monitor together and exposes them over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bankerai/orchestrator/cmd/gateway/internal/handlers"
	"github.com/bankerai/orchestrator/cmd/gateway/internal/middleware"
	"github.com/bankerai/orchestrator/internal/aggregation"
	"github.com/bankerai/orchestrator/internal/agents"
	"github.com/bankerai/orchestrator/internal/classification"
	"github.com/bankerai/orchestrator/internal/config"
	"github.com/bankerai/orchestrator/internal/embeddings"
	"github.com/bankerai/orchestrator/internal/health"
	"github.com/bankerai/orchestrator/internal/llm"
	"github.com/bankerai/orchestrator/internal/monitor"
	"github.com/bankerai/orchestrator/internal/orchestrator"
	"github.com/bankerai/orchestrator/internal/ratecontrol"
	"github.com/bankerai/orchestrator/internal/streaming"
	"github.com/bankerai/orchestrator/internal/vectordb"
)

const defaultConfigPath = "config/bankerai.yaml"

func main() {
	cfgPath := os.Getenv("BANKERAI_CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, cfgPath, logger); err != nil {
		logger.Fatal("Gateway exited", zap.Error(err))
	}
}

func run(cfg *config.Config, cfgPath string, logger *zap.Logger) error {
	// Embedding service with optional Redis cache backend.
	var cache embeddings.Cache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		rc, err := embeddings.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			logger.Warn("Redis cache unavailable, continuing with local cache only",
				zap.Error(err))
		} else {
			cache = rc
			redisClient = redis.NewClient(&redis.Options{
				Addr: cfg.Redis.Addr, Password: cfg.Redis.Password,
			})
		}
	}
	embedder := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Timeout: cfg.Embeddings.Timeout,
	}, cache)

	index := vectordb.NewClient(vectordb.Config{
		Enabled:    cfg.VectorDB.Enabled,
		Host:       cfg.VectorDB.Host,
		Port:       cfg.VectorDB.Port,
		Collection: cfg.VectorDB.Collection,
		TopK:       cfg.VectorDB.TopK,
		Threshold:  cfg.VectorDB.Threshold,
		Timeout:    cfg.VectorDB.Timeout,
	}, logger)

	llmClient := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	}, ratecontrol.LimiterFor("llm"))

	classifier := classification.NewClassifier(classification.Config{
		SimilarityThreshold: cfg.Classifier.SimilarityThreshold,
		Model:               cfg.Classifier.Model,
	}, embedder, index, logger)

	registry := agents.NewRegistry(logger)
	mustRegister(registry, agents.NewFinanceAgent(embedder, index, llmClient, logger), logger)
	mustRegister(registry, agents.NewYahooAgent(agents.YahooConfig{
		BaseURL: cfg.Yahoo.BaseURL,
		Timeout: cfg.Yahoo.Timeout,
	}, ratecontrol.LimiterFor("yahoo"), llmClient, logger), logger)
	mustRegister(registry, agents.NewSECAgent(agents.SECConfig{
		BaseURL:   cfg.SEC.BaseURL,
		Simulated: cfg.SEC.Simulated,
		Timeout:   cfg.SEC.Timeout,
	}, ratecontrol.LimiterFor("sec"), logger), logger)
	mustRegister(registry, agents.NewRedditAgent(agents.RedditConfig{
		BaseURL:   cfg.Reddit.BaseURL,
		Simulated: cfg.Reddit.Simulated,
		Timeout:   cfg.Reddit.Timeout,
	}, ratecontrol.LimiterFor("reddit"), logger), logger)
	mustRegister(registry, agents.NewGeneralAgent(llmClient, logger), logger)

	var recorder monitor.Recorder = monitor.NopRecorder{}
	var pgRecorder *monitor.PostgresRecorder
	if cfg.Postgres.Enabled {
		pg, err := monitor.NewPostgresRecorder(monitor.PostgresConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		}, logger)
		if err != nil {
			return fmt.Errorf("monitor sink: %w", err)
		}
		recorder = pg
		pgRecorder = pg
		defer pg.Close()
	}

	hub := streaming.NewHub()
	aggregator := aggregation.New(llmClient, cfg.Orchestrator.ImproveEnabled, logger)
	orch := orchestrator.New(orchestrator.Config{
		GlobalTimeout: cfg.Orchestrator.GlobalTimeout,
		AgentTimeout:  cfg.Orchestrator.AgentTimeout,
		MaxRetries:    cfg.Orchestrator.MaxRetries,
		RetryBackoff:  cfg.Orchestrator.RetryBackoff,
		Version:       cfg.Version,
	}, classifier, registry, aggregator, recorder, hub, logger)

	healthMgr := health.NewManager(cfg.Version, logger)
	if cfg.Embeddings.BaseURL != "" {
		healthMgr.Register(health.NewHTTPChecker("embeddings", cfg.Embeddings.BaseURL+"/health", false))
	}
	if cfg.LLM.BaseURL != "" {
		healthMgr.Register(health.NewHTTPChecker("llm", cfg.LLM.BaseURL+"/health", true))
	}
	if redisClient != nil {
		healthMgr.Register(health.NewRedisChecker(redisClient))
	}
	if pgRecorder != nil {
		healthMgr.Register(health.NewPingChecker("postgres", false, pgRecorder.Ping))
	}

	// Rate limits reload when the config file changes.
	watcher, err := config.NewWatcher(cfgPath, logger)
	if err == nil {
		watcher.OnReload(func(*config.Config) error {
			ratecontrol.Reload()
			return nil
		})
		defer watcher.Close()
	}

	authMW := middleware.NewAuthMiddleware(cfg.Server.JWTSecret, cfg.Server.AuthEnabled, logger)
	validationMW := middleware.NewValidationMiddleware(cfg.Server.MaxQueryBytes, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/query", handlers.NewQueryHandler(orch, logger))
	mux.Handle("/api/v1/agents", handlers.NewAgentsHandler(registry, cfg.Version))
	mux.Handle("/api/v1/stream", handlers.NewStreamHandler(orch, hub, logger))
	mux.HandleFunc("/health", healthMgr.LivenessHandler())
	mux.HandleFunc("/readiness", healthMgr.ReadinessHandler())

	handler := authMW.Middleware(validationMW.Middleware(mux))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Orchestrator.GlobalTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("Gateway listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("Metrics listening", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Warn("Metrics shutdown incomplete", zap.Error(err))
	}
	return nil
}

func mustRegister(r *agents.Registry, a agents.Agent, logger *zap.Logger) {
	if err := r.Register(a); err != nil {
		logger.Fatal("Agent registration failed",
			zap.String("agent_id", a.ID().String()), zap.Error(err))
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

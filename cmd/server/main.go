package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"agentdash.server/internal/adapters/events/redis"
	"agentdash.server/internal/adapters/framework"
	http_handler "agentdash.server/internal/adapters/handler/http"
	"agentdash.server/internal/adapters/handler/mqtt"
	"agentdash.server/internal/adapters/llm"
	"agentdash.server/internal/adapters/repository/pg"
	"agentdash.server/internal/config"
	"agentdash.server/internal/core/logger"
	"agentdash.server/internal/core/pool"
	"agentdash.server/internal/core/ports"
	"agentdash.server/internal/core/services"
	"agentdash.server/internal/core/tracing"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize structured logger
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting agentdash server", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize tracing
	shutdownTracing, err := tracing.Init(tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		Enabled:        cfg.EnableTracing,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("failed to shutdown tracing", "error", err)
			}
		}()
	}

	// Initialize adapters
	repo, err := pg.NewRepository(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to init postgres", "error", err)
		log.Fatalf("failed to init postgres: %v", err)
	}

	eventBus, redisClient, err := redis.NewEventBus(cfg.RedisURL)
	if err != nil {
		logger.Error("failed to init redis", "error", err)
		log.Fatalf("failed to init redis: %v", err)
	}
	orphans := redis.NewOrphanTracker(redisClient)

	// Register LLM providers
	llmManager := llm.NewManager()
	llmManager.Register(llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL))
	llmManager.Register(llm.NewOllamaProvider(cfg.OllamaBaseURL))

	// One lifecycle manager per framework, each with its own worker pool.
	lifecycleCfg := services.LifecycleConfig{
		QueryTimeout: cfg.QueryTimeout,
		MaxRetries:   cfg.QueryMaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}
	adapters := []ports.FrameworkAdapter{
		framework.NewCrewAIAdapter(repo),
		framework.NewLangChainAdapter(repo),
		framework.NewAgnoAdapter(repo),
		framework.NewLangGraphAdapter(repo),
		framework.NewAutoGenAdapter(repo),
	}

	registry := services.NewRegistry(cfg.DefaultFramework)
	for _, adapter := range adapters {
		manager := services.NewLifecycleManager(
			adapter, repo, llmManager,
			pool.New(cfg.WorkerPoolSize),
			eventBus, orphans, lifecycleCfg,
		)
		if err := manager.Reload(ctx); err != nil {
			logger.Error("failed to load agents", "framework", adapter.Name(), "error", err)
		}
		registry.Register(manager)
	}

	versionService := services.NewVersionService(repo, registry, eventBus)
	healthService := services.NewHealthService(repo.DB(), redisClient, registry, version)

	// Periodic cache reconciliation
	reconciler := services.NewReconciler(registry, 0)
	go reconciler.Start(ctx)

	// WebSocket fan-out
	hub := http_handler.NewHub(eventBus)
	go hub.Run()
	go hub.EventConsumer(ctx)

	// MQTT bridge
	if cfg.EnableMQTT {
		mqttPublisher, err := mqtt.NewPublisher(eventBus, cfg.MQTTBroker)
		if err != nil {
			logger.Error("failed to init mqtt publisher", "error", err)
		} else {
			mqttPublisher.Start(ctx)
			defer mqttPublisher.Close()
			logger.Info("mqtt publisher started")
		}
	}

	httpServer := http_handler.NewServer(registry, versionService, llmManager, orphans, healthService, hub)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down gracefully")
		cancel()
		if shutdownTracing != nil {
			shutdownTracing(context.Background())
		}
		os.Exit(0)
	}()

	logger.Info("http server starting", "port", cfg.HTTPPort)
	if err := httpServer.Run(":" + cfg.HTTPPort); err != nil {
		logger.Error("http server failed", "error", err)
		log.Fatalf("failed to serve http: %v", err)
	}
}

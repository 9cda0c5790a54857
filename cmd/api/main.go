package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	openai "github.com/sashabaranov/go-openai"

	"github.com/obsidianauto/tint-ai-platform/internal/agents"
	"github.com/obsidianauto/tint-ai-platform/internal/ai"
	"github.com/obsidianauto/tint-ai-platform/internal/api/router"
	"github.com/obsidianauto/tint-ai-platform/internal/assess"
	appconfig "github.com/obsidianauto/tint-ai-platform/internal/config"
	"github.com/obsidianauto/tint-ai-platform/internal/http/handlers"
	"github.com/obsidianauto/tint-ai-platform/internal/inbound"
	"github.com/obsidianauto/tint-ai-platform/internal/messaging"
	"github.com/obsidianauto/tint-ai-platform/internal/observability/metrics"
	"github.com/obsidianauto/tint-ai-platform/internal/respond"
	"github.com/obsidianauto/tint-ai-platform/internal/store"
	"github.com/obsidianauto/tint-ai-platform/internal/workflow"
	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting tint-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	db := store.New(pool)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	openaiCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		openaiCfg.BaseURL = cfg.OpenAIBaseURL
	}
	openaiClient := openai.NewClientWithConfig(openaiCfg)

	replyModel := ai.NewClient(openaiClient, cfg.OpenAIModel, logger)
	extractionModel := ai.NewClient(openaiClient, cfg.OpenAIExtractionModel, logger)

	sender := messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	notifier := messaging.NewOperatorNotifier(sender, cfg.OperatorPhone, cfg.OwnerPhone, logger)

	engine := workflow.NewEngine(db, extractionModel, notifier, cfg.BookingURL, logger)
	responder := respond.NewResponder(db, replyModel, sender, engine, pipelineMetrics, logger)
	scheduler := respond.NewScheduler(cfg.ReplyDebounce, func(job respond.Job) {
		responder.Run(context.WithoutCancel(ctx), job)
	}, logger)
	assessor := assess.New(db, extractionModel, logger)

	agentRegistry := agents.NewRegistry(pipelineMetrics, logger)
	agentRegistry.Register(agents.NewWorkflowManager(engine, logger))
	agentRegistry.Register(agents.NewLeadAssessor(assessor, logger))
	agentRegistry.Register(agents.NewAutoResponder(db, engine, scheduler, logger))

	inboundSvc := inbound.NewService(db, agentRegistry, sender, engine, inbound.CallPolicy{
		MinAnswerSeconds: cfg.CallMinAnswerSeconds,
		AnsweredReply:    cfg.CallAnsweredReply,
		MissedReply:      cfg.CallMissedReply,
	}, pipelineMetrics, logger)

	webhooks := handlers.NewTwilioWebhookHandler(
		inboundSvc,
		cfg.TwilioAuthToken,
		cfg.WebhookBaseURL+"/webhooks/twilio/sms",
		cfg.WebhookBaseURL+"/webhooks/twilio/voice",
		logger,
	)

	r := router.New(&router.Config{
		Logger:         logger,
		TwilioWebhooks: webhooks,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

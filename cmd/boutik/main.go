package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/config"
	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/handler"
	"github.com/boutikcards/chat-commerce-go/internal/infra/cache"
	"github.com/boutikcards/chat-commerce-go/internal/infra/completion"
	"github.com/boutikcards/chat-commerce-go/internal/infra/events"
	"github.com/boutikcards/chat-commerce-go/internal/infra/observability"
	"github.com/boutikcards/chat-commerce-go/internal/infra/payment"
	"github.com/boutikcards/chat-commerce-go/internal/infra/realtime"
	"github.com/boutikcards/chat-commerce-go/internal/infra/resilience"
	"github.com/boutikcards/chat-commerce-go/internal/infra/supabase"
	"github.com/boutikcards/chat-commerce-go/internal/intent"
	"github.com/boutikcards/chat-commerce-go/internal/notify"
	"github.com/boutikcards/chat-commerce-go/internal/port"
	"github.com/boutikcards/chat-commerce-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.Duration("zone_cache_ttl", cfg.ZoneCacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.String("currency", cfg.Currency),
		zap.Bool("kafka_enabled", cfg.KafkaBroker != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "boutik-chat-commerce")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Taxonomy ---
	taxonomy, err := config.LoadTaxonomy(cfg.TaxonomyFile)
	if err != nil {
		logger.Fatal("failed to load taxonomy", zap.Error(err))
	}
	taxonomy.Intent.ReadyThreshold = cfg.ExpressCheckoutThreshold

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	storeBreaker := resilience.NewCircuitBreaker("supabase")
	paymentBreaker := resilience.NewCircuitBreaker("payment-providers")
	completionBreaker := resilience.NewCircuitBreaker("completion-api")
	notifyBreaker := resilience.NewCircuitBreaker("notify-api")

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	if cfg.SupabaseURL == "" {
		logger.Fatal("SUPABASE_URL is required")
	}
	store := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		storeBreaker,
		resilienceCfg,
		logger,
	)

	completer := completion.NewClient(httpClient, cfg.CompletionAPIURL, completionBreaker, resilienceCfg)
	notifier := notify.NewClient(httpClient, cfg.NotifyAPIURL, notifyBreaker, resilienceCfg)

	// --- Payment adapters ---
	adapters := []port.PaymentAdapter{
		payment.NewStripeAdapter(httpClient, payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    cfg.CheckoutSuccessURL,
			CancelURL:     cfg.CheckoutCancelURL,
			EURRate:       cfg.StripeEURRate,
			MinAmountEUR:  cfg.StripeMinAmount,
		}, paymentBreaker, resilienceCfg),
		payment.NewBictorysAdapter(httpClient, payment.BictorysConfig{
			BaseURL:    cfg.BictorysAPIURL,
			APIKey:     cfg.BictorysAPIKey,
			WebhookKey: cfg.BictorysWebhookKey,
			SuccessURL: cfg.CheckoutSuccessURL,
		}, domain.ProviderWave, paymentBreaker, resilienceCfg),
		payment.NewBictorysAdapter(httpClient, payment.BictorysConfig{
			BaseURL:    cfg.BictorysAPIURL,
			APIKey:     cfg.BictorysAPIKey,
			WebhookKey: cfg.BictorysWebhookKey,
			SuccessURL: cfg.CheckoutSuccessURL,
		}, domain.ProviderOrangeMoney, paymentBreaker, resilienceCfg),
		payment.NewCashAdapter(),
	}

	// --- Outbound events ---
	var publisher port.EventPublisher = events.NoopPublisher{}
	if cfg.KafkaBroker != "" {
		kafka, err := events.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		publisher = kafka
		logger.Info("kafka publisher enabled",
			zap.String("broker", cfg.KafkaBroker),
			zap.String("topic", cfg.KafkaTopic))
	}
	defer publisher.Close()

	// --- Realtime & notification queue ---
	hub := realtime.NewHub(logger)
	queue := notify.NewQueue(notifier, logger)
	defer queue.Close()

	// --- Services ---
	sessions := service.NewSessions(store, cfg.SessionTTL, logger)
	defer sessions.Close()

	zones := service.NewZones(store, cache.New[[]domain.DeliveryZone](cfg.ZoneCacheTTL), taxonomy, cfg.Currency, metrics, logger)
	payments := service.NewPayments(adapters, store, store, metrics, logger)
	conv := service.NewConversation(sessions, zones, intent.NewAnalyzer(taxonomy),
		payments, store, store, completer, metrics, logger, cfg.Currency)
	reconciler := service.NewReconciler(payments, store, store, sessions,
		hub, queue, publisher, metrics, logger)
	adminSvc := service.NewAdmin(store, store, sessions, cfg.JWTSecret, cfg.JWTAccessTTL, logger)

	// --- Router ---
	router := handler.NewRouter(conv, reconciler, payments, zones, adminSvc,
		sessions, hub, metrics, logger)

	// --- Server ---
	// No WriteTimeout: the SSE payment-status stream stays open until a
	// terminal event or client disconnect.
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

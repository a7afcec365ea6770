package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docutalk-backend/internal/api"
	"docutalk-backend/internal/auth"
	"docutalk-backend/internal/config"
	"docutalk-backend/internal/conversation"
	"docutalk-backend/internal/crypto"
	"docutalk-backend/internal/database"
	"docutalk-backend/internal/handlers"
	"docutalk-backend/internal/integrations"
	"docutalk-backend/internal/llm"
	"docutalk-backend/internal/mailing"
	"docutalk-backend/internal/metrics"
	"docutalk-backend/internal/models"
	"docutalk-backend/internal/notify"
	"docutalk-backend/internal/services"
	"docutalk-backend/internal/storage"
	"docutalk-backend/pkg/logger"
	"docutalk-backend/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	metrics.Init()
	logger.Info("Starting Docu Talk backend...", zap.String("db_driver", cfg.Database.Driver))

	ctx := context.Background()

	// 1. Database
	st, closeStore, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeStore()

	// 2. Object storage
	objects, err := storage.NewGCSStore(ctx, cfg.GCS.Bucket, cfg.GCS.CredentialsFile)
	if err != nil {
		logger.Fatal("Failed to create GCS store", zap.Error(err))
	}
	defer objects.Close()

	// 3. Redis backs conversations and the Gemini file cache when configured.
	var rdb redis.UniversalClient
	var conversations conversation.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("Unable to ping redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer client.Close()
		rdb = client
		conversations = conversation.NewRedisStore(client, cfg.Redis.ConversationTTL)
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		conversations = conversation.NewMemoryStore()
		logger.Warn("REDIS_ADDR not set, conversations are kept in process memory")
	}

	// 4. Gemini
	genaiClient, err := llm.NewGeminiClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		logger.Fatal("Failed to create Gemini client", zap.Error(err))
	}
	defer genaiClient.Close()
	fileCache := llm.NewFileCache(rdb, objects, llm.GenaiUploader{Client: genaiClient}, cfg.Redis.FileCacheTTL)
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Gemini.MaxRetries
	retryCfg.InitialDelay = cfg.Gemini.InitialBackoff
	retryCfg.Logger = logger.Named("retry")
	gen := llm.NewGemini(genaiClient, fileCache, retryCfg)

	// 5. Mailing, notifications, secrets
	mailer, closeMailer := newDispatcher(ctx, cfg)
	defer closeMailer()
	composer := mailing.Composer{From: cfg.SES.Sender, Bcc: cfg.SES.Bcc, LogoURL: cfg.SES.LogoURL}
	notifier := notify.NewSlackNotifier(cfg.Slack.BotToken, cfg.Slack.Channel)

	aead, err := crypto.NewAESGCM(cfg.Auth.EncryptionKey)
	if err != nil {
		logger.Fatal("Failed to create AES-GCM cipher", zap.Error(err))
	}

	registry := integrations.NewRegistry()
	registry.Register(string(models.ServiceTypeNotion), integrations.NewNotionIntegration(&http.Client{Timeout: 30 * time.Second}))

	providers := auth.NewOAuthProviders(cfg.OAuth)
	for name := range providers {
		logger.Info("OAuth provider enabled", zap.String("provider", name))
	}

	// 6. Services
	usageService := services.NewUsageService(st, cfg.Credits)
	estimator := services.NewEstimator(st)
	authService := services.NewAuthService(st, cfg, mailer, composer, providers)
	userService := services.NewUserService(st, usageService)
	chatbotService := services.NewChatbotService(st, objects, gen, usageService, estimator, notifier, cfg)
	credentialService := services.NewCredentialsService(st, aead, registry)
	documentService := services.NewDocumentService(st, objects, credentialService, registry, cfg)
	accessService := services.NewAccessService(st, mailer, composer)
	chatService := services.NewChatService(st, conversations, objects, gen, usageService, estimator, cfg)

	// 7. Handlers and router
	router := api.NewRouter(api.RouterDependencies{
		AuthHandler:        handlers.NewAuthHandler(authService, cfg),
		UserHandler:        handlers.NewUserHandler(userService, cfg.Auth.CookieName),
		ChatbotHandler:     handlers.NewChatbotHandlers(chatbotService, cfg.Server.MaxUploadMB, cfg.Limits.MaxIconFileSizeKB),
		DocumentHandler:    handlers.NewDocumentHandlers(documentService, cfg.Server.MaxUploadMB),
		AccessHandler:      handlers.NewAccessHandlers(accessService),
		ChatHandler:        handlers.NewChatHandlers(chatService),
		CredentialsHandler: handlers.NewCredentialsHandler(credentialService),
		Config:             cfg,
	})

	// 8. HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Could not listen", zap.String("addr", addr), zap.Error(err))
		}
	}()

	<-stopChan
	logger.Info("Shutdown signal received, draining connections...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		return
	}
	logger.Info("Server shutdown complete")
}

// newDispatcher prefers the RabbitMQ queue (drained by cmd/mailer), then
// direct SES delivery, then dropping mail.
func newDispatcher(ctx context.Context, cfg *config.Config) (mailing.Dispatcher, func()) {
	if cfg.RabbitMQ.URL != "" {
		q, err := mailing.NewQueueDispatcher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		logger.Info("Mail is queued", zap.String("queue", cfg.RabbitMQ.Queue))
		return q, func() { _ = q.Close() }
	}
	if cfg.SES.Region != "" && cfg.SES.Sender != "" {
		client, err := mailing.NewSESClient(ctx, cfg.SES)
		if err != nil {
			logger.Fatal("Failed to create SES client", zap.Error(err))
		}
		logger.Info("Mail is sent directly through SES", zap.String("region", cfg.SES.Region))
		return mailing.NewDirectDispatcher(mailing.NewSESSender(client)), func() {}
	}
	logger.Warn("Neither RabbitMQ nor SES configured, emails will be dropped")
	return mailing.NopDispatcher{}, func() {}
}

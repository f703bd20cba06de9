// WorkTab API server: AI tab assistant, license validation and website.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/worktab/worktab-api/internal/api"
	"github.com/worktab/worktab-api/internal/assistant"
	"github.com/worktab/worktab-api/internal/config"
	"github.com/worktab/worktab-api/internal/license"
	"github.com/worktab/worktab-api/internal/llm"
	"github.com/worktab/worktab-api/internal/llm/anthropic"
	"github.com/worktab/worktab-api/internal/llm/gemini"
	"github.com/worktab/worktab-api/internal/middleware"
	"github.com/worktab/worktab-api/internal/ratelimit"
	"github.com/worktab/worktab-api/internal/store"
	"github.com/worktab/worktab-api/internal/webhook"
	"github.com/worktab/worktab-api/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "provider", cfg.LLM.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Model client. A missing key leaves the chat endpoint answering 500.
	client, err := newModelClient(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize model client", "error", err)
		os.Exit(1)
	}
	if client == nil {
		slog.Warn("AI service not configured, chat requests will fail", "provider", cfg.LLM.Provider)
	}

	// Usage store and limiter.
	usage, err := newUsageStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize usage store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := usage.Close(); closeErr != nil {
			slog.Error("Failed to close usage store", "error", closeErr)
		}
	}()
	if cleaner, ok := usage.(store.Cleaner); ok {
		store.StartJanitor(ctx, cleaner, cfg.RateLimit.CleanupInterval)
		slog.Info("Usage janitor started", "interval", cfg.RateLimit.CleanupInterval)
	}
	limiter := ratelimit.New(usage, ratelimit.DefaultPolicies(), cfg.RateLimit.Enabled)
	slog.Info("Rate limiting", "enabled", cfg.RateLimit.Enabled, "backend", cfg.RateLimit.Backend)

	conversationLogger, err := assistant.NewConversationLogger(assistant.ConversationLogConfig{
		Enabled:          cfg.ConversationLog.Enabled,
		Dir:              cfg.ConversationLog.Dir,
		GlobalEnabled:    cfg.ConversationLog.GlobalEnabled,
		GlobalPath:       cfg.ConversationLog.GlobalPath,
		QueueSize:        cfg.ConversationLog.QueueSize,
		GlobalMaxSizeMB:  cfg.ConversationLog.GlobalMaxSizeMB,
		GlobalMaxBackups: cfg.ConversationLog.GlobalMaxBackups,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	// Initialize services and handlers.
	chatService := assistant.NewService(client, cfg.LLM.MaxTokens, limiter, conversationLogger)
	defer func() {
		if closeErr := chatService.Close(); closeErr != nil {
			slog.Error("Failed to close chat service", "error", closeErr)
		}
	}()
	chatHandler := assistant.NewHandler(chatService, cfg.MaxRequestBodyBytes)

	validator := license.NewValidator(license.Config{
		APIKey:  cfg.License.APIKey,
		BaseURL: cfg.License.BaseURL,
	}, nil)
	licenseHandler := license.NewHandler(validator)
	webhookHandler := webhook.NewHandler(cfg.License.WebhookSecret)

	var pinger api.Pinger
	if cfg.RateLimit.Enabled {
		pinger = usage
	}
	healthHandler := api.NewHealthHandler(pinger, cfg.HealthCheckTimeout, map[string]bool{
		"model":   chatService.Configured(),
		"license": validator.Configured(),
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(chiMiddleware.Heartbeat("/health"))

	// Operational routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())

	// API routes.
	chatHandler.RegisterRoutes(r)
	licenseHandler.RegisterRoutes(r)
	webhookHandler.RegisterRoutes(r)

	// Serve embedded website (catch-all).
	r.Handle("/*", web.SiteHandler())

	// Model calls can take most of LLMConfig.Timeout; keep the write
	// deadline above it.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// newModelClient returns nil when the selected provider has no API key.
func newModelClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	if !cfg.ModelConfigured() {
		return nil, nil
	}

	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		sdk, err := gemini.NewRealGeminiClient(ctx, cfg.LLM.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return gemini.New(sdk, cfg.LLM.GeminiModel, cfg.LLM.MaxTokens), nil
	default:
		return anthropic.New(anthropic.Config{
			APIKey:     cfg.LLM.AnthropicAPIKey,
			BaseURL:    cfg.LLM.AnthropicBaseURL,
			Model:      cfg.LLM.AnthropicModel,
			Version:    cfg.LLM.AnthropicVersion,
			MaxTokens:  cfg.LLM.MaxTokens,
			MaxRetries: cfg.LLM.MaxRetries,
			Timeout:    cfg.LLM.Timeout,
		}, nil, logger), nil
	}
}

// newUsageStore picks the counter backend. Counting is skipped entirely
// while rate limiting is off.
func newUsageStore(ctx context.Context, cfg *config.Config) (store.UsageStore, error) {
	if !cfg.RateLimit.Enabled {
		return store.NoopStore{}, nil
	}

	switch cfg.RateLimit.Backend {
	case config.BackendSQLite:
		s, err := store.NewSQLite(cfg.RateLimit.DBPath)
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("usage database health check: %w", err)
		}
		slog.Info("Usage database connected", "path", cfg.RateLimit.DBPath)
		return s, nil
	case config.BackendRedis:
		return store.NewRedis(ctx, cfg.RateLimit.RedisURL)
	default:
		return store.NewMemory(), nil
	}
}

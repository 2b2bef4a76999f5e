// Cyberdesk - cybersecurity help-desk chatbot server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/cyberdesk/internal/api"
	"github.com/ashureev/cyberdesk/internal/classifier"
	"github.com/ashureev/cyberdesk/internal/config"
	"github.com/ashureev/cyberdesk/internal/dialogue"
	"github.com/ashureev/cyberdesk/internal/identity"
	"github.com/ashureev/cyberdesk/internal/knowledge"
	"github.com/ashureev/cyberdesk/internal/llm"
	"github.com/ashureev/cyberdesk/internal/lookup"
	"github.com/ashureev/cyberdesk/internal/middleware"
	"github.com/ashureev/cyberdesk/internal/observability"
	"github.com/ashureev/cyberdesk/internal/state"
	"github.com/ashureev/cyberdesk/internal/store"
	"github.com/ashureev/cyberdesk/internal/transcript"
	"github.com/ashureev/cyberdesk/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.Setup(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		slog.Info("No .env file found, using environment variables")
	}

	slog.Info("Starting server", "port", cfg.Port, "debug", cfg.Debug, "persistent", cfg.Persistent(), "llm", cfg.LLM.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := openRepository(cfg)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	conversations, err := state.NewConversationStore(ctx, repo)
	if err != nil {
		slog.Error("Failed to load conversations", "error", err)
		os.Exit(1)
	}
	followups, err := state.NewFollowUpQueue(ctx, repo)
	if err != nil {
		slog.Error("Failed to load follow-up queue", "error", err)
		os.Exit(1)
	}

	rules, err := classifier.LoadRules(cfg.RulesPath)
	if err != nil {
		slog.Error("Failed to load classifier rules", "error", err, "path", cfg.RulesPath)
		os.Exit(1)
	}
	classifierOpts := []classifier.Option{classifier.WithLogger(logger)}
	if cfg.DatasetPath != "" {
		retrainer := classifier.NewRetrainer(cfg.DatasetPath, cfg.RetrainInterval, classifier.DefaultTrainOptions)
		if err := retrainer.Start(ctx); err != nil {
			slog.Warn("Statistical classifier disabled", "error", err, "dataset", cfg.DatasetPath)
		} else {
			defer retrainer.Stop()
			classifierOpts = append(classifierOpts, classifier.WithStrategy(retrainer))
			slog.Info("Statistical classifier enabled", "dataset", cfg.DatasetPath, "retrain_interval", cfg.RetrainInterval)
		}
	}

	kb := knowledge.NewBase(cfg.KnowledgePath, knowledge.Options{Logger: logger})
	watcher, err := knowledge.NewWatcher(cfg.KnowledgePath, kb.Invalidate, logger)
	if err != nil {
		slog.Warn("Knowledge watcher disabled, relying on periodic reload", "error", err)
	} else if err := watcher.Start(ctx); err != nil {
		slog.Warn("Knowledge watcher failed to start", "error", err)
	} else {
		defer watcher.Stop()
	}

	completer, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		slog.Error("Failed to initialize language model", "error", err)
		os.Exit(1)
	}

	rapid := lookup.Config{APIKey: cfg.Lookups.RapidAPIKey, Timeout: cfg.Lookups.Timeout}
	dialogueCfg := dialogue.DefaultConfig()
	dialogueCfg.HistoryLimit = cfg.HistoryLimit
	bot, err := dialogue.New(dialogueCfg, dialogue.Deps{
		Classifier:    classifier.New(rules, classifierOpts...),
		Conversations: conversations,
		Contexts:      state.NewContextStore(state.DefaultRepeatClearAfter),
		FollowUps:     followups,
		LLM:           completer,
		Leaks:         lookup.NewLeakClient(rapid),
		Reputation:    lookup.NewReputationClient(rapid),
		Quality: lookup.NewQualityClient(lookup.QualityConfig{
			Config:     lookup.Config{APIKey: cfg.Lookups.IPQSKey, Timeout: cfg.Lookups.Timeout},
			Strictness: cfg.Lookups.IPQSStrictness,
		}),
		Resolver:  lookup.NewDNSResolver(net.DefaultResolver),
		Knowledge: kb,
		Documents: knowledge.NewDocuments(cfg.KnowledgePath),
		Logger:    logger,
	})
	if err != nil {
		slog.Error("Failed to initialize dialogue", "error", err)
		os.Exit(1)
	}

	limiter := middleware.NewRateLimiter(cfg.MaxRequests, cfg.RequestWindow)
	defer limiter.Stop()

	conversationLog, err := transcript.New(transcript.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize handlers.
	chatHandler := api.NewHandler(bot, kb, repo, cfg.Debug)
	chatHandler.SetTranscript(conversationLog)
	healthHandler := api.NewHealthHandler(repo, 5*time.Second)
	chatSocket := api.NewChatSocket(bot, func() bool { return limiter.Allow(middleware.GlobalKey) }, cfg.AllowedOrigins)
	chatSocket.SetTranscript(conversationLog)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware)

	// Public routes.
	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)

	// Chat turns share one process-wide budget.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, nil))
		chatHandler.RegisterChat(r)
	})

	// WebSocket endpoint. Frames are limited individually.
	r.Get("/ws/chat", chatSocket.ServeHTTP)

	// Serve the embedded chat page.
	r.Handle("/*", web.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket sessions outlive any fixed write deadline
		IdleTimeout:  120 * time.Second,
	}

	var grpcHealth *healthServer
	if cfg.GRPCHealthAddr != "" {
		grpcHealth, err = startHealthServer(ctx, cfg.GRPCHealthAddr, repo, 30*time.Second)
		if err != nil {
			slog.Error("Failed to start gRPC health server", "error", err)
			os.Exit(1)
		}
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

	if grpcHealth != nil {
		grpcHealth.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func openRepository(cfg *config.Config) (store.Repository, error) {
	if !cfg.Persistent() {
		slog.Warn("DB_PATH empty, conversations and follow-ups are kept in memory only")
		return store.NewMemory(), nil
	}
	return store.NewSQLite(cfg.DBPath)
}

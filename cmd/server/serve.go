package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/agent"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/api"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/chatws"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/config"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/conversation"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/convlog"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/diary"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/gate"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/moderation"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/store"
)

func newServeCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default).",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg, logger)
		},
	}
}

// openStore opens the SQLite database, creating its directory first.
func openStore(ctx context.Context, path string) (store.Repository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	repo, err := store.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}
	return repo, nil
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func runServe(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateAI(); err != nil {
		slog.Error("Invalid AI configuration", "error", err)
		return err
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "ai_provider", cfg.AI.Provider, "gate", cfg.Password != "")

	repo, err := openStore(parent, cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	slog.Info("Database connected", "path", cfg.DBPath)

	processor, err := agent.NewProcessor(cfg.Agent(), logger)
	if err != nil {
		slog.Error("Failed to initialize AI backend", "error", err)
		return err
	}
	defer processor.Close()

	convLogger, err := convlog.New(convlog.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		return err
	}
	defer func() {
		if closeErr := convLogger.Close(); closeErr != nil {
			slog.Warn("Failed to close conversation logger", "error", closeErr)
		}
	}()

	conv, err := conversation.NewService(parent, processor, repo, conversation.Config{
		TokenCeiling:   cfg.AI.TokenCeiling,
		ChatTimeout:    cfg.AI.ChatTimeout,
		SummaryTimeout: cfg.AI.SummaryTimeout,
		KeywordTimeout: cfg.AI.KeywordTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation service", "error", err)
		return err
	}

	clock := cfg.Clock()
	ctrl, err := diary.NewController(parent, diary.Deps{
		Store:        repo,
		Conversation: conv,
		Moderator:    moderation.NewGate(processor, cfg.AI.ModerationTimeout, logger),
		ConvLog:      convLogger,
		Now:          clock,
		Logger:       logger,
	})
	if err != nil {
		slog.Error("Failed to initialize diary", "error", err)
		return err
	}

	passwordGate := gate.New(cfg.Password, cfg.SessionTTL, cfg.IsDevelopment())
	defer passwordGate.Close()

	hub := chatws.NewHub()
	passwordGate.OnLogout(func() { hub.CloseAll("logged out") })
	var modelHealth api.Pinger
	if h, ok := processor.(interface{ Health(context.Context) error }); ok {
		modelHealth = api.PingFunc(h.Health)
	}

	router := api.NewRouter(api.RouterConfig{
		Handler:        api.NewHandler(ctrl, clock, logger),
		Health:         api.NewHealthHandler(repo, modelHealth, 5*time.Second),
		Gate:           passwordGate,
		ChatSocket:     chatws.NewHandler(ctrl, hub, cfg.FrontendURL, cfg.IsDevelopment(), logger),
		AllowedOrigins: cfg.AllowedOrigins(),
	})

	// No WriteTimeout: chat websockets are long-lived and a summary request
	// waits on two model calls.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			slog.Error("Server failed", "error", err)
			return err
		}
	}
	stop()

	slog.Info("Shutting down gracefully...", "chat_connections", hub.Count())
	hub.CloseAll("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server stopped successfully")
	return nil
}

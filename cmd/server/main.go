package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/vncsmyrnk/livepoll/internal/adapters/handler/http"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/livepoll/internal/adapters/statestore/bolt"
	"github.com/vncsmyrnk/livepoll/internal/core/engine"
	"github.com/vncsmyrnk/livepoll/internal/core/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found")
	}

	db, err := sql.Open("postgres", dbConnString())
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	statePath := envOr("STATE_DB_PATH", "data/counters.db")
	store, err := bolt.Open(statePath)
	if err != nil {
		slog.Error("failed to open state store", "path", statePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	flushDelay := 5 * time.Second
	if raw := os.Getenv("FLUSH_DELAY"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			slog.Error("invalid FLUSH_DELAY", "value", raw, "error", err)
			os.Exit(1)
		}
		flushDelay = d
	}

	pollRepo := postgres.NewPollRepository(db)
	voteRepo := postgres.NewVoteRepository(db)

	registry := engine.NewRegistry(store, postgres.NewCountWriter(db), voteRepo,
		engine.WithFlushDelay(flushDelay))

	pollService := services.NewPollService(pollRepo, registry)
	voteService := services.NewVoteService(pollRepo, voteRepo, registry)

	handler := http.NewHandler(
		http.NewPollHandler(pollService),
		http.NewVoteHandler(voteService),
		[]byte(os.Getenv("JWT_SECRET")),
	)

	addr := envOr("HTTP_ADDR", "0.0.0.0:8080")
	server := &stdhttp.Server{Addr: addr, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("gracefully shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}

	// Counters flush pending reconciliations before the process exits.
	if err := registry.Close(shutdownCtx); err != nil {
		slog.Error("failed to close vote engine", "error", err)
	}
}

func dbConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("POSTGRES_HOST"),
		os.Getenv("POSTGRES_PORT"),
		os.Getenv("POSTGRES_DB"),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

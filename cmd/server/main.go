package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ivankh/docsync/internal/server/feed"
	"github.com/ivankh/docsync/internal/server/handlers"
	"github.com/ivankh/docsync/internal/server/middleware"
	"github.com/ivankh/docsync/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const (
	defaultAddr            = ":8080"
	defaultDBPath          = "docsync.db"
	defaultCollections     = "notes,tasks,archive"
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	shutdownTimeout        = 10 * time.Second

	// Лимит для auth-эндпоинтов: bcrypt дорогой, brute force еще дороже
	authRateLimit  = 10
	authRateWindow = time.Minute
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	addr := flag.String("addr", envOr("DOCSYNC_ADDR", defaultAddr), "Listen address")
	dbPath := flag.String("db", envOr("DOCSYNC_DB", defaultDBPath), "Path to SQLite database")
	jwtSecret := flag.String("jwt-secret", os.Getenv("DOCSYNC_JWT_SECRET"), "JWT signing secret")
	collectionsFlag := flag.String("collections", envOr("DOCSYNC_COLLECTIONS", defaultCollections),
		"Comma-separated list of syncable collections")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := run(logger, *addr, *dbPath, *jwtSecret, parseCollections(*collectionsFlag)); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, addr, dbPath, jwtSecret string, collections []string) error {
	if jwtSecret == "" {
		return errors.New("JWT secret is required (set DOCSYNC_JWT_SECRET or --jwt-secret)")
	}
	if len(collections) == 0 {
		return errors.New("at least one collection is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	jwtConfig := handlers.JWTConfig{
		Secret:          []byte(jwtSecret),
		AccessTokenTTL:  defaultAccessTokenTTL,
		RefreshTokenTTL: defaultRefreshTokenTTL,
	}

	dispatcher := feed.NewDispatcher()

	authHandler := handlers.NewAuthHandler(logger, store, store, jwtConfig)
	syncHandler := handlers.NewSyncHandler(logger, store, dispatcher, collections)
	feedHandler := handlers.NewFeedHandler(logger, dispatcher)
	healthHandler := handlers.NewHealthHandler(logger, Version)

	requireAuth := middleware.AuthMiddleware(logger, jwtConfig)
	rateLimited := middleware.RateLimitMiddleware(authRateLimit, authRateWindow, logger)

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/auth/register", rateLimited(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/v1/auth/login", rateLimited(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/v1/auth/refresh", rateLimited(http.HandlerFunc(authHandler.Refresh)))
	mux.Handle("POST /api/v1/auth/logout", http.HandlerFunc(authHandler.Logout))

	mux.Handle("GET /api/v1/sync/pull", requireAuth(http.HandlerFunc(syncHandler.Pull)))
	mux.Handle("POST /api/v1/sync/push", requireAuth(http.HandlerFunc(syncHandler.Push)))
	mux.Handle("POST /api/v1/sync/delete", requireAuth(http.HandlerFunc(syncHandler.Delete)))
	mux.Handle("GET /api/v1/sync/feed", requireAuth(http.HandlerFunc(feedHandler.Feed)))

	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)

	// Health и feed не логируем: первый шумит при каждом probe,
	// второй живет часами и пишется в лог только при закрытии
	handler := middleware.RecoveryMiddleware(logger)(
		middleware.LoggingWithSkip(logger, []string{"/api/v1/health", "/api/v1/sync/feed"})(mux),
	)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout не ставим: SSE-соединения feed живут неограниченно долго
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", addr,
			"version", Version,
			"collections", collections,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func parseCollections(raw string) []string {
	var collections []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			collections = append(collections, name)
		}
	}
	return collections
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printVersion() {
	fmt.Printf("docsync server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

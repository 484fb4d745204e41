package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ivankh/docsync/internal/client/api"
	"github.com/ivankh/docsync/internal/client/auth"
	"github.com/ivankh/docsync/internal/client/cli"
	"github.com/ivankh/docsync/internal/client/iocli"
	"github.com/ivankh/docsync/internal/client/storage/boltdb"
	"github.com/ivankh/docsync/internal/client/sync"
	"github.com/ivankh/docsync/internal/clock"
	"github.com/ivankh/docsync/internal/conflict"
	"github.com/ivankh/docsync/internal/health"
	"github.com/ivankh/docsync/internal/models"
	"github.com/ivankh/docsync/internal/transform"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// defaultCollections описывает синхронизируемые коллекции клиента.
// archive доступен только на чтение: записи в него складывает сервер.
func defaultCollections() []models.CollectionSyncConfig {
	return []models.CollectionSyncConfig{
		{
			Name:      "notes",
			Enabled:   true,
			Direction: models.DirectionBidirectional,
			Priority:  models.PriorityHigh,
		},
		{
			Name:      "tasks",
			Enabled:   true,
			Direction: models.DirectionBidirectional,
			Priority:  models.PriorityMedium,
		},
		{
			Name:      "archive",
			Enabled:   true,
			Direction: models.DirectionPullOnly,
			Priority:  models.PriorityLow,
		},
	}
}

// fieldMappings переводит локальные имена полей в колонки сервера.
// Старые серверные строки notes не имеют колонки labels, поэтому
// локальное поле tags получает пустой default.
func fieldMappings() map[string]transform.Mapping {
	return map[string]transform.Mapping{
		"notes": {
			RemoteNames: map[string]string{
				"body": "content",
				"tags": "labels",
			},
			Defaults: map[string]any{
				"tags": []any{},
			},
		},
	}
}

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "docsync-client.db", "Path to local database")
	verbose := flag.Bool("v", false, "Verbose logging to stderr")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	stdio := iocli.NewStdio()

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage(stdio)
		os.Exit(1)
	}
	command := args[0]

	// CLI печатает результат сам, лог нужен только для отладки
	logOutput := io.Discard
	if *verbose {
		logOutput = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, stdio, *serverURL, *dbPath, command, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(
	ctx context.Context,
	logger *slog.Logger,
	stdio iocli.IO,
	serverURL, dbPath, command string,
	args []string,
) error {
	store, err := boltdb.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	apiClient := api.NewClient(serverURL)
	authService := auth.NewService(logger, apiClient, store)

	deviceID, err := store.GetDeviceID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device id: %w", err)
	}
	counter, err := store.GetClock(ctx)
	if err != nil {
		return fmt.Errorf("failed to load logical clock: %w", err)
	}
	lc := clock.New(deviceID, counter)

	collections := defaultCollections()

	engine, err := sync.NewEngine(sync.Config{
		Collections: collections,
		Credentials: authService.Credentials,
	}, sync.Deps{
		API:         apiClient,
		Records:     store,
		Queue:       store,
		Checkpoints: store,
		Device:      store,
		Clock:       lc,
		Strategies:  conflict.NewRegistry(conflict.NewLWW(lc, logger)),
		Transformer: transform.New(fieldMappings()),
		Health:      health.NewManager(health.DefaultBreakerConfig(), logger),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create sync engine: %w", err)
	}

	c := cli.New(stdio, authService, engine, store, store, collections)
	return c.Run(ctx, command, args)
}

func printVersion() {
	fmt.Printf("docsync client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

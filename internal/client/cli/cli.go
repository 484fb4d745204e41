// Package cli реализует команды терминального клиента docsync.
package cli

import (
	"fmt"

	"github.com/ivankh/docsync/internal/client/auth"
	"github.com/ivankh/docsync/internal/client/iocli"
	"github.com/ivankh/docsync/internal/client/storage"
	"github.com/ivankh/docsync/internal/client/sync"
	"github.com/ivankh/docsync/internal/models"
)

// Cli держит зависимости всех команд
type Cli struct {
	io          iocli.IO
	authService *auth.Service
	engine      *sync.Engine
	records     storage.RecordStorage
	queue       storage.QueueStorage
	collections []models.CollectionSyncConfig
}

// New создает CLI с готовыми сервисами
func New(
	io iocli.IO,
	authService *auth.Service,
	engine *sync.Engine,
	records storage.RecordStorage,
	queue storage.QueueStorage,
	collections []models.CollectionSyncConfig,
) *Cli {
	return &Cli{
		io:          io,
		authService: authService,
		engine:      engine,
		records:     records,
		queue:       queue,
		collections: collections,
	}
}

// collectionConfig возвращает конфигурацию коллекции по имени
func (c *Cli) collectionConfig(name string) (models.CollectionSyncConfig, error) {
	for _, cfg := range c.collections {
		if cfg.Name == name {
			return cfg, nil
		}
	}
	return models.CollectionSyncConfig{}, fmt.Errorf("unknown collection %q", name)
}

// PrintUsage выводит справку по командам
func PrintUsage(io iocli.IO) {
	io.Println("docsync client")
	io.Println()
	io.Println("Usage:")
	io.Println("  docsync [OPTIONS] COMMAND")
	io.Println()
	io.Println("Options:")
	io.Println("  --server URL   Server URL (default: http://localhost:8080)")
	io.Println("  --db PATH      Path to local database (default: docsync-client.db)")
	io.Println()
	io.Println("Commands:")
	io.Println("  register                      Register new user")
	io.Println("  login                         Login to server")
	io.Println("  logout                        Logout and delete local session")
	io.Println("  status                        Show session and sync health")
	io.Println("  add <collection>              Add a record (interactive field input)")
	io.Println("  list <collection>             List records of a collection")
	io.Println("  get <collection> <id>         Show full record details")
	io.Println("  delete <collection> <id>      Delete a record (soft delete)")
	io.Println("  sync                          Run one sync cycle now")
	io.Println("  watch                         Run background sync until interrupted")
	io.Println()
	io.Println("Examples:")
	io.Println("  docsync register")
	io.Println("  docsync login")
	io.Println("  docsync add notes")
	io.Println("  docsync list tasks")
	io.Println("  docsync get notes b692f5c0-2d88-4aa1-a9e1-13aa6e4976d5")
	io.Println("  docsync --server https://example.com sync")
}

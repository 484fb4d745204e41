package storage

import (
	"context"

	"github.com/ivankh/docsync/internal/models"
)

//go:generate moq -out records_mock.go . RecordStorage

// RecordStorage defines interface for the local document store.
// Это единственный источник правды "что видело это устройство":
// все conflict-проверки читают отсюда перед записью.
type RecordStorage interface {
	// SaveRecord stores or replaces a record in a collection
	SaveRecord(ctx context.Context, collection string, rec *models.Record) error

	// GetRecord retrieves a record by id
	// Returns ErrRecordNotFound if record doesn't exist
	GetRecord(ctx context.Context, collection, id string) (*models.Record, error)

	// PatchRecord применяет patch к записи атомарно (read-modify-write
	// в одной транзакции). Закрывает окно гонки между локальной записью
	// и конкурентным pull того же id.
	// Returns ErrRecordNotFound if record doesn't exist
	PatchRecord(ctx context.Context, collection, id string, patch func(*models.Record) error) error

	// ListRecords returns all records of a collection including tombstones
	ListRecords(ctx context.Context, collection string) ([]*models.Record, error)

	// ListActiveRecords returns non-deleted records of a collection
	ListActiveRecords(ctx context.Context, collection string) ([]*models.Record, error)
}

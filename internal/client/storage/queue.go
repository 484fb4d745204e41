package storage

import (
	"context"
	"time"

	"github.com/ivankh/docsync/internal/models"
)

//go:generate moq -out queue_mock.go . QueueStorage

// QueueStorage defines interface for the durable push queue.
// Очередь переживает рестарт процесса: неотправленные правки не теряются.
type QueueStorage interface {
	// Enqueue appends a pending operation. Повторный Enqueue той же записи
	// (collection, item id) в состоянии pending заменяет payload существующего
	// элемента вместо роста очереди — для push важно только финальное
	// состояние записи.
	Enqueue(ctx context.Context, op *models.PendingOperation) error

	// GetNextBatch returns pending operations of a collection eligible for
	// dispatch (не превысившие лимит попыток), ordered by enqueue time
	GetNextBatch(ctx context.Context, collection string, limit int) ([]*models.PendingOperation, error)

	// MarkInProgress transitions an operation to in_progress
	// Returns ErrOperationNotFound if operation doesn't exist
	MarkInProgress(ctx context.Context, opID string) error

	// MarkCompleted transitions an operation to completed
	MarkCompleted(ctx context.Context, opID string) error

	// MarkFailed transitions an operation back to pending (retryable) or to
	// failed once the retry limit is reached; запись остается видимой,
	// а не молча выбрасывается
	MarkFailed(ctx context.Context, opID string, syncErr *models.SyncError) error

	// QueueCount returns the total number of pending and in_progress
	// operations across all collections
	QueueCount(ctx context.Context) (int, error)
}

//go:generate moq -out checkpoints_mock.go . CheckpointStorage

// CheckpointStorage defines interface for the persisted pull cursor,
// one monotonic value per collection
type CheckpointStorage interface {
	// GetCheckpoint returns the checkpoint of a collection,
	// zero time if the collection was never pulled
	GetCheckpoint(ctx context.Context, collection string) (time.Time, error)

	// SetCheckpoint advances the checkpoint. Значение меньше сохраненного
	// игнорируется: чекпойнт никогда не откатывается.
	SetCheckpoint(ctx context.Context, collection string, at time.Time) error
}

// DeviceStorage defines interface for persistent device identity and
// the logical clock counter
type DeviceStorage interface {
	// GetDeviceID returns the stable device id, generating and persisting
	// one on first call
	GetDeviceID(ctx context.Context) (string, error)

	// GetClock returns the persisted logical clock counter (0 if unset)
	GetClock(ctx context.Context) (int64, error)

	// SaveClock persists the logical clock counter
	SaveClock(ctx context.Context, counter int64) error
}

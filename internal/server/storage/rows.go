package storage

import (
	"context"
	"time"

	"github.com/ivankh/docsync/pkg/api"
)

// RowStorage defines interface for synced collection rows.
// Сервер — авторитет по updated_at: каждое принятое изменение получает
// серверное время, и именно оно служит pull-курсором клиентов.
type RowStorage interface {
	// UpsertRow creates or updates a row keyed by (collection, id).
	// Запись применяется только если она не старее существующей по
	// logical_clock (LWW guard) — повторная доставка того же push
	// идемпотентна. Возвращает применённую строку (с серверным
	// updated_at) и флаг applied.
	UpsertRow(ctx context.Context, collection string, row *api.Row) (*api.Row, bool, error)

	// SoftDeleteRow помечает строку удаленной: is_deleted=true,
	// deleted_at=now. Физическое удаление не выполняется — tombstone
	// должен распространиться на остальные устройства.
	// Returns ErrRowNotFound if row doesn't exist for this user
	SoftDeleteRow(ctx context.Context, collection, id, userID string, deletedAt time.Time) (*api.Row, error)

	// GetRow retrieves a row by id regardless of tombstone state
	// Returns ErrRowNotFound if row doesn't exist
	GetRow(ctx context.Context, collection, id string) (*api.Row, error)

	// GetRowsSince возвращает строки пользователя с updated_at > since,
	// включая tombstones, по возрастанию updated_at, не более limit
	GetRowsSince(ctx context.Context, collection, userID string, since time.Time, limit int) ([]api.Row, error)
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ivankh/docsync/internal/server/storage"
	"github.com/ivankh/docsync/pkg/api"
)

// UpsertRow creates or updates a row keyed by (collection, id).
// LWW guard: строка со строго меньшим logical_clock, чем существующая,
// не применяется. Равный clock принимается — повторная доставка того же
// push идемпотентна. updated_at всегда выставляет сервер.
func (s *Storage) UpsertRow(ctx context.Context, collection string, row *api.Row) (*api.Row, bool, error) {
	existing, err := s.GetRow(ctx, collection, row.ID)
	if err != nil && !errors.Is(err, storage.ErrRowNotFound) {
		return nil, false, fmt.Errorf("failed to check existing row: %w", err)
	}

	if existing != nil && row.LogicalClock < existing.LogicalClock {
		return existing, false, nil
	}

	fields, err := json.Marshal(row.Fields)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal fields: %w", err)
	}

	now := time.Now().UTC()
	accepted := *row
	accepted.UpdatedAt = now
	if existing == nil {
		accepted.CreatedAt = now
	} else {
		accepted.CreatedAt = existing.CreatedAt
	}

	var deletedAt *int64
	if accepted.DeletedAt != nil {
		nanos := accepted.DeletedAt.UnixNano()
		deletedAt = &nanos
	}

	query := `
		INSERT INTO sync_rows (
			collection, id, user_id, created_at, updated_at, deleted_at,
			is_deleted, logical_clock, origin_device_id, fields
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			user_id = excluded.user_id,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			is_deleted = excluded.is_deleted,
			logical_clock = excluded.logical_clock,
			origin_device_id = excluded.origin_device_id,
			fields = excluded.fields
	`

	_, err = s.db.ExecContext(ctx, query,
		collection,
		accepted.ID,
		accepted.UserID,
		accepted.CreatedAt.UnixNano(),
		accepted.UpdatedAt.UnixNano(),
		deletedAt,
		boolToInt(accepted.IsDeleted),
		accepted.LogicalClock,
		accepted.OriginDeviceID,
		string(fields),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert row: %w", err)
	}

	return &accepted, true, nil
}

// SoftDeleteRow помечает строку удаленной, сохраняя ее как tombstone
func (s *Storage) SoftDeleteRow(ctx context.Context, collection, id, userID string, deletedAt time.Time) (*api.Row, error) {
	now := time.Now().UTC()

	query := `
		UPDATE sync_rows
		SET is_deleted = 1, deleted_at = ?, updated_at = ?
		WHERE collection = ? AND id = ? AND user_id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		deletedAt.UnixNano(),
		now.UnixNano(),
		collection,
		id,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to soft delete row: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, storage.ErrRowNotFound
	}

	return s.GetRow(ctx, collection, id)
}

// GetRow retrieves a row by id regardless of tombstone state
func (s *Storage) GetRow(ctx context.Context, collection, id string) (*api.Row, error) {
	query := `
		SELECT id, user_id, created_at, updated_at, deleted_at,
		       is_deleted, logical_clock, origin_device_id, fields
		FROM sync_rows
		WHERE collection = ? AND id = ?
	`

	row, err := scanRow(s.db.QueryRowContext(ctx, query, collection, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRowNotFound
		}
		return nil, err
	}
	return row, nil
}

// GetRowsSince возвращает инкрементальный батч строк пользователя:
// updated_at > since, по возрастанию updated_at, включая tombstones
func (s *Storage) GetRowsSince(ctx context.Context, collection, userID string, since time.Time, limit int) ([]api.Row, error) {
	query := `
		SELECT id, user_id, created_at, updated_at, deleted_at,
		       is_deleted, logical_clock, origin_device_id, fields
		FROM sync_rows
		WHERE collection = ? AND user_id = ? AND updated_at > ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, collection, userID, since.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var result []api.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return result, nil
}

// scanner покрывает *sql.Row и *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (*api.Row, error) {
	row := &api.Row{}
	var createdAt, updatedAt int64
	var deletedAt sql.NullInt64
	var isDeleted int
	var fields string

	err := sc.Scan(
		&row.ID,
		&row.UserID,
		&createdAt,
		&updatedAt,
		&deletedAt,
		&isDeleted,
		&row.LogicalClock,
		&row.OriginDeviceID,
		&fields,
	)
	if err != nil {
		// sql.ErrNoRows пробрасываем как есть — вызывающий превращает
		// его в ErrRowNotFound
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	row.CreatedAt = time.Unix(0, createdAt).UTC()
	row.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if deletedAt.Valid {
		t := time.Unix(0, deletedAt.Int64).UTC()
		row.DeletedAt = &t
	}
	row.IsDeleted = isDeleted != 0

	if err := json.Unmarshal([]byte(fields), &row.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}

	return row, nil
}

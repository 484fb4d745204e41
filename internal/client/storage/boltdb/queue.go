package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ivankh/docsync/internal/client/storage"
	"github.com/ivankh/docsync/internal/models"
)

// MaxAttempts — лимит попыток отправки, после которого элемент очереди
// переводится в состояние failed и исключается из батчей
const MaxAttempts = 5

// recordKey строит ключ coalescing-индекса: collection \x00 recordID
func recordKey(collection, recordID string) []byte {
	key := make([]byte, 0, len(collection)+1+len(recordID))
	key = append(key, collection...)
	key = append(key, 0)
	key = append(key, recordID...)
	return key
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Enqueue appends a pending operation. Если для той же записи уже есть
// pending-элемент, его payload заменяется (coalescing) — позиция в очереди
// при этом сохраняется.
func (s *Storage) Enqueue(ctx context.Context, op *models.PendingOperation) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		queue := tx.Bucket(bucketQueue)
		byID := tx.Bucket(bucketQueueByID)
		byRecord := tx.Bucket(bucketQueueByRecord)

		recKey := recordKey(op.Collection, op.Item.Meta.ID)

		// Coalescing: существующий pending-элемент той же записи
		if existingSeq := byRecord.Get(recKey); existingSeq != nil {
			data := queue.Get(existingSeq)
			if data != nil {
				var existing models.PendingOperation
				if err := json.Unmarshal(data, &existing); err != nil {
					return fmt.Errorf("failed to unmarshal queued operation: %w", err)
				}
				if existing.State == models.OperationPending {
					existing.Item = op.Item
					existing.Operation = op.Operation
					updated, err := json.Marshal(&existing)
					if err != nil {
						return fmt.Errorf("failed to marshal coalesced operation: %w", err)
					}
					return queue.Put(existingSeq, updated)
				}
			}
		}

		seq, err := queue.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		key := seqKey(seq)

		op.State = models.OperationPending
		op.EnqueuedAt = time.Now()

		data, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("failed to marshal operation: %w", err)
		}

		if err := queue.Put(key, data); err != nil {
			return fmt.Errorf("failed to save operation: %w", err)
		}
		if err := byID.Put([]byte(op.ID), key); err != nil {
			return fmt.Errorf("failed to index operation by id: %w", err)
		}
		return byRecord.Put(recKey, key)
	})
}

// GetNextBatch returns pending operations of a collection eligible for
// dispatch, oldest-enqueued first
func (s *Storage) GetNextBatch(ctx context.Context, collection string, limit int) ([]*models.PendingOperation, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var batch []*models.PendingOperation

	err := s.db.View(func(tx *bbolt.Tx) error {
		// Ключи — монотонные sequence numbers, ForEach идет в порядке ключей,
		// то есть в порядке постановки в очередь
		return tx.Bucket(bucketQueue).ForEach(func(k, v []byte) error {
			if limit > 0 && len(batch) >= limit {
				return nil
			}
			var op models.PendingOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			if op.Collection != collection || op.State != models.OperationPending {
				return nil
			}
			if op.Attempts >= MaxAttempts {
				return nil
			}
			batch = append(batch, &op)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read queue batch: %w", err)
	}

	return batch, nil
}

// MarkInProgress transitions an operation to in_progress
func (s *Storage) MarkInProgress(ctx context.Context, opID string) error {
	return s.updateOperation(opID, func(op *models.PendingOperation, tx *bbolt.Tx, key []byte) error {
		op.State = models.OperationInProgress
		now := time.Now()
		op.LastAttempt = &now
		// Пока операция в полете, новые правки той же записи должны
		// создавать новый элемент очереди, а не коалесцироваться в этот
		return s.dropRecordIndex(tx, op, key)
	})
}

// MarkCompleted удаляет завершенную операцию из очереди
func (s *Storage) MarkCompleted(ctx context.Context, opID string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		byID := tx.Bucket(bucketQueueByID)
		key := byID.Get([]byte(opID))
		if key == nil {
			return storage.ErrOperationNotFound
		}

		queue := tx.Bucket(bucketQueue)
		data := queue.Get(key)
		if data != nil {
			var op models.PendingOperation
			if err := json.Unmarshal(data, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			if err := s.dropRecordIndex(tx, &op, key); err != nil {
				return err
			}
		}

		if err := queue.Delete(key); err != nil {
			return fmt.Errorf("failed to delete operation: %w", err)
		}
		return byID.Delete([]byte(opID))
	})
}

// MarkFailed учитывает неудачную попытку: элемент возвращается в pending
// для ретрая или становится failed по достижении MaxAttempts
func (s *Storage) MarkFailed(ctx context.Context, opID string, syncErr *models.SyncError) error {
	return s.updateOperation(opID, func(op *models.PendingOperation, tx *bbolt.Tx, key []byte) error {
		op.Attempts++
		now := time.Now()
		op.LastAttempt = &now
		if syncErr != nil {
			op.LastError = syncErr.Error()
		}

		if op.Attempts >= MaxAttempts {
			op.State = models.OperationFailed
			return s.dropRecordIndex(tx, op, key)
		}

		op.State = models.OperationPending
		// Восстанавливаем coalescing-индекс, если его не занял более
		// поздний элемент той же записи
		byRecord := tx.Bucket(bucketQueueByRecord)
		recKey := recordKey(op.Collection, op.Item.Meta.ID)
		if byRecord.Get(recKey) == nil {
			return byRecord.Put(recKey, key)
		}
		return nil
	})
}

// QueueCount returns the total number of pending and in_progress operations
func (s *Storage) QueueCount(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(k, v []byte) error {
			var op models.PendingOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			if op.State == models.OperationPending || op.State == models.OperationInProgress {
				count++
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}

	return count, nil
}

// updateOperation читает операцию по id, применяет mutate и сохраняет обратно
func (s *Storage) updateOperation(opID string, mutate func(*models.PendingOperation, *bbolt.Tx, []byte) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		key := tx.Bucket(bucketQueueByID).Get([]byte(opID))
		if key == nil {
			return storage.ErrOperationNotFound
		}

		queue := tx.Bucket(bucketQueue)
		data := queue.Get(key)
		if data == nil {
			return storage.ErrOperationNotFound
		}

		var op models.PendingOperation
		if err := json.Unmarshal(data, &op); err != nil {
			return fmt.Errorf("failed to unmarshal operation: %w", err)
		}

		if err := mutate(&op, tx, key); err != nil {
			return err
		}

		updated, err := json.Marshal(&op)
		if err != nil {
			return fmt.Errorf("failed to marshal operation: %w", err)
		}
		return queue.Put(key, updated)
	})
}

// dropRecordIndex удаляет coalescing-индекс, если он указывает на этот элемент
func (s *Storage) dropRecordIndex(tx *bbolt.Tx, op *models.PendingOperation, key []byte) error {
	byRecord := tx.Bucket(bucketQueueByRecord)
	recKey := recordKey(op.Collection, op.Item.Meta.ID)
	if current := byRecord.Get(recKey); bytes.Equal(current, key) {
		return byRecord.Delete(recKey)
	}
	return nil
}

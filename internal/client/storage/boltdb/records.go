package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/ivankh/docsync/internal/client/storage"
	"github.com/ivankh/docsync/internal/models"
)

// SaveRecord stores or replaces a record in a collection bucket
func (s *Storage) SaveRecord(ctx context.Context, collection string, rec *models.Record) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket(bucketRecords).CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return fmt.Errorf("failed to create collection bucket: %w", err)
		}
		return bucket.Put([]byte(rec.Meta.ID), data)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// GetRecord retrieves a record by id
func (s *Storage) GetRecord(ctx context.Context, collection, id string) (*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var rec *models.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRecords).Bucket([]byte(collection))
		if bucket == nil {
			return storage.ErrRecordNotFound
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrRecordNotFound
		}

		rec = &models.Record{}
		if err := json.Unmarshal(data, rec); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// PatchRecord применяет patch к записи атомарно: чтение, мутация и запись
// происходят в одной bbolt-транзакции
func (s *Storage) PatchRecord(ctx context.Context, collection, id string, patch func(*models.Record) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRecords).Bucket([]byte(collection))
		if bucket == nil {
			return storage.ErrRecordNotFound
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrRecordNotFound
		}

		var rec models.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}

		if err := patch(&rec); err != nil {
			return err
		}

		updated, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("failed to marshal patched record: %w", err)
		}
		return bucket.Put([]byte(id), updated)
	})
}

// ListRecords returns all records of a collection including tombstones
func (s *Storage) ListRecords(ctx context.Context, collection string) ([]*models.Record, error) {
	return s.listRecords(collection, true)
}

// ListActiveRecords returns non-deleted records of a collection
func (s *Storage) ListActiveRecords(ctx context.Context, collection string) ([]*models.Record, error) {
	return s.listRecords(collection, false)
}

func (s *Storage) listRecords(collection string, includeDeleted bool) ([]*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var records []*models.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRecords).Bucket([]byte(collection))
		if bucket == nil {
			// Коллекция еще не создана — пустой результат
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var rec models.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			if !includeDeleted && rec.Meta.IsDeleted {
				return nil
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return records, nil
}

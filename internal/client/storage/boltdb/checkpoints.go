package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ivankh/docsync/internal/client/storage"
)

// GetCheckpoint returns the pull checkpoint of a collection.
// Нулевое время означает, что коллекция еще не пуллилась.
func (s *Storage) GetCheckpoint(ctx context.Context, collection string) (time.Time, error) {
	if s.db == nil {
		return time.Time{}, storage.ErrStorageClosed
	}

	var checkpoint time.Time

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCheckpoints).Get([]byte(collection))
		if data == nil {
			return nil
		}
		nanos := int64(binary.BigEndian.Uint64(data))
		checkpoint = time.Unix(0, nanos).UTC()
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return checkpoint, nil
}

// SetCheckpoint advances the pull checkpoint of a collection.
// Значение, не превышающее сохраненное, игнорируется: курсор монотонен.
func (s *Storage) SetCheckpoint(ctx context.Context, collection string, at time.Time) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCheckpoints)

		if existing := bucket.Get([]byte(collection)); existing != nil {
			current := int64(binary.BigEndian.Uint64(existing))
			if at.UnixNano() <= current {
				return nil
			}
		}

		data := make([]byte, 8)
		binary.BigEndian.PutUint64(data, uint64(at.UnixNano()))
		if err := bucket.Put([]byte(collection), data); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		return nil
	})
}

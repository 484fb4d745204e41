package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/ivankh/docsync/internal/client/storage"
)

const (
	keyDeviceID = "device_id"
	keyClock    = "clock"
)

// GetDeviceID returns the stable device id, generating and persisting one
// on first call. Идентификатор переживает рестарты — это единица
// self-echo suppression и происхождения конфликтов.
func (s *Storage) GetDeviceID(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", storage.ErrStorageClosed
	}

	var deviceID string

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDevice)

		if data := bucket.Get([]byte(keyDeviceID)); data != nil {
			deviceID = string(data)
			return nil
		}

		deviceID = uuid.New().String()
		if err := bucket.Put([]byte(keyDeviceID), []byte(deviceID)); err != nil {
			return fmt.Errorf("failed to save device id: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to get device id: %w", err)
	}

	return deviceID, nil
}

// GetClock returns the persisted logical clock counter (0 if unset)
func (s *Storage) GetClock(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	var counter int64

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDevice).Get([]byte(keyClock))
		if data == nil {
			return nil
		}
		counter = int64(binary.BigEndian.Uint64(data))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get clock: %w", err)
	}

	return counter, nil
}

// SaveClock persists the logical clock counter so restarts never rewind it
func (s *Storage) SaveClock(ctx context.Context, counter int64) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		data := make([]byte, 8)
		binary.BigEndian.PutUint64(data, uint64(counter))
		if err := tx.Bucket(bucketDevice).Put([]byte(keyClock), data); err != nil {
			return fmt.Errorf("failed to save clock: %w", err)
		}
		return nil
	})
}

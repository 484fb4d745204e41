package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	// BoltDB bucket names
	bucketRecords       = []byte("records")      // вложенные buckets per collection
	bucketQueue         = []byte("queue")        // seq -> PendingOperation
	bucketQueueByID     = []byte("queue_by_id")  // opID -> seq
	bucketQueueByRecord = []byte("queue_by_rec") // collection \x00 recordID -> seq (coalescing)
	bucketCheckpoints   = []byte("checkpoints")  // collection -> unixnano
	bucketDevice        = []byte("device")       // device_id, clock
	bucketAuth          = []byte("auth")         // session
)

// Storage represents BoltDB storage implementation for client.
// Один файл реализует RecordStorage, QueueStorage, CheckpointStorage,
// DeviceStorage и AuthStorage.
type Storage struct {
	db *bbolt.DB
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	buckets := [][]byte{
		bucketRecords,
		bucketQueue,
		bucketQueueByID,
		bucketQueueByRecord,
		bucketCheckpoints,
		bucketDevice,
		bucketAuth,
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

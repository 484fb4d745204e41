package storage

import "errors"

// Common client storage errors
var (
	// ErrRecordNotFound indicates that record was not found in a collection
	ErrRecordNotFound = errors.New("record not found")

	// ErrOperationNotFound indicates that queue operation was not found
	ErrOperationNotFound = errors.New("queue operation not found")

	// ErrAuthNotFound indicates that no session data exists
	ErrAuthNotFound = errors.New("authentication data not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)

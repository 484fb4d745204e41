package models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorCode классифицирует ошибку синхронизации
type ErrorCode string

const (
	ErrCodeNetwork      ErrorCode = "NETWORK_ERROR"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeRLSViolation ErrorCode = "RLS_VIOLATION"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeUnknown      ErrorCode = "UNKNOWN_ERROR"
)

// SyncError типизированная ошибка синхронизации
type SyncError struct {
	Timestamp time.Time `json:"timestamp"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewSyncError создает SyncError с текущим временем
func NewSyncError(code ErrorCode, message string) *SyncError {
	return &SyncError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// ClassifySyncError приводит произвольную ошибку транспорта к SyncError.
// Если транспорт не вернул типизированную ошибку, классифицируем
// по форме/сообщению.
func ClassifySyncError(err error) *SyncError {
	if err == nil {
		return nil
	}

	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr
	}

	// Таймауты: context deadline или net.Error с Timeout()
	if errors.Is(err, context.DeadlineExceeded) {
		return NewSyncError(ErrCodeTimeout, err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewSyncError(ErrCodeTimeout, err.Error())
		}
		return NewSyncError(ErrCodeNetwork, err.Error())
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "connection reset"):
		return NewSyncError(ErrCodeNetwork, err.Error())
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return NewSyncError(ErrCodeTimeout, err.Error())
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "status 401"):
		return NewSyncError(ErrCodeUnauthorized, err.Error())
	case strings.Contains(msg, "row-level security"),
		strings.Contains(msg, "status 403"),
		strings.Contains(msg, "forbidden"):
		return NewSyncError(ErrCodeRLSViolation, err.Error())
	case strings.Contains(msg, "validation"), strings.Contains(msg, "status 422"),
		strings.Contains(msg, "status 400"):
		return NewSyncError(ErrCodeValidation, err.Error())
	}

	return NewSyncError(ErrCodeUnknown, err.Error())
}

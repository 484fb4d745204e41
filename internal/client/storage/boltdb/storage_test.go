package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivankh/docsync/internal/client/storage"
)

func createTestStorage(t *testing.T) *Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(context.Background(), dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

func TestStorage_NewAndClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestStorage_Auth(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	// Сессии нет
	_, err := s.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)

	auth := &storage.AuthData{
		UserID:       "user-1",
		Username:     "alice",
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    1234567890,
	}
	require.NoError(t, s.SaveAuth(ctx, auth))

	got, err := s.GetAuth(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth, got)

	require.NoError(t, s.DeleteAuth(ctx))
	_, err = s.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)
}

func TestStorage_DeviceID(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	id1, err := s.GetDeviceID(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id1)

	// Повторный вызов возвращает тот же идентификатор
	id2, err := s.GetDeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestStorage_Clock(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	counter, err := s.GetClock(ctx)
	require.NoError(t, err)
	assert.Zero(t, counter)

	require.NoError(t, s.SaveClock(ctx, 42))

	counter, err = s.GetClock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), counter)
}

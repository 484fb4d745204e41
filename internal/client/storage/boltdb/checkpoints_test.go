package boltdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoints_DefaultZero(t *testing.T) {
	s := createTestStorage(t)

	cp, err := s.GetCheckpoint(context.Background(), "notes")
	require.NoError(t, err)
	assert.True(t, cp.IsZero())
}

func TestCheckpoints_SetAndGet(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	require.NoError(t, s.SetCheckpoint(ctx, "notes", at))

	cp, err := s.GetCheckpoint(ctx, "notes")
	require.NoError(t, err)
	assert.True(t, cp.Equal(at))

	// Чекпойнты коллекций независимы
	other, err := s.GetCheckpoint(ctx, "tasks")
	require.NoError(t, err)
	assert.True(t, other.IsZero())
}

func TestCheckpoints_Monotonic(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	newer := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	require.NoError(t, s.SetCheckpoint(ctx, "notes", newer))

	// Попытка отката молча игнорируется
	require.NoError(t, s.SetCheckpoint(ctx, "notes", older))

	cp, err := s.GetCheckpoint(ctx, "notes")
	require.NoError(t, err)
	assert.True(t, cp.Equal(newer))
}

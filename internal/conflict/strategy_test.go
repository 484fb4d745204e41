package conflict

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivankh/docsync/internal/clock"
	"github.com/ivankh/docsync/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recordWithClock(c int64) *models.Record {
	return &models.Record{
		Meta: models.SyncMetadata{
			ID:           "rec-1",
			LogicalClock: c,
		},
		Fields: map[string]any{"title": "x"},
	}
}

func TestLWW_Resolve(t *testing.T) {
	s := NewLWW(clock.New("device-1", 0), testLogger())

	tests := []struct {
		name        string
		localClock  int64
		remoteClock int64
		wantSource  Source
	}{
		{name: "local higher clock wins", localClock: 6, remoteClock: 5, wantSource: SourceLocal},
		{name: "remote higher clock wins", localClock: 5, remoteClock: 6, wantSource: SourceRemote},
		{name: "tie favors remote", localClock: 5, remoteClock: 5, wantSource: SourceRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := recordWithClock(tt.localClock)
			remote := recordWithClock(tt.remoteClock)

			res := s.Resolve("notes", local, remote)

			assert.Equal(t, tt.wantSource, res.Source)
			if tt.wantSource == SourceLocal {
				assert.Same(t, local, res.Winner)
				assert.Same(t, remote, res.Loser)
			} else {
				assert.Same(t, remote, res.Winner)
				assert.Same(t, local, res.Loser)
			}
		})
	}
}

func TestLWW_PrepareForPush(t *testing.T) {
	lc := clock.New("device-9", 10)
	s := NewLWW(lc, testLogger())

	item := recordWithClock(3)
	s.PrepareForPush(item)

	assert.Equal(t, int64(11), item.Meta.LogicalClock)
	assert.Equal(t, "device-9", item.Meta.OriginDeviceID)

	// Каждая следующая мутация получает строго больший clock
	s.PrepareForPush(item)
	assert.Equal(t, int64(12), item.Meta.LogicalClock)
}

func TestRegistry(t *testing.T) {
	fallback := NewLWW(clock.New("device-1", 0), testLogger())
	custom := NewLWW(clock.New("device-1", 0), testLogger())

	r := NewRegistry(fallback)
	require.NoError(t, r.Register("notes", custom))

	assert.Same(t, Strategy(custom), r.For("notes"))
	assert.Same(t, Strategy(fallback), r.For("unknown"))

	// Повторная регистрация — ошибка
	err := r.Register("notes", fallback)
	require.Error(t, err)
}

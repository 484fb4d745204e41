package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivankh/docsync/internal/server/feed"
	"github.com/ivankh/docsync/internal/server/storage"
	"github.com/ivankh/docsync/pkg/api"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRowStorage is an in-memory RowStorage for handler tests
type mockRowStorage struct {
	rows map[string]map[string]*api.Row // collection -> id -> row
}

func newMockRowStorage() *mockRowStorage {
	return &mockRowStorage{rows: make(map[string]map[string]*api.Row)}
}

func (m *mockRowStorage) UpsertRow(ctx context.Context, collection string, row *api.Row) (*api.Row, bool, error) {
	if m.rows[collection] == nil {
		m.rows[collection] = make(map[string]*api.Row)
	}
	existing := m.rows[collection][row.ID]
	if existing != nil && row.LogicalClock < existing.LogicalClock {
		return existing, false, nil
	}

	accepted := *row
	accepted.UpdatedAt = time.Now().UTC()
	if existing == nil {
		accepted.CreatedAt = accepted.UpdatedAt
	} else {
		accepted.CreatedAt = existing.CreatedAt
	}
	m.rows[collection][row.ID] = &accepted
	return &accepted, true, nil
}

func (m *mockRowStorage) SoftDeleteRow(ctx context.Context, collection, id, userID string, deletedAt time.Time) (*api.Row, error) {
	row := m.rows[collection][id]
	if row == nil || row.UserID != userID {
		return nil, storage.ErrRowNotFound
	}
	row.IsDeleted = true
	row.DeletedAt = &deletedAt
	row.UpdatedAt = time.Now().UTC()
	return row, nil
}

func (m *mockRowStorage) GetRow(ctx context.Context, collection, id string) (*api.Row, error) {
	row := m.rows[collection][id]
	if row == nil {
		return nil, storage.ErrRowNotFound
	}
	return row, nil
}

func (m *mockRowStorage) GetRowsSince(ctx context.Context, collection, userID string, since time.Time, limit int) ([]api.Row, error) {
	var result []api.Row
	for _, row := range m.rows[collection] {
		if row.UserID == userID && row.UpdatedAt.After(since) {
			result = append(result, *row)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

func newSyncFixture() (*SyncHandler, *mockRowStorage, *feed.Dispatcher) {
	rows := newMockRowStorage()
	dispatcher := feed.NewDispatcher()
	h := NewSyncHandler(testLogger(), rows, dispatcher, []string{"notes", "tasks"})
	return h, rows, dispatcher
}

// authedRequest строит запрос с user_id в контексте, как после AuthMiddleware
func authedRequest(t *testing.T, method, target, userID string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := context.WithValue(req.Context(), UserIDKey, userID)
	return req.WithContext(ctx)
}

func TestSyncHandler_Push(t *testing.T) {
	h, rows, _ := newSyncFixture()

	req := authedRequest(t, http.MethodPost, "/api/v1/sync/push", "user-1", api.PushRequest{
		Collection: "notes",
		Row: api.Row{
			ID:             "rec-1",
			UserID:         "someone-else", // должен быть перезаписан токеном
			LogicalClock:   1,
			OriginDeviceID: "device-a",
			Fields:         map[string]any{"title": "hello"},
		},
	})
	w := httptest.NewRecorder()
	h.Push(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp api.PushResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Applied)
	assert.False(t, resp.UpdatedAt.IsZero())

	saved := rows.rows["notes"]["rec-1"]
	require.NotNil(t, saved)
	assert.Equal(t, "user-1", saved.UserID)
}

func TestSyncHandler_Push_StaleClockNotApplied(t *testing.T) {
	h, _, _ := newSyncFixture()

	push := func(clock int64) api.PushResponse {
		req := authedRequest(t, http.MethodPost, "/api/v1/sync/push", "user-1", api.PushRequest{
			Collection: "notes",
			Row: api.Row{
				ID:             "rec-1",
				LogicalClock:   clock,
				OriginDeviceID: "device-a",
				Fields:         map[string]any{"title": "x"},
			},
		})
		w := httptest.NewRecorder()
		h.Push(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var resp api.PushResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		return resp
	}

	assert.True(t, push(5).Applied)
	assert.False(t, push(3).Applied)
}

func TestSyncHandler_Push_Validation(t *testing.T) {
	h, _, _ := newSyncFixture()

	tests := []struct {
		name string
		req  api.PushRequest
	}{
		{
			name: "unknown collection",
			req: api.PushRequest{
				Collection: "secrets",
				Row:        api.Row{ID: "rec-1", OriginDeviceID: "d", LogicalClock: 1},
			},
		},
		{
			name: "missing row id",
			req: api.PushRequest{
				Collection: "notes",
				Row:        api.Row{OriginDeviceID: "d", LogicalClock: 1},
			},
		},
		{
			name: "missing origin device",
			req: api.PushRequest{
				Collection: "notes",
				Row:        api.Row{ID: "rec-1", LogicalClock: 1},
			},
		},
		{
			name: "negative clock",
			req: api.PushRequest{
				Collection: "notes",
				Row:        api.Row{ID: "rec-1", OriginDeviceID: "d", LogicalClock: -1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest(t, http.MethodPost, "/api/v1/sync/push", "user-1", tt.req)
			w := httptest.NewRecorder()
			h.Push(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSyncHandler_Push_ForeignRowForbidden(t *testing.T) {
	h, rows, _ := newSyncFixture()

	rows.rows["notes"] = map[string]*api.Row{
		"rec-1": {ID: "rec-1", UserID: "user-2", LogicalClock: 1, UpdatedAt: time.Now()},
	}

	req := authedRequest(t, http.MethodPost, "/api/v1/sync/push", "user-1", api.PushRequest{
		Collection: "notes",
		Row: api.Row{
			ID:             "rec-1",
			LogicalClock:   2,
			OriginDeviceID: "device-a",
			Fields:         map[string]any{"title": "hijack"},
		},
	})
	w := httptest.NewRecorder()
	h.Push(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSyncHandler_Push_PublishesChangeEvent(t *testing.T) {
	h, _, dispatcher := newSyncFixture()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	req := authedRequest(t, http.MethodPost, "/api/v1/sync/push", "user-1", api.PushRequest{
		Collection: "notes",
		Row: api.Row{
			ID:             "rec-1",
			LogicalClock:   1,
			OriginDeviceID: "device-a",
			Fields:         map[string]any{"title": "hello"},
		},
	})
	w := httptest.NewRecorder()
	h.Push(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case ev := <-stream:
		assert.Equal(t, api.EventInsert, ev.EventType)
		assert.Equal(t, "notes", ev.Collection)
		assert.Equal(t, "rec-1", ev.Row.ID)
	case <-time.After(time.Second):
		t.Fatal("expected INSERT event")
	}

	// Повторный push существующей строки — уже UPDATE
	req = authedRequest(t, http.MethodPost, "/api/v1/sync/push", "user-1", api.PushRequest{
		Collection: "notes",
		Row: api.Row{
			ID:             "rec-1",
			LogicalClock:   2,
			OriginDeviceID: "device-a",
			Fields:         map[string]any{"title": "updated"},
		},
	})
	w = httptest.NewRecorder()
	h.Push(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case ev := <-stream:
		assert.Equal(t, api.EventUpdate, ev.EventType)
	case <-time.After(time.Second):
		t.Fatal("expected UPDATE event")
	}
}

func TestSyncHandler_Delete(t *testing.T) {
	h, rows, dispatcher := newSyncFixture()

	rows.rows["notes"] = map[string]*api.Row{
		"rec-1": {ID: "rec-1", UserID: "user-1", LogicalClock: 1, UpdatedAt: time.Now()},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	req := authedRequest(t, http.MethodPost, "/api/v1/sync/delete", "user-1", api.DeleteRequest{
		Collection: "notes",
		ID:         "rec-1",
	})
	w := httptest.NewRecorder()
	h.Delete(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, rows.rows["notes"]["rec-1"].IsDeleted)

	select {
	case ev := <-stream:
		assert.Equal(t, api.EventDelete, ev.EventType)
		assert.True(t, ev.Row.IsDeleted)
	case <-time.After(time.Second):
		t.Fatal("expected DELETE event")
	}
}

func TestSyncHandler_Delete_NotFound(t *testing.T) {
	h, _, _ := newSyncFixture()

	req := authedRequest(t, http.MethodPost, "/api/v1/sync/delete", "user-1", api.DeleteRequest{
		Collection: "notes",
		ID:         "missing",
	})
	w := httptest.NewRecorder()
	h.Delete(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncHandler_Pull(t *testing.T) {
	h, rows, _ := newSyncFixture()

	now := time.Now().UTC()
	rows.rows["notes"] = map[string]*api.Row{
		"rec-1": {ID: "rec-1", UserID: "user-1", LogicalClock: 1, UpdatedAt: now},
		"rec-2": {ID: "rec-2", UserID: "user-2", LogicalClock: 1, UpdatedAt: now},
	}

	target := "/api/v1/sync/pull?collection=notes&since=0&limit=10"
	req := authedRequest(t, http.MethodGet, target, "user-1", nil)
	w := httptest.NewRecorder()
	h.Pull(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp api.PullResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "rec-1", resp.Rows[0].ID)
	assert.False(t, resp.HasMore)
	assert.False(t, resp.ServerTime.IsZero())
}

func TestSyncHandler_Pull_HasMore(t *testing.T) {
	h, rows, _ := newSyncFixture()

	now := time.Now().UTC()
	rows.rows["notes"] = map[string]*api.Row{
		"rec-1": {ID: "rec-1", UserID: "user-1", UpdatedAt: now},
		"rec-2": {ID: "rec-2", UserID: "user-1", UpdatedAt: now},
	}

	target := "/api/v1/sync/pull?collection=notes&since=0&limit=2"
	req := authedRequest(t, http.MethodGet, target, "user-1", nil)
	w := httptest.NewRecorder()
	h.Pull(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp api.PullResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Rows, 2)
	assert.True(t, resp.HasMore)
}

func TestSyncHandler_Pull_BadParams(t *testing.T) {
	h, _, _ := newSyncFixture()

	tests := []struct {
		name   string
		target string
	}{
		{name: "missing collection", target: "/api/v1/sync/pull"},
		{name: "unknown collection", target: "/api/v1/sync/pull?collection=secrets"},
		{name: "bad since", target: "/api/v1/sync/pull?collection=notes&since=abc"},
		{name: "bad limit", target: "/api/v1/sync/pull?collection=notes&limit=-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest(t, http.MethodGet, tt.target, "user-1", nil)
			w := httptest.NewRecorder()
			h.Pull(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSyncHandler_Pull_SinceCursor(t *testing.T) {
	h, rows, _ := newSyncFixture()

	old := time.Now().UTC().Add(-time.Hour)
	fresh := time.Now().UTC()
	rows.rows["notes"] = map[string]*api.Row{
		"rec-old": {ID: "rec-old", UserID: "user-1", UpdatedAt: old},
		"rec-new": {ID: "rec-new", UserID: "user-1", UpdatedAt: fresh},
	}

	since := strconv.FormatInt(old.UnixNano(), 10)
	target := "/api/v1/sync/pull?collection=notes&since=" + since
	req := authedRequest(t, http.MethodGet, target, "user-1", nil)
	w := httptest.NewRecorder()
	h.Pull(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp api.PullResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "rec-new", resp.Rows[0].ID)
}

func TestSyncHandler_Unauthorized(t *testing.T) {
	h, _, _ := newSyncFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/pull?collection=notes", nil)
	w := httptest.NewRecorder()
	h.Pull(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivankh/docsync/internal/server/feed"
	"github.com/ivankh/docsync/pkg/api"
)

// runFeed запускает SSE handler с отменяемым контекстом и возвращает
// тело ответа после завершения потока
func runFeed(t *testing.T, h *FeedHandler, target, userID string, publish func(d *feed.Dispatcher)) string {
	ctx, cancel := context.WithCancel(context.Background())

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(context.WithValue(ctx, UserIDKey, userID))
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Feed(w, req)
	}()

	// Даем handler'у время подписаться до публикации
	require.Eventually(t, func() bool {
		return h.dispatcher.SubscriberCount(userID) == 1
	}, time.Second, 5*time.Millisecond)

	publish(h.dispatcher)

	// Даем событию дойти до writer'а, затем рвем соединение
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("feed handler did not stop on context cancel")
	}

	return w.Body.String()
}

func TestFeedHandler_StreamsEvents(t *testing.T) {
	h := NewFeedHandler(testLogger(), feed.NewDispatcher())

	body := runFeed(t, h, "/api/v1/sync/feed", "user-1", func(d *feed.Dispatcher) {
		d.Publish(feed.Event{
			UserID: "user-1",
			Change: api.ChangeEvent{
				Collection: "notes",
				EventType:  api.EventUpdate,
				Row:        api.Row{ID: "rec-1"},
			},
		})
	})

	assert.Contains(t, body, "data: ")
	assert.Contains(t, body, `"event_type":"UPDATE"`)
	assert.Contains(t, body, `"rec-1"`)
}

func TestFeedHandler_CollectionFilter(t *testing.T) {
	h := NewFeedHandler(testLogger(), feed.NewDispatcher())

	body := runFeed(t, h, "/api/v1/sync/feed?collections=notes,tasks", "user-1", func(d *feed.Dispatcher) {
		d.Publish(feed.Event{
			UserID: "user-1",
			Change: api.ChangeEvent{Collection: "archive", EventType: api.EventUpdate, Row: api.Row{ID: "skip-me"}},
		})
		d.Publish(feed.Event{
			UserID: "user-1",
			Change: api.ChangeEvent{Collection: "tasks", EventType: api.EventInsert, Row: api.Row{ID: "keep-me"}},
		})
	})

	assert.NotContains(t, body, "skip-me")
	assert.Contains(t, body, "keep-me")
}

func TestFeedHandler_Unauthorized(t *testing.T) {
	h := NewFeedHandler(testLogger(), feed.NewDispatcher())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/feed", nil)
	w := httptest.NewRecorder()
	h.Feed(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFeedHandler_SetsSSEHeaders(t *testing.T) {
	h := NewFeedHandler(testLogger(), feed.NewDispatcher())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/feed", nil)
	req = req.WithContext(context.WithValue(ctx, UserIDKey, "user-1"))
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Feed(w, req)
	}()

	require.Eventually(t, func() bool {
		return h.dispatcher.SubscriberCount("user-1") == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
}

func TestFeedHandler_EventFraming(t *testing.T) {
	h := NewFeedHandler(testLogger(), feed.NewDispatcher())

	body := runFeed(t, h, "/api/v1/sync/feed", "user-1", func(d *feed.Dispatcher) {
		d.Publish(feed.Event{
			UserID: "user-1",
			Change: api.ChangeEvent{Collection: "notes", EventType: api.EventDelete, Row: api.Row{ID: "rec-1"}},
		})
	})

	// Каждое событие — строка "data: ..." с пустой строкой-разделителем
	idx := strings.Index(body, "data: ")
	require.GreaterOrEqual(t, idx, 0)
	event := body[idx:]
	assert.Contains(t, event, "\n\n")
}

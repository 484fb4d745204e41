package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ivankh/docsync/internal/server/feed"
)

// heartbeatInterval — период SSE-комментариев, удерживающих соединение
// живым через прокси и NAT
const heartbeatInterval = 15 * time.Second

// FeedHandler отдает change feed как Server-Sent Events поток
type FeedHandler struct {
	logger     *slog.Logger
	dispatcher *feed.Dispatcher
}

// NewFeedHandler создает новый handler для SSE ленты изменений
func NewFeedHandler(logger *slog.Logger, dispatcher *feed.Dispatcher) *FeedHandler {
	return &FeedHandler{
		logger:     logger,
		dispatcher: dispatcher,
	}
}

// Feed обрабатывает GET /api/v1/sync/feed?collections=a,b
// Поток живет до отмены контекста запроса клиентом
func (h *FeedHandler) Feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("response writer does not support streaming")
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Пустой параметр означает подписку на все коллекции пользователя
	var filter map[string]struct{}
	if raw := r.URL.Query().Get("collections"); raw != "" {
		filter = make(map[string]struct{})
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				filter[name] = struct{}{}
			}
		}
	}

	stream, cleanup := h.dispatcher.Subscribe(ctx, userID)
	defer cleanup()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("feed subscriber connected",
		slog.String("user_id", userID),
		slog.Int("collections", len(filter)))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("feed subscriber disconnected", slog.String("user_id", userID))
			return

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case event := <-stream:
			if filter != nil {
				if _, ok := filter[event.Collection]; !ok {
					continue
				}
			}

			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal change event", slog.Any("error", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ivankh/docsync/internal/server/feed"
	"github.com/ivankh/docsync/internal/server/storage"
	"github.com/ivankh/docsync/pkg/api"
)

// contextKey тип для ключей контекста
type contextKey string

const (
	// UserIDKey ключ для хранения user_id в контексте
	UserIDKey contextKey = "user_id"
	// UsernameKey ключ для хранения username в контексте
	UsernameKey contextKey = "username"
)

// Границы limit для pull-запросов
const (
	defaultPullLimit = 100
	maxPullLimit     = 1000
)

// GetUserID извлекает user_id из контекста запроса
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetUsername извлекает username из контекста запроса
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}

// ExtractBearerToken извлекает токен из заголовка Authorization
func ExtractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("Authorization header is required")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	if parts[1] == "" {
		return "", fmt.Errorf("token is required")
	}
	return parts[1], nil
}

// SyncHandler обрабатывает pull/push/delete запросы синхронизации
type SyncHandler struct {
	logger      *slog.Logger
	storage     storage.RowStorage
	dispatcher  *feed.Dispatcher
	collections map[string]struct{}
}

// NewSyncHandler создает новый sync handler.
// collections — список коллекций, которые сервер согласен синхронизировать
func NewSyncHandler(logger *slog.Logger, rowStorage storage.RowStorage, dispatcher *feed.Dispatcher, collections []string) *SyncHandler {
	known := make(map[string]struct{}, len(collections))
	for _, name := range collections {
		known[name] = struct{}{}
	}
	return &SyncHandler{
		logger:      logger,
		storage:     rowStorage,
		dispatcher:  dispatcher,
		collections: known,
	}
}

// Pull обрабатывает GET /api/v1/sync/pull?collection=X&since=unixnano&limit=N
// Возвращает строки пользователя с updated_at > since по возрастанию updated_at
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	collection := r.URL.Query().Get("collection")
	if err := h.validateCollection(collection); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	since := time.Time{}
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		nanos, err := strconv.ParseInt(sinceStr, 10, 64)
		if err != nil {
			h.sendError(w, "invalid since parameter", http.StatusBadRequest)
			return
		}
		since = time.Unix(0, nanos)
	}

	limit := defaultPullLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			h.sendError(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = min(parsed, maxPullLimit)
	}

	rows, err := h.storage.GetRowsSince(ctx, collection, userID, since, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get rows",
			slog.String("collection", collection),
			slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.DebugContext(ctx, "pull request served",
		slog.String("collection", collection),
		slog.String("user_id", userID),
		slog.Int("rows", len(rows)))

	resp := api.PullResponse{
		Rows:       rows,
		ServerTime: time.Now().UTC(),
		HasMore:    len(rows) == limit,
	}
	h.sendJSON(w, resp, http.StatusOK)
}

// Push обрабатывает POST /api/v1/sync/push
// Идемпотентный upsert одной строки с LWW-защитой от устаревших версий
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validateCollection(req.Collection); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Row.ID == "" {
		h.sendError(w, "row id is required", http.StatusBadRequest)
		return
	}
	if req.Row.OriginDeviceID == "" {
		h.sendError(w, "origin_device_id is required", http.StatusBadRequest)
		return
	}
	if req.Row.LogicalClock < 0 {
		h.sendError(w, "logical_clock must be non-negative", http.StatusBadRequest)
		return
	}

	// Владелец строки определяется токеном, а не телом запроса
	req.Row.UserID = userID

	// Чужую строку нельзя ни прочитать, ни перезаписать
	existing, err := h.storage.GetRow(ctx, req.Collection, req.Row.ID)
	if err != nil && !errors.Is(err, storage.ErrRowNotFound) {
		h.logger.ErrorContext(ctx, "failed to check existing row", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if existing != nil && existing.UserID != userID {
		h.sendError(w, "access denied", http.StatusForbidden)
		return
	}

	saved, applied, err := h.storage.UpsertRow(ctx, req.Collection, &req.Row)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to upsert row",
			slog.String("collection", req.Collection),
			slog.String("row_id", req.Row.ID),
			slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "row pushed",
		slog.String("collection", req.Collection),
		slog.String("row_id", req.Row.ID),
		slog.Bool("applied", applied))

	if applied {
		eventType := api.EventUpdate
		if existing == nil {
			eventType = api.EventInsert
		}
		h.dispatcher.Publish(feed.Event{
			UserID: userID,
			Change: api.ChangeEvent{
				Collection: req.Collection,
				EventType:  eventType,
				Row:        *saved,
			},
		})
	}

	resp := api.PushResponse{
		Applied:   applied,
		UpdatedAt: saved.UpdatedAt,
	}
	h.sendJSON(w, resp, http.StatusOK)
}

// Delete обрабатывает POST /api/v1/sync/delete
// Soft delete: строка остается как tombstone и расходится по устройствам
func (h *SyncHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validateCollection(req.Collection); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		h.sendError(w, "row id is required", http.StatusBadRequest)
		return
	}

	deletedAt := time.Now().UTC()
	deleted, err := h.storage.SoftDeleteRow(ctx, req.Collection, req.ID, userID, deletedAt)
	if err != nil {
		if errors.Is(err, storage.ErrRowNotFound) {
			h.sendError(w, "row not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to soft delete row",
			slog.String("collection", req.Collection),
			slog.String("row_id", req.ID),
			slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "row soft deleted",
		slog.String("collection", req.Collection),
		slog.String("row_id", req.ID))

	h.dispatcher.Publish(feed.Event{
		UserID: userID,
		Change: api.ChangeEvent{
			Collection: req.Collection,
			EventType:  api.EventDelete,
			Row:        *deleted,
		},
	})

	resp := api.DeleteResponse{DeletedAt: deletedAt}
	h.sendJSON(w, resp, http.StatusOK)
}

func (h *SyncHandler) validateCollection(name string) error {
	if name == "" {
		return fmt.Errorf("collection is required")
	}
	if _, ok := h.collections[name]; !ok {
		return fmt.Errorf("unknown collection: %s", name)
	}
	return nil
}

func (h *SyncHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func (h *SyncHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	h.sendJSON(w, resp, statusCode)
}

package sync

import (
	"context"
	"errors"

	"github.com/ivankh/docsync/internal/client/storage"
	"github.com/ivankh/docsync/internal/models"
	"github.com/ivankh/docsync/pkg/api"
)

// startRealtime открывает change feed по bidirectional коллекциям
// и запускает цикл применения событий
func (e *Engine) startRealtime(ctx context.Context) {
	var collections []string
	for _, cfg := range e.cfg.Collections {
		if cfg.Enabled && cfg.Direction == models.DirectionBidirectional {
			collections = append(collections, cfg.Name)
		}
	}
	if len(collections) == 0 {
		return
	}

	_, token, err := e.creds(ctx)
	if err != nil {
		e.logger.Warn("realtime subscription skipped: no credentials", "error", err)
		return
	}

	events, err := e.api.Subscribe(ctx, token, collections)
	if err != nil {
		// Без realtime движок живет на периодических pull
		e.logger.Warn("realtime subscription failed", "error", err)
		return
	}

	e.logger.Info("realtime subscription established", "collections", collections)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for event := range events {
			e.handleRealtimeChange(ctx, event)
		}
		e.logger.Info("realtime subscription closed")
	}()
}

// handleRealtimeChange применяет одно событие change feed.
// События от этого же устройства отбрасываются: собственные push
// возвращаются через тот же feed (self-echo).
func (e *Engine) handleRealtimeChange(ctx context.Context, event api.ChangeEvent) {
	if event.Row.OriginDeviceID == e.clock.DeviceID() {
		e.logger.Debug("self-echo suppressed",
			"collection", event.Collection, "record_id", event.Row.ID)
		return
	}

	e.clock.Observe(event.Row.LogicalClock)

	var err error
	switch event.EventType {
	case api.EventInsert:
		err = e.applyRealtimeInsert(ctx, event)
	case api.EventUpdate:
		_, _, err = e.applyRemote(ctx, event.Collection, event.Row)
		if errors.Is(err, errSkipPending) {
			err = nil
		}
	case api.EventDelete:
		err = e.applyRealtimeDelete(ctx, event)
	default:
		e.logger.Warn("unknown realtime event type", "event_type", event.EventType)
		return
	}

	if err != nil {
		e.logger.Warn("failed to apply realtime event",
			"collection", event.Collection,
			"event_type", event.EventType,
			"record_id", event.Row.ID,
			"error", err)
		return
	}

	e.persistClock(ctx)
	e.logger.Debug("realtime event applied",
		"collection", event.Collection,
		"event_type", event.EventType,
		"record_id", event.Row.ID)
}

// applyRealtimeInsert вставляет запись, только если ее еще нет локально
func (e *Engine) applyRealtimeInsert(ctx context.Context, event api.ChangeEvent) error {
	_, err := e.records.GetRecord(ctx, event.Collection, event.Row.ID)
	if err == nil {
		// Уже есть — INSERT игнорируется, реконсиляцию сделает UPDATE/pull
		return nil
	}
	if !errors.Is(err, storage.ErrRecordNotFound) {
		return err
	}

	rec := e.transformer.ToLocal(event.Collection, event.Row)
	return e.records.SaveRecord(ctx, event.Collection, rec)
}

// applyRealtimeDelete проставляет tombstone-поля локальной записи.
// Pending-запись не трогаем — судьбу решит разрешение ее push.
func (e *Engine) applyRealtimeDelete(ctx context.Context, event api.ChangeEvent) error {
	incoming := e.transformer.ToLocal(event.Collection, event.Row)

	err := e.records.PatchRecord(ctx, event.Collection, event.Row.ID, func(rec *models.Record) error {
		if rec.Local.SyncStatus == models.SyncStatusPending {
			return errSkipPending
		}
		rec.Meta.IsDeleted = true
		rec.Meta.DeletedAt = incoming.Meta.DeletedAt
		rec.Meta.UpdatedAt = incoming.Meta.UpdatedAt
		rec.Meta.LogicalClock = incoming.Meta.LogicalClock
		rec.Meta.OriginDeviceID = incoming.Meta.OriginDeviceID
		rec.Local = models.LocalSyncFields{SyncStatus: models.SyncStatusSynced}
		return nil
	})
	if errors.Is(err, errSkipPending) {
		return nil
	}
	if errors.Is(err, storage.ErrRecordNotFound) {
		// Tombstone неизвестной записи сохраняем, чтобы поздний pull
		// не восстановил ее как живую
		return e.records.SaveRecord(ctx, event.Collection, incoming)
	}
	return err
}

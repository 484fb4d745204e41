package sync

import (
	"context"
	"fmt"

	"github.com/ivankh/docsync/internal/models"
	"github.com/ivankh/docsync/pkg/api"
)

// PushResult итог push одной коллекции
type PushResult struct {
	Collection string
	Pushed     int // операций подтверждено сервером
	Failed     int // операций завершилось ошибкой (остаются в очереди)
}

// PushAll сливает следующий батч очереди каждой push-eligible коллекции.
// Порядок между коллекциями не гарантируется; внутри коллекции операции
// уходят в порядке постановки в очередь.
func (e *Engine) PushAll(ctx context.Context) ([]PushResult, error) {
	var (
		results  []PushResult
		firstErr error
		failed   int
		total    int
	)

	for _, group := range e.collectionsByPriority(models.CollectionSyncConfig.PushEligible) {
		for _, cfg := range group {
			total++
			res, err := e.PushCollection(ctx, cfg.Name)
			if err != nil {
				e.logger.Warn("push failed for collection",
					"collection", cfg.Name, "error", err)
				failed++
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			results = append(results, *res)
		}
	}

	if total > 0 && failed == total {
		return results, fmt.Errorf("push failed for all %d collections: %w", total, firstErr)
	}
	return results, nil
}

// PushCollection отправляет очередной батч очереди коллекции. Каждая
// операция индивидуально помечается in_progress перед сетевым вызовом;
// отказ одной операции не прерывает остальные в батче.
func (e *Engine) PushCollection(ctx context.Context, name string) (*PushResult, error) {
	cfg, ok := e.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}

	_, token, err := e.creds(ctx)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}

	batch, err := e.queue.GetNextBatch(ctx, name, cfg.EffectiveBatchSize())
	if err != nil {
		return nil, fmt.Errorf("failed to read queue batch: %w", err)
	}

	result := &PushResult{Collection: name}

	for _, op := range batch {
		if err := e.queue.MarkInProgress(ctx, op.ID); err != nil {
			e.logger.Warn("failed to mark operation in progress",
				"operation_id", op.ID, "error", err)
			continue
		}

		pushErr := e.dispatchOperation(ctx, token, op)
		if pushErr != nil {
			syncErr := models.ClassifySyncError(pushErr)
			result.Failed++

			if err := e.queue.MarkFailed(ctx, op.ID, syncErr); err != nil {
				e.logger.Warn("failed to mark operation failed",
					"operation_id", op.ID, "error", err)
			}
			// Ошибка остается на записи для отображения пользователю
			e.setRecordError(ctx, op, syncErr)

			e.logger.Warn("push operation failed",
				"collection", name,
				"operation", op.Operation,
				"record_id", op.Item.Meta.ID,
				"code", syncErr.Code,
				"error", syncErr.Message)
			continue
		}

		result.Pushed++
		if err := e.queue.MarkCompleted(ctx, op.ID); err != nil {
			e.logger.Warn("failed to mark operation completed",
				"operation_id", op.ID, "error", err)
		}
		e.setRecordSynced(ctx, op)
	}

	e.publishQueueCount(ctx)

	if len(batch) > 0 {
		e.logger.Info("push completed",
			"collection", name,
			"pushed", result.Pushed,
			"failed", result.Failed)
	}

	return result, nil
}

// dispatchOperation выполняет сетевой вызов одной операции.
// create/update — upsert по id; delete — soft-delete update, а не
// удаление строки: tombstone должен распространиться на другие устройства.
func (e *Engine) dispatchOperation(ctx context.Context, token string, op *models.PendingOperation) error {
	switch op.Operation {
	case models.OperationCreate, models.OperationUpdate:
		row := e.transformer.ToRemote(op.Collection, op.Item)
		_, err := e.api.Push(ctx, token, api.PushRequest{
			Collection: op.Collection,
			Row:        row,
		})
		return err
	case models.OperationDelete:
		_, err := e.api.SoftDelete(ctx, token, api.DeleteRequest{
			Collection: op.Collection,
			ID:         op.Item.Meta.ID,
		})
		return err
	default:
		return fmt.Errorf("unknown operation type %q", op.Operation)
	}
}

// setRecordSynced помечает локальную запись подтвержденной.
// Pending-защита снимается только здесь — после того как push разрешился.
func (e *Engine) setRecordSynced(ctx context.Context, op *models.PendingOperation) {
	now := e.now()
	err := e.records.PatchRecord(ctx, op.Collection, op.Item.Meta.ID, func(rec *models.Record) error {
		// Если пользователь успел внести новую правку (новый pending-элемент
		// в очереди с большим clock), запись остается pending
		if rec.Meta.LogicalClock > op.Item.Meta.LogicalClock {
			return nil
		}
		rec.Local.SyncStatus = models.SyncStatusSynced
		rec.Local.SyncError = ""
		rec.Local.LastSyncAttempt = &now
		return nil
	})
	if err != nil {
		e.logger.Warn("failed to mark record synced",
			"collection", op.Collection, "record_id", op.Item.Meta.ID, "error", err)
	}
}

// setRecordError сохраняет ошибку на записи для user-visible отображения
// ("failed to sync" с причиной)
func (e *Engine) setRecordError(ctx context.Context, op *models.PendingOperation, syncErr *models.SyncError) {
	now := e.now()
	err := e.records.PatchRecord(ctx, op.Collection, op.Item.Meta.ID, func(rec *models.Record) error {
		rec.Local.SyncStatus = models.SyncStatusError
		rec.Local.SyncError = syncErr.Error()
		rec.Local.LastSyncAttempt = &now
		return nil
	})
	if err != nil {
		e.logger.Warn("failed to mark record errored",
			"collection", op.Collection, "record_id", op.Item.Meta.ID, "error", err)
	}
}

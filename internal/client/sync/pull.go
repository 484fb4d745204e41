package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"

	"github.com/ivankh/docsync/internal/client/storage"
	"github.com/ivankh/docsync/internal/conflict"
	"github.com/ivankh/docsync/internal/models"
	"github.com/ivankh/docsync/pkg/api"
)

// PullResult итог pull одной коллекции
type PullResult struct {
	Collection string
	DeletedIDs []string // tombstones, пришедшие в этом батче
	Pulled     int      // строк получено с сервера
	Applied    int      // строк применено локально
	Skipped    int      // строк пропущено pending-защитой
	Conflicts  int      // разрешенных конфликтов
	HasMore    bool     // батч исчерпан, есть следующая страница
}

// errSkipPending — внутренний сигнал: локальная версия pending,
// входящее изменение не применяется
var errSkipPending = errors.New("local record pending")

// PullAll обрабатывает pull-eligible коллекции по группам приоритета:
// группы строго последовательно (high, medium, low), коллекции внутри
// группы — конкурентно. Отказ одной коллекции не прерывает соседей
// и не откатывает уже обработанные группы.
//
// Ошибка возвращается только если ни одна коллекция не прошла —
// один такой цикл и считается отказом для circuit breaker.
func (e *Engine) PullAll(ctx context.Context) ([]PullResult, error) {
	groups := e.collectionsByPriority(models.CollectionSyncConfig.PullEligible)

	var (
		mu       stdsync.Mutex
		results  []PullResult
		firstErr error
		failed   int
		total    int
	)

	for _, group := range groups {
		var wg stdsync.WaitGroup
		for _, cfg := range group {
			total++
			wg.Add(1)
			go func(cfg models.CollectionSyncConfig) {
				defer wg.Done()

				collResults, err := e.drainCollection(ctx, cfg)

				mu.Lock()
				defer mu.Unlock()
				results = append(results, collResults...)
				if err != nil {
					e.logger.Warn("pull failed for collection",
						"collection", cfg.Name, "error", err)
					failed++
					if firstErr == nil {
						firstErr = err
					}
				}
			}(cfg)
		}
		wg.Wait()
	}

	if total > 0 && failed == total {
		return results, fmt.Errorf("pull failed for all %d collections: %w", total, firstErr)
	}
	return results, nil
}

// drainCollection выбирает страницы коллекции, пока сервер сообщает hasMore
func (e *Engine) drainCollection(ctx context.Context, cfg models.CollectionSyncConfig) ([]PullResult, error) {
	var results []PullResult
	for {
		res, err := e.PullCollection(ctx, cfg.Name)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
		if !res.HasMore {
			return results, nil
		}
	}
}

// PullCollection выбирает один инкрементальный батч коллекции: строки
// с updated_at > checkpoint по возрастанию updated_at, применяет их через
// conflict-стратегию и продвигает чекпойнт до максимального updated_at.
func (e *Engine) PullCollection(ctx context.Context, name string) (*PullResult, error) {
	cfg, ok := e.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}

	_, token, err := e.creds(ctx)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}

	checkpoint, err := e.checkpoints.GetCheckpoint(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	batchSize := cfg.EffectiveBatchSize()
	resp, err := e.api.Pull(ctx, token, name, checkpoint, batchSize)
	if err != nil {
		return nil, err
	}

	result := &PullResult{
		Collection: name,
		Pulled:     len(resp.Rows),
		// hasMore: размер батча исчерпан — у сервера может быть еще страница
		HasMore: len(resp.Rows) == batchSize,
	}

	maxUpdated := checkpoint
	for _, row := range resp.Rows {
		// Каждое принятое событие двигает логические часы
		e.clock.Observe(row.LogicalClock)

		if row.UpdatedAt.After(maxUpdated) {
			maxUpdated = row.UpdatedAt
		}
		if row.IsDeleted {
			result.DeletedIDs = append(result.DeletedIDs, row.ID)
		}

		applied, conflicted, err := e.applyRemote(ctx, name, row)
		switch {
		case errors.Is(err, errSkipPending):
			result.Skipped++
			e.logger.Debug("pull skipped pending record",
				"collection", name, "record_id", row.ID)
		case err != nil:
			// Отказ одной строки не прерывает остальной батч
			e.logger.Warn("failed to apply pulled row",
				"collection", name, "record_id", row.ID, "error", err)
			result.Skipped++
		case applied:
			result.Applied++
		}
		if conflicted {
			result.Conflicts++
		}
	}

	if maxUpdated.After(checkpoint) {
		if err := e.checkpoints.SetCheckpoint(ctx, name, maxUpdated); err != nil {
			return nil, fmt.Errorf("failed to advance checkpoint: %w", err)
		}
		e.health.SetCheckpoint(name, maxUpdated)
	}

	e.logger.Info("pull completed",
		"collection", name,
		"pulled", result.Pulled,
		"applied", result.Applied,
		"skipped", result.Skipped,
		"conflicts", result.Conflicts,
		"deleted", len(result.DeletedIDs),
		"checkpoint", maxUpdated)

	return result, nil
}

// applyRemote применяет удаленную строку к локальному хранилищу.
// Tombstones тоже применяются (delete должен быть виден локально),
// запись в состоянии pending не трогается до разрешения ее push.
// Возвращает (applied, conflictResolved, err).
func (e *Engine) applyRemote(ctx context.Context, collection string, row api.Row) (bool, bool, error) {
	incoming := e.transformer.ToLocal(collection, row)

	applied := false
	conflicted := false

	// Чтение, разрешение конфликта и запись — в одной транзакции
	// хранилища, чтобы конкурентный TrackChange не вклинился между ними
	err := e.records.PatchRecord(ctx, collection, incoming.Meta.ID, func(rec *models.Record) error {
		if rec.Local.SyncStatus == models.SyncStatusPending {
			return errSkipPending
		}

		conflicted = true
		res := e.strategies.For(collection).Resolve(collection, rec, incoming)
		if res.Source == conflict.SourceLocal {
			return nil
		}

		rec.Meta = incoming.Meta
		rec.Fields = incoming.Fields
		rec.Local = models.LocalSyncFields{SyncStatus: models.SyncStatusSynced}
		applied = true
		return nil
	})

	if errors.Is(err, storage.ErrRecordNotFound) {
		// Записи еще нет локально — вставка (в том числе tombstone:
		// иначе поздний pull мог бы "воскресить" удаленную запись)
		if err := e.records.SaveRecord(ctx, collection, incoming); err != nil {
			return false, false, err
		}
		return true, false, nil
	}
	if err != nil {
		return false, conflicted, err
	}

	return applied, conflicted, nil
}

// Package sync реализует оркестратор offline-first синхронизации:
// pull-цикл, push-цикл, realtime-подписку и circuit breaker поверх
// локального bbolt-хранилища и HTTP API сервера.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	httpapi "github.com/ivankh/docsync/internal/client/api"
	"github.com/ivankh/docsync/internal/client/storage"
	"github.com/ivankh/docsync/internal/clock"
	"github.com/ivankh/docsync/internal/conflict"
	"github.com/ivankh/docsync/internal/health"
	"github.com/ivankh/docsync/internal/models"
	"github.com/ivankh/docsync/internal/transform"
)

// DefaultSyncInterval период фонового sync-цикла
const DefaultSyncInterval = 30 * time.Second

// CredentialsFunc поставляет текущие userID и access token.
// Вызывается в начале каждой сетевой операции, чтобы движок
// подхватывал обновленный токен без рестарта.
type CredentialsFunc func(ctx context.Context) (userID, accessToken string, err error)

// Config конфигурация движка
type Config struct {
	Credentials  CredentialsFunc
	Collections  []models.CollectionSyncConfig
	SyncInterval time.Duration
}

// Deps собирает коллабораторов движка
type Deps struct {
	API         httpapi.ClientAPI
	Records     storage.RecordStorage
	Queue       storage.QueueStorage
	Checkpoints storage.CheckpointStorage
	Device      storage.DeviceStorage
	Clock       *clock.LamportClock
	Strategies  *conflict.Registry
	Transformer *transform.Transformer
	Health      *health.Manager
	Logger      *slog.Logger
}

// Engine — движок синхронизации. Один экземпляр на процесс, создается
// явно и передается потребителям (не глобальный синглтон).
type Engine struct {
	api         httpapi.ClientAPI
	records     storage.RecordStorage
	queue       storage.QueueStorage
	checkpoints storage.CheckpointStorage
	device      storage.DeviceStorage
	clock       *clock.LamportClock
	strategies  *conflict.Registry
	transformer *transform.Transformer
	health      *health.Manager
	logger      *slog.Logger
	creds       CredentialsFunc
	byName      map[string]models.CollectionSyncConfig
	now         func() time.Time
	cancel      context.CancelFunc
	cfg         Config

	wg      stdsync.WaitGroup
	mu      stdsync.Mutex
	running bool
}

// NewEngine создает движок. Коллекции с пустым именем или дубликаты —
// ошибка конфигурации.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credentials func is required")
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}

	byName := make(map[string]models.CollectionSyncConfig, len(cfg.Collections))
	for _, c := range cfg.Collections {
		if c.Name == "" {
			return nil, fmt.Errorf("collection with empty name")
		}
		if _, ok := byName[c.Name]; ok {
			return nil, fmt.Errorf("duplicate collection %q", c.Name)
		}
		byName[c.Name] = c
	}

	if err := deps.Transformer.Validate(); err != nil {
		return nil, fmt.Errorf("invalid field mappings: %w", err)
	}

	return &Engine{
		cfg:         cfg,
		creds:       cfg.Credentials,
		api:         deps.API,
		records:     deps.Records,
		queue:       deps.Queue,
		checkpoints: deps.Checkpoints,
		device:      deps.Device,
		clock:       deps.Clock,
		strategies:  deps.Strategies,
		transformer: deps.Transformer,
		health:      deps.Health,
		logger:      deps.Logger,
		byName:      byName,
		now:         time.Now,
	}, nil
}

// Health возвращает менеджер состояния для CLI/UI
func (e *Engine) Health() *health.Manager {
	return e.health
}

// Start запускает движок: realtime-подписку на bidirectional коллекции,
// опциональный первый pullAll и периодический sync-цикл.
// Идемпотентен: повторный вызов на работающем движке — no-op.
func (e *Engine) Start(ctx context.Context, pullOnStart bool) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true

	engCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	e.logger.Info("sync engine starting",
		"collections", len(e.byName),
		"interval", e.cfg.SyncInterval,
		"pull_on_start", pullOnStart)

	e.startRealtime(engCtx)

	if pullOnStart {
		if _, err := e.PullAll(engCtx); err != nil {
			// Стартовый pull не фатален: оффлайн-старт — нормальный режим
			e.logger.Warn("initial pull failed", "error", err)
		}
	}

	e.wg.Add(1)
	go e.runLoop(engCtx)

	return nil
}

// Stop останавливает таймер и срывает realtime-подписки. Идемпотентен.
// Выполняющийся sync-цикл завершается, а не прерывается — иначе очередь
// или чекпойнт остались бы в полузаписанном состоянии.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	e.logger.Info("sync engine stopped")
}

// runLoop крутит периодический sync до отмены контекста
func (e *Engine) runLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SyncInterval)
	defer ticker.Stop()

	// sync-цикл получает несрываемый контекст: Stop ждет завершения
	// цикла, а не обрывает его на полпути
	syncCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Sync(syncCtx); err != nil {
				e.logger.Debug("scheduled sync failed", "error", err)
			}
		}
	}
}

// Sync выполняет один полный цикл: pull, затем push. Порядок принципиален —
// push не должен обгонять pull, который может принести более новую версию
// той же записи.
//
// Две защиты вызывают немедленный no-op: открытый circuit breaker
// и offline-состояние health manager.
func (e *Engine) Sync(ctx context.Context) error {
	now := e.now()

	if !e.health.Online() {
		e.logger.Debug("sync skipped: offline")
		return nil
	}

	if e.health.BreakerOpen(now) {
		e.logger.Debug("sync skipped: circuit breaker open")
		return nil
	}

	// Ленивое закрытие: первый цикл после истечения окна сброса —
	// настоящая проба, а не просто reset
	if e.health.BreakerExpired(now) {
		e.health.CloseBreaker()
	}

	if err := e.syncCycle(ctx); err != nil {
		syncErr := models.ClassifySyncError(err)
		e.health.RecordFailure(syncErr)
		return syncErr
	}

	e.health.RecordSuccess()
	e.publishQueueCount(ctx)
	e.persistClock(ctx)
	e.logger.Info("sync completed")
	return nil
}

func (e *Engine) syncCycle(ctx context.Context) error {
	if _, err := e.PullAll(ctx); err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if _, err := e.PushAll(ctx); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

// TrackChange — единственная точка входа локальных мутаций. Штампует
// clock/происхождение, ставит операцию в очередь и помечает локальную
// запись pending. Сети не касается: вызов дешев и неблокирующ, UI-поток
// никогда не ждет сетевой задержки ради локальной правки.
func (e *Engine) TrackChange(ctx context.Context, collection string, op models.OperationType, item *models.Record) error {
	cfg, ok := e.byName[collection]
	if !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}
	if !cfg.PushEligible() {
		return fmt.Errorf("collection %q is not push-eligible", collection)
	}

	strategy := e.strategies.For(collection)
	strategy.PrepareForPush(item)

	item.Local.SyncStatus = models.SyncStatusPending
	item.Local.SyncError = ""

	if op == models.OperationDelete {
		now := e.now()
		item.Meta.IsDeleted = true
		item.Meta.DeletedAt = &now
	}

	// Локальное хранилище обновляется до постановки в очередь: запись
	// немедленно под защитой pending-флага от входящих pull/realtime
	if err := e.saveLocal(ctx, collection, item); err != nil {
		return fmt.Errorf("failed to save local record: %w", err)
	}

	pending := &models.PendingOperation{
		ID:         uuid.New().String(),
		Collection: collection,
		Operation:  op,
		Item:       item.Clone(),
	}
	if err := e.queue.Enqueue(ctx, pending); err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}

	e.persistClock(ctx)
	e.publishQueueCount(ctx)

	e.logger.Debug("change tracked",
		"collection", collection,
		"operation", op,
		"record_id", item.Meta.ID,
		"logical_clock", item.Meta.LogicalClock)

	return nil
}

// saveLocal вставляет запись или замещает существующую версию целиком
func (e *Engine) saveLocal(ctx context.Context, collection string, item *models.Record) error {
	err := e.records.PatchRecord(ctx, collection, item.Meta.ID, func(rec *models.Record) error {
		rec.Meta = item.Meta
		rec.Local = item.Local
		rec.Fields = item.Fields
		return nil
	})
	if errors.Is(err, storage.ErrRecordNotFound) {
		return e.records.SaveRecord(ctx, collection, item)
	}
	return err
}

// persistClock сохраняет счетчик логических часов, чтобы рестарт
// не откатил его назад
func (e *Engine) persistClock(ctx context.Context) {
	if err := e.device.SaveClock(ctx, e.clock.Current()); err != nil {
		e.logger.Warn("failed to persist logical clock", "error", err)
	}
}

// publishQueueCount обновляет счетчик "N changes waiting to sync"
func (e *Engine) publishQueueCount(ctx context.Context) {
	count, err := e.queue.QueueCount(ctx)
	if err != nil {
		e.logger.Warn("failed to count queue", "error", err)
		return
	}
	e.health.SetPendingCount(count)
}

// collectionsByPriority возвращает eligible-коллекции, сгруппированные
// по приоритету в порядке high, medium, low
func (e *Engine) collectionsByPriority(eligible func(models.CollectionSyncConfig) bool) [][]models.CollectionSyncConfig {
	groups := make(map[models.SyncPriority][]models.CollectionSyncConfig)
	for _, c := range e.cfg.Collections {
		if eligible(c) {
			groups[c.Priority] = append(groups[c.Priority], c)
		}
	}

	ordered := make([][]models.CollectionSyncConfig, 0, 3)
	for _, p := range []models.SyncPriority{models.PriorityHigh, models.PriorityMedium, models.PriorityLow} {
		if len(groups[p]) > 0 {
			ordered = append(ordered, groups[p])
		}
	}
	return ordered
}

// Package health хранит наблюдаемое состояние синхронизации процесса:
// online/offline, circuit breaker, чекпойнты коллекций, размер очереди,
// последняя ошибка.
package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ivankh/docsync/internal/models"
)

// BreakerConfig конфигурация circuit breaker
type BreakerConfig struct {
	// IgnoredErrors — коды, не засчитываемые в счетчик отказов
	// (ожидаемые/восстановимые состояния, не говорящие о здоровье сервиса)
	IgnoredErrors []models.ErrorCode

	// FailureThreshold — число последовательных отказов до открытия
	FailureThreshold int

	// ResetTimeout — сколько breaker остается открытым
	ResetTimeout time.Duration
}

// DefaultBreakerConfig параметры по умолчанию
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     60 * time.Second,
		IgnoredErrors:    []models.ErrorCode{models.ErrCodeValidation},
	}
}

// Status снимок состояния для UI/CLI
type Status struct {
	LastSyncAt      time.Time
	BreakerResetAt  time.Time
	LastError       *models.SyncError
	Checkpoints     map[string]time.Time
	PendingCount    int
	ConsecutiveFail int
	Online          bool
	BreakerOpen     bool
}

// Manager — потокобезопасное состояние здоровья синхронизации.
// Движок читает его в начале каждого Sync и пишет результаты циклов.
type Manager struct {
	checkpoints  map[string]time.Time
	lastError    *models.SyncError
	logger       *slog.Logger
	now          func() time.Time
	resetAt      time.Time
	lastSyncAt   time.Time
	cfg          BreakerConfig
	pendingCount int
	failures     int
	mu           sync.Mutex
	online       bool
	breakerOpen  bool
}

// NewManager создает менеджер; процесс стартует в состоянии online
func NewManager(cfg BreakerConfig, logger *slog.Logger) *Manager {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultBreakerConfig().ResetTimeout
	}
	return &Manager{
		cfg:         cfg,
		logger:      logger,
		online:      true,
		checkpoints: make(map[string]time.Time),
		now:         time.Now,
	}
}

// SetOnline переключает online/offline состояние
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online != online {
		m.logger.Info("connectivity changed", "online", online)
	}
	m.online = online
}

// Online возвращает текущее online-состояние
func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// BreakerOpen возвращает true, если breaker открыт и окно сброса
// еще не истекло. Открытый breaker с истекшим окном НЕ закрывается
// здесь — закрытие выполняет движок через CloseBreaker, чтобы первая
// попытка после истечения считалась настоящей пробой.
func (m *Manager) BreakerOpen(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerOpen && now.Before(m.resetAt)
}

// BreakerExpired возвращает true, если breaker открыт, но окно сброса прошло
func (m *Manager) BreakerExpired(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerOpen && !now.Before(m.resetAt)
}

// CloseBreaker закрывает breaker и обнуляет счетчик отказов
func (m *Manager) CloseBreaker() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.breakerOpen {
		m.logger.Info("circuit breaker closed")
	}
	m.breakerOpen = false
	m.failures = 0
}

// RecordFailure учитывает отказ цикла синхронизации. Ошибки с кодом из
// IgnoredErrors запоминаются как lastError, но не двигают счетчик.
// Возвращает true, если этот отказ открыл breaker.
func (m *Manager) RecordFailure(err *models.SyncError) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastError = err

	for _, code := range m.cfg.IgnoredErrors {
		if err.Code == code {
			m.logger.Warn("sync failed with ignored error code",
				"code", err.Code, "error", err.Message)
			return false
		}
	}

	m.failures++
	m.logger.Warn("sync cycle failed",
		"code", err.Code,
		"error", err.Message,
		"consecutive_failures", m.failures)

	if !m.breakerOpen && m.failures >= m.cfg.FailureThreshold {
		m.breakerOpen = true
		m.resetAt = m.now().Add(m.cfg.ResetTimeout)
		m.logger.Error("circuit breaker opened",
			"failures", m.failures,
			"reset_at", m.resetAt)
		return true
	}
	return false
}

// RecordSuccess учитывает успешный цикл: сбрасывает счетчик и ошибку
func (m *Manager) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures = 0
	m.lastError = nil
	m.lastSyncAt = m.now()
}

// SetCheckpoint публикует наблюдаемый чекпойнт коллекции
func (m *Manager) SetCheckpoint(collection string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[collection] = at
}

// SetPendingCount публикует число несинхронизированных изменений
// ("N changes waiting to sync" для UI)
func (m *Manager) SetPendingCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingCount = n
}

// Snapshot возвращает копию текущего состояния
func (m *Manager) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	checkpoints := make(map[string]time.Time, len(m.checkpoints))
	for k, v := range m.checkpoints {
		checkpoints[k] = v
	}

	return Status{
		Online:          m.online,
		BreakerOpen:     m.breakerOpen,
		BreakerResetAt:  m.resetAt,
		LastSyncAt:      m.lastSyncAt,
		LastError:       m.lastError,
		Checkpoints:     checkpoints,
		PendingCount:    m.pendingCount,
		ConsecutiveFail: m.failures,
	}
}

package models

import "time"

// SyncStatus описывает локальное состояние синхронизации записи
type SyncStatus string

const (
	// SyncStatusSynced запись подтверждена сервером
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusPending локальное изменение ещё не отправлено (или не подтверждено)
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusError последняя попытка отправки завершилась ошибкой
	SyncStatusError SyncStatus = "error"
)

// SyncMetadata — envelope, который несет каждая синхронизируемая запись.
// Все поля реплицируются на сервер.
type SyncMetadata struct {
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"` // server-authoritative, pull cursor
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	OriginDeviceID string     `json:"originDeviceId"` // устройство последней записи
	LogicalClock   int64      `json:"logicalClock"`   // Lamport timestamp
	IsDeleted      bool       `json:"isDeleted"`      // tombstone
}

// LocalSyncFields — локальные поля записи, никогда не отправляются на сервер
type LocalSyncFields struct {
	LastSyncAttempt *time.Time `json:"_lastSyncAttempt,omitempty"`
	SyncStatus      SyncStatus `json:"_syncStatus"`
	SyncError       string     `json:"_syncError,omitempty"`
}

// Record представляет документ локального хранилища: envelope синхронизации,
// локальные sync-поля и payload коллекции в канонических локальных именах.
type Record struct {
	Fields map[string]any  `json:"fields"`
	Meta   SyncMetadata    `json:"meta"`
	Local  LocalSyncFields `json:"local"`
}

// IsNewerThan сравнивает две версии записи по правилам LWW:
// 1. Сначала сравнивается LogicalClock (больший выигрывает)
// 2. При равных clock сравнивается OriginDeviceID (лексикографически)
// Возвращает true, если текущая версия новее, чем other.
func (r *Record) IsNewerThan(other *Record) bool {
	if r.Meta.LogicalClock != other.Meta.LogicalClock {
		return r.Meta.LogicalClock > other.Meta.LogicalClock
	}
	return r.Meta.OriginDeviceID > other.Meta.OriginDeviceID
}

// Clone создает глубокую копию записи (payload копируется поверхностно по ключам)
func (r *Record) Clone() *Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}

	clone := &Record{
		Meta:   r.Meta,
		Local:  r.Local,
		Fields: fields,
	}
	if r.Meta.DeletedAt != nil {
		t := *r.Meta.DeletedAt
		clone.Meta.DeletedAt = &t
	}
	if r.Local.LastSyncAttempt != nil {
		t := *r.Local.LastSyncAttempt
		clone.Local.LastSyncAttempt = &t
	}
	return clone
}

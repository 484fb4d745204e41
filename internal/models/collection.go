package models

// SyncDirection определяет, в какую сторону синхронизируется коллекция
type SyncDirection string

const (
	DirectionPullOnly      SyncDirection = "pull-only"
	DirectionPushOnly      SyncDirection = "push-only"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// SyncPriority управляет порядком pull между коллекциями
type SyncPriority string

const (
	PriorityHigh   SyncPriority = "high"
	PriorityMedium SyncPriority = "medium"
	PriorityLow    SyncPriority = "low"
)

// DefaultBatchSize размер батча по умолчанию для pull и push
const DefaultBatchSize = 100

// CollectionSyncConfig описывает одну синхронизируемую коллекцию
type CollectionSyncConfig struct {
	Name      string
	Direction SyncDirection
	Priority  SyncPriority
	BatchSize int
	Enabled   bool
}

// PullEligible возвращает true, если коллекция участвует в pull
func (c CollectionSyncConfig) PullEligible() bool {
	return c.Enabled && (c.Direction == DirectionPullOnly || c.Direction == DirectionBidirectional)
}

// PushEligible возвращает true, если коллекция участвует в push
func (c CollectionSyncConfig) PushEligible() bool {
	return c.Enabled && (c.Direction == DirectionPushOnly || c.Direction == DirectionBidirectional)
}

// EffectiveBatchSize возвращает BatchSize или значение по умолчанию
func (c CollectionSyncConfig) EffectiveBatchSize() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

package models

import "time"

// OperationType тип локальной мутации, поставленной в очередь на push
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// OperationState состояние жизненного цикла элемента очереди
type OperationState string

const (
	OperationPending    OperationState = "pending"
	OperationInProgress OperationState = "in_progress"
	OperationCompleted  OperationState = "completed"
	OperationFailed     OperationState = "failed"
)

// PendingOperation представляет один элемент durable push-очереди.
// Item содержит полный payload записи на момент постановки в очередь;
// повторные Enqueue той же записи заменяют payload (coalescing).
type PendingOperation struct {
	EnqueuedAt  time.Time      `json:"enqueued_at"`
	LastAttempt *time.Time     `json:"last_attempt,omitempty"`
	Item        *Record        `json:"item"`
	ID          string         `json:"id"` // UUID элемента очереди
	Collection  string         `json:"collection"`
	LastError   string         `json:"last_error,omitempty"`
	Operation   OperationType  `json:"operation"`
	State       OperationState `json:"state"`
	Attempts    int            `json:"attempts"`
}

package api

import "time"

// Row представляет одну запись коллекции в remote-форме (имена колонок сервера).
// Envelope-колонки типизированы, payload передается как карта remote-имен.
type Row struct {
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
	Fields         map[string]any `json:"fields"`
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	OriginDeviceID string         `json:"origin_device_id"`
	LogicalClock   int64          `json:"logical_clock"`
	IsDeleted      bool           `json:"is_deleted"`
}

// PullResponse представляет ответ сервера на инкрементальный pull
type PullResponse struct {
	ServerTime time.Time `json:"server_time"` // текущее время сервера (информационно)
	Rows       []Row     `json:"rows"`
	HasMore    bool      `json:"has_more"` // true, если размер батча был исчерпан
}

// PushRequest представляет запрос на upsert одной записи
type PushRequest struct {
	Collection string `json:"collection"`
	Row        Row    `json:"row"`
}

// PushResponse представляет ответ сервера на upsert
type PushResponse struct {
	UpdatedAt time.Time `json:"updated_at"` // server-authoritative updated_at принятой строки
	Applied   bool      `json:"applied"`    // false, если серверная версия оказалась новее
}

// DeleteRequest представляет запрос на soft delete записи
type DeleteRequest struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// DeleteResponse представляет ответ сервера на soft delete
type DeleteResponse struct {
	DeletedAt time.Time `json:"deleted_at"`
}

// Change feed event types
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// ChangeEvent представляет одно событие change feed (SSE payload)
type ChangeEvent struct {
	Collection string `json:"collection"`
	EventType  string `json:"event_type"` // INSERT | UPDATE | DELETE
	Row        Row    `json:"row"`
}

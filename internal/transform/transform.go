// Package transform реализует границу сериализации между канонической
// локальной формой записи и remote-формой строки: переименование полей
// payload по декларативной таблице и заполнение дефолтов для legacy-строк.
package transform

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ivankh/docsync/internal/models"
	"github.com/ivankh/docsync/pkg/api"
)

// Mapping описывает трансформацию payload одной коллекции.
// Если RemoteNames пуст, применяется конвенция по умолчанию
// (camelCase -> snake_case). Заполненный RemoteNames полностью
// переопределяет конвенцию для своей коллекции.
type Mapping struct {
	// RemoteNames: локальное имя поля -> имя колонки на сервере
	RemoteNames map[string]string

	// Defaults: значения для локальных полей, отсутствующих в строке
	// сервера (legacy-строки, созданные до добавления колонки)
	Defaults map[string]any
}

// Transformer хранит mapping для каждой коллекции. Чистый и stateless:
// ни одна операция не мутирует вход.
type Transformer struct {
	mappings map[string]Mapping
}

// New создает Transformer по таблице mappings (ключ — имя коллекции)
func New(mappings map[string]Mapping) *Transformer {
	if mappings == nil {
		mappings = make(map[string]Mapping)
	}
	return &Transformer{mappings: mappings}
}

// ToRemote преобразует локальную запись в remote-строку.
// Локальные sync-поля (_syncStatus и пр.) не проходят границу.
func (t *Transformer) ToRemote(collection string, rec *models.Record) api.Row {
	m := t.mappings[collection]

	fields := make(map[string]any, len(rec.Fields))
	for local, v := range rec.Fields {
		fields[m.remoteName(local)] = v
	}

	return api.Row{
		ID:             rec.Meta.ID,
		UserID:         rec.Meta.UserID,
		CreatedAt:      rec.Meta.CreatedAt,
		UpdatedAt:      rec.Meta.UpdatedAt,
		DeletedAt:      rec.Meta.DeletedAt,
		IsDeleted:      rec.Meta.IsDeleted,
		LogicalClock:   rec.Meta.LogicalClock,
		OriginDeviceID: rec.Meta.OriginDeviceID,
		Fields:         fields,
	}
}

// ToLocal преобразует remote-строку в локальную запись со статусом synced.
// Отсутствующие в строке поля, для которых объявлен дефолт, заполняются.
func (t *Transformer) ToLocal(collection string, row api.Row) *models.Record {
	m := t.mappings[collection]

	fields := make(map[string]any, len(row.Fields)+len(m.Defaults))
	for remote, v := range row.Fields {
		fields[m.localName(remote)] = v
	}
	for local, def := range m.Defaults {
		if _, ok := fields[local]; !ok {
			fields[local] = def
		}
	}

	return &models.Record{
		Meta: models.SyncMetadata{
			ID:             row.ID,
			UserID:         row.UserID,
			CreatedAt:      row.CreatedAt,
			UpdatedAt:      row.UpdatedAt,
			DeletedAt:      row.DeletedAt,
			IsDeleted:      row.IsDeleted,
			LogicalClock:   row.LogicalClock,
			OriginDeviceID: row.OriginDeviceID,
		},
		Local: models.LocalSyncFields{
			SyncStatus: models.SyncStatusSynced,
		},
		Fields: fields,
	}
}

func (m Mapping) remoteName(local string) string {
	if len(m.RemoteNames) > 0 {
		if remote, ok := m.RemoteNames[local]; ok {
			return remote
		}
		// Поле вне override-таблицы — ошибка конфигурации коллекции,
		// но терять данные нельзя: падаем обратно на конвенцию
	}
	return CamelToSnake(local)
}

func (m Mapping) localName(remote string) string {
	if len(m.RemoteNames) > 0 {
		for local, r := range m.RemoteNames {
			if r == remote {
				return local
			}
		}
	}
	return SnakeToCamel(remote)
}

// CamelToSnake преобразует camelCase в snake_case: dueDate -> due_date
func CamelToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SnakeToCamel преобразует snake_case в camelCase: due_date -> dueDate
func SnakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.Grow(len(s))
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// Validate проверяет override-таблицы на дубликаты remote-имен
func (t *Transformer) Validate() error {
	for collection, m := range t.mappings {
		seen := make(map[string]string, len(m.RemoteNames))
		for local, remote := range m.RemoteNames {
			if prev, ok := seen[remote]; ok {
				return fmt.Errorf("collection %q: remote name %q mapped from both %q and %q",
					collection, remote, prev, local)
			}
			seen[remote] = local
		}
	}
	return nil
}

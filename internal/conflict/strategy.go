// Package conflict реализует стратегии разрешения конфликтов между локальной
// и удаленной версией одной записи. Разрешение работает на уровне целой
// записи (не field-level merge), стратегия подключается per-collection.
package conflict

import (
	"log/slog"

	"github.com/ivankh/docsync/internal/clock"
	"github.com/ivankh/docsync/internal/models"
)

// Source указывает, чья версия победила в разрешении конфликта
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Resolution результат разрешения конфликта
type Resolution struct {
	Winner *models.Record
	Loser  *models.Record
	Source Source
}

//go:generate moq -out strategy_mock.go . Strategy

// Strategy определяет интерфейс стратегии разрешения конфликтов коллекции
type Strategy interface {
	// Resolve выбирает победителя между локальной и удаленной версией записи
	Resolve(collection string, local, remote *models.Record) Resolution

	// PrepareForPush штампует запись инкрементированным logical clock
	// и originDeviceID этого устройства перед постановкой в очередь
	PrepareForPush(item *models.Record)
}

// LWW реализует last-write-wins: выигрывает больший LogicalClock,
// при равенстве — удаленная версия (сервер владеет каноничным updated_at).
type LWW struct {
	clock  *clock.LamportClock
	logger *slog.Logger
}

// NewLWW создает LWW стратегию поверх часов устройства
func NewLWW(lc *clock.LamportClock, logger *slog.Logger) *LWW {
	return &LWW{clock: lc, logger: logger}
}

// Resolve применяет правило LWW. Каждое разрешение логируется —
// единственный способ отлаживать разъехавшееся состояние устройств.
func (s *LWW) Resolve(collection string, local, remote *models.Record) Resolution {
	res := Resolution{Winner: remote, Loser: local, Source: SourceRemote}
	if local.Meta.LogicalClock > remote.Meta.LogicalClock {
		res = Resolution{Winner: local, Loser: remote, Source: SourceLocal}
	}

	s.logger.Debug("conflict resolved",
		"collection", collection,
		"record_id", remote.Meta.ID,
		"local_clock", local.Meta.LogicalClock,
		"remote_clock", remote.Meta.LogicalClock,
		"winner", res.Source)

	return res
}

// PrepareForPush штампует clock и происхождение. Именно это позволяет
// другому устройству позже ответить на вопрос "это изменение новее моего?"
// без доверия к wall-clock.
func (s *LWW) PrepareForPush(item *models.Record) {
	item.Meta.LogicalClock = s.clock.Tick()
	item.Meta.OriginDeviceID = s.clock.DeviceID()
}

// Package clock реализует логические часы Лампорта для упорядочивания
// конкурентных изменений между устройствами без опоры на физическое время.
package clock

import "sync"

// LamportClock — монотонно возрастающий счетчик, привязанный к deviceID.
// Потокобезопасен: Tick вызывается из TrackChange, Observe — из pull
// и realtime-обработчиков.
type LamportClock struct {
	deviceID string
	counter  int64
	mu       sync.Mutex
}

// New создает часы для заданного устройства, начиная с восстановленного
// значения счетчика (0 для нового устройства).
func New(deviceID string, counter int64) *LamportClock {
	return &LamportClock{
		deviceID: deviceID,
		counter:  counter,
	}
}

// Tick увеличивает счетчик и возвращает новое значение.
// Используется при каждой локальной мутации.
func (lc *LamportClock) Tick() int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.counter++
	return lc.counter
}

// Observe обновляет счетчик по полученному удаленному значению:
// counter = max(counter, remote). Вызывается на каждое принятое
// pull/realtime событие.
func (lc *LamportClock) Observe(remote int64) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if remote > lc.counter {
		lc.counter = remote
	}
}

// Current возвращает текущее значение счетчика без изменения.
func (lc *LamportClock) Current() int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	return lc.counter
}

// DeviceID возвращает идентификатор устройства, владеющего часами.
func (lc *LamportClock) DeviceID() string {
	return lc.deviceID
}

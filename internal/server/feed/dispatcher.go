// Package feed реализует in-process хаб рассылки change-событий
// подписчикам SSE-ленты. Каждый пользователь видит только свои события.
package feed

import (
	"context"
	"sync"

	"github.com/ivankh/docsync/pkg/api"
)

const defaultBufferSize = 16

// Event — одно событие ленты, адресованное конкретному пользователю
type Event struct {
	UserID string
	Change api.ChangeEvent
}

// Dispatcher разводит события по подписчикам пользователя.
// Publish не блокируется: медленный подписчик теряет событие,
// клиент восстановит его следующим инкрементальным pull.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan api.ChangeEvent
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe регистрирует подписчика. Канал намеренно не закрывается:
// Publish шлет в него без блокировки, и close создал бы гонку.
// Потребитель завершается по ctx.Done().
func (d *Dispatcher) Subscribe(ctx context.Context, userID string) (<-chan api.ChangeEvent, func()) {
	if userID == "" {
		ch := make(chan api.ChangeEvent)
		close(ch)
		return ch, func() {}
	}

	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan api.ChangeEvent, d.bufferSize),
	}
	d.register(userID, sub)

	cleanup := func() {
		d.unregister(userID, sub.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Publish рассылает событие всем подписчикам пользователя
func (d *Dispatcher) Publish(event Event) {
	if event.UserID == "" || event.Change.EventType == "" {
		return
	}

	d.mu.RLock()
	subs := d.subscribers[event.UserID]
	if len(subs) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(subs))
	for _, sub := range subs {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()

	for _, sub := range copies {
		select {
		case sub.stream <- event.Change:
		default:
			// переполненный буфер — подписчик догонит через pull
		}
	}
}

// SubscriberCount возвращает число активных подписчиков пользователя
func (d *Dispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(userID string, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*subscriber)
	}
	d.subscribers[userID][sub.id] = sub
}

func (d *Dispatcher) unregister(userID string, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subscribers[userID]
	if subs != nil {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(d.subscribers, userID)
		}
	}
}

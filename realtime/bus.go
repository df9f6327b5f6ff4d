package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
	// EventRefresh доставляется вместо потерянных событий при переполнении
	// буфера подписки: подписчик обязан перечитать состояние целиком.
	EventRefresh EventType = "refresh"
)

const TableRegistrations = "registrations"

// Event несёт только тег типа и идентификаторы строки. Подписчики не должны
// полагаться на форму payload — после любого события они перечитывают
// интересующие их данные запросом.
type Event struct {
	Type           EventType `json:"type"`
	Table          string    `json:"table"`
	RegistrationID uuid.UUID `json:"registration_id,omitempty"`
	TournamentID   uuid.UUID `json:"tournament_id,omitempty"`
}

type FilterFunc func(Event) bool

type CallbackFunc func(Event)

type Subscription struct {
	id     uint64
	table  string
	filter FilterFunc
	ch     chan Event
	missed atomic.Bool
	// kick будит pump после установки missed: без него флаг, взведённый
	// сразу после финальной проверки разгрузки, ждал бы следующей публикации.
	kick chan struct{}
	done chan struct{}
	once sync.Once
}

// Bus — внутрипроцессный канал оповещений об изменениях таблиц. Доставка
// at-least-once: переполнение буфера подписки схлопывается в одно refresh-
// событие, порядок между таблицами не гарантируется.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]*Subscription
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[uint64]*Subscription),
	}
}

// Subscribe регистрирует интерес к таблице. Каждая подписка получает свою
// горутину доставки, так что медленный callback не блокирует ни публикацию,
// ни соседние подписки. Владелец обязан вызвать Unsubscribe при teardown.
func (b *Bus) Subscribe(table string, filter FilterFunc, cb CallbackFunc) *Subscription {
	sub := &Subscription{
		table:  table,
		filter: filter,
		ch:     make(chan Event, 16),
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	if _, ok := b.subs[table]; !ok {
		b.subs[table] = make(map[uint64]*Subscription)
	}
	b.subs[table][sub.id] = sub
	b.mu.Unlock()

	go sub.pump(cb)
	return sub
}

func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	if tableSubs, ok := b.subs[sub.table]; ok {
		delete(tableSubs, sub.id)
		if len(tableSubs) == 0 {
			delete(b.subs, sub.table)
		}
	}
	b.mu.Unlock()

	sub.once.Do(func() { close(sub.done) })
}

// Publish рассылает событие всем подпискам таблицы, прошедшим фильтр.
// Никогда не блокируется: при заполненном буфере подписка помечается как
// пропустившая события и получит EventRefresh после разгрузки.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[e.Table] {
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			sub.missed.Store(true)
			select {
			case sub.kick <- struct{}{}:
			default:
			}
		}
	}
}

func (s *Subscription) pump(cb CallbackFunc) {
	for {
		select {
		case e := <-s.ch:
			cb(e)
			s.flushMissed(cb)
		case <-s.kick:
			s.flushMissed(cb)
		case <-s.done:
			return
		}
	}
}

// flushMissed доставляет refresh, когда буфер разгружен и были пропуски.
// При непустом буфере ничего не делает: проверка повторится после следующей
// доставки, а взведённый kick гарантирует пробуждение и без новых публикаций.
func (s *Subscription) flushMissed(cb CallbackFunc) {
	if len(s.ch) == 0 && s.missed.Swap(false) {
		cb(Event{Type: EventRefresh, Table: s.table})
	}
}

package realtime

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()

	const subscribers = 5
	var counts [subscribers]atomic.Int64
	for i := 0; i < subscribers; i++ {
		i := i
		sub := bus.Subscribe(TableRegistrations, nil, func(e Event) {
			counts[i].Add(1)
		})
		defer bus.Unsubscribe(sub)
	}

	event := Event{
		Type:           EventInsert,
		Table:          TableRegistrations,
		RegistrationID: uuid.New(),
		TournamentID:   uuid.New(),
	}
	bus.Publish(event)

	ok := waitFor(time.Second, func() bool {
		for i := range counts {
			if counts[i].Load() != 1 {
				return false
			}
		}
		return true
	})
	if !ok {
		t.Fatal("not every subscriber received exactly one event")
	}
}

func TestBusFilter(t *testing.T) {
	bus := NewBus()

	wantTournament := uuid.New()
	var matched, other atomic.Int64

	subMatched := bus.Subscribe(TableRegistrations, func(e Event) bool {
		return e.TournamentID == wantTournament
	}, func(Event) { matched.Add(1) })
	defer bus.Unsubscribe(subMatched)

	subOther := bus.Subscribe(TableRegistrations, func(e Event) bool {
		return e.TournamentID == uuid.Nil
	}, func(Event) { other.Add(1) })
	defer bus.Unsubscribe(subOther)

	bus.Publish(Event{Type: EventUpdate, Table: TableRegistrations, TournamentID: wantTournament})

	if !waitFor(time.Second, func() bool { return matched.Load() == 1 }) {
		t.Fatal("matching subscriber did not receive the event")
	}
	if other.Load() != 0 {
		t.Fatalf("filtered-out subscriber received %d events", other.Load())
	}
}

func TestBusIgnoresOtherTables(t *testing.T) {
	bus := NewBus()

	var count atomic.Int64
	sub := bus.Subscribe(TableRegistrations, nil, func(Event) { count.Add(1) })
	defer bus.Unsubscribe(sub)

	bus.Publish(Event{Type: EventInsert, Table: "tournaments"})

	time.Sleep(20 * time.Millisecond)
	if count.Load() != 0 {
		t.Fatalf("received %d events for a foreign table", count.Load())
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	var count atomic.Int64
	sub := bus.Subscribe(TableRegistrations, nil, func(Event) { count.Add(1) })

	bus.Publish(Event{Type: EventInsert, Table: TableRegistrations})
	if !waitFor(time.Second, func() bool { return count.Load() == 1 }) {
		t.Fatal("first event not delivered")
	}

	bus.Unsubscribe(sub)
	bus.Publish(Event{Type: EventInsert, Table: TableRegistrations})

	time.Sleep(20 * time.Millisecond)
	if count.Load() != 1 {
		t.Fatalf("received %d events after unsubscribe, want 1", count.Load())
	}
}

// Переполнение буфера медленного подписчика не теряется молча: после
// разгрузки приходит refresh, по которому подписчик перечитывает состояние.
func TestBusOverflowCoalescesToRefresh(t *testing.T) {
	bus := NewBus()

	var (
		mu      sync.Mutex
		types   []EventType
		release = make(chan struct{})
		first   = make(chan struct{})
		once    sync.Once
	)
	sub := bus.Subscribe(TableRegistrations, nil, func(e Event) {
		once.Do(func() { close(first) })
		<-release
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	})
	defer bus.Unsubscribe(sub)

	bus.Publish(Event{Type: EventInsert, Table: TableRegistrations})
	<-first // callback занят, буфер начинает копиться

	// Заведомо больше ёмкости буфера подписки.
	for i := 0; i < 40; i++ {
		bus.Publish(Event{Type: EventUpdate, Table: TableRegistrations})
	}
	close(release)

	sawRefresh := waitFor(time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, typ := range types {
			if typ == EventRefresh {
				return true
			}
		}
		return false
	})
	if !sawRefresh {
		t.Fatal("overflow did not produce a refresh event")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(types) > 42 {
		t.Fatalf("delivered %d events, expected buffered ones plus a refresh", len(types))
	}
}

// Подписчик, пропустивший события, обязан получить refresh за ограниченное
// время даже если после переполнения никто больше ничего не публикует.
func TestBusRefreshWithoutFurtherPublishes(t *testing.T) {
	for i := 0; i < 20; i++ {
		bus := NewBus()

		var refreshes atomic.Int64
		sub := bus.Subscribe(TableRegistrations, nil, func(e Event) {
			if e.Type == EventRefresh {
				refreshes.Add(1)
			}
			time.Sleep(time.Millisecond)
		})

		// Заведомо больше ёмкости буфера, публикация быстрее доставки:
		// пропуски гарантированы. После цикла шина молчит.
		for j := 0; j < 100; j++ {
			bus.Publish(Event{Type: EventUpdate, Table: TableRegistrations})
		}

		if !waitFor(time.Second, func() bool { return refreshes.Load() >= 1 }) {
			t.Fatalf("iteration %d: no refresh delivered after overflow on a quiescent bus", i)
		}
		bus.Unsubscribe(sub)
	}
}

func TestRoomNames(t *testing.T) {
	id := uuid.New()
	if got := RoomForTable(TableRegistrations); got != TableRegistrations {
		t.Fatalf("RoomForTable = %q", got)
	}
	if got := RoomForTournament(TableRegistrations, id); got != TableRegistrations+":"+id.String() {
		t.Fatalf("RoomForTournament = %q", got)
	}
}

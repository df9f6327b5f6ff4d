package realtime

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// RoomForTable — общая комната таблицы (админские дашборды).
func RoomForTable(table string) string {
	return table
}

// RoomForTournament — комната одного турнира (страница регистранта,
// лидерборд).
func RoomForTournament(table string, tournamentID uuid.UUID) string {
	return table + ":" + tournamentID.String()
}

// Hub раздаёт изменения таблиц подключённым websocket-клиентам по комнатам.
// Клиентам не обещается доставка через переподключение: после реконнекта
// клиент перечитывает состояние запросом, а не доверяет пропущенным событиям.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	rooms      map[string]map[*Client]bool
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			for _, room := range client.Rooms {
				if _, ok := h.rooms[room]; !ok {
					h.rooms[room] = make(map[*Client]bool)
				}
				h.rooms[room][client] = true
			}
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			for _, room := range client.Rooms {
				if clients, ok := h.rooms[room]; ok {
					if _, okClient := clients[client]; okClient {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.rooms, room)
						}
					}
				}
			}
			h.mu.Unlock()
			client.closeSend()
		}
	}
}

// BroadcastToRoom отправляет сообщение всем клиентам в указанной комнате.
func (h *Hub) BroadcastToRoom(roomID string, message interface{}) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshalling message for room %s: %v", roomID, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[roomID] {
		client.Mu.Lock()
		if client.IsClosed {
			client.Mu.Unlock()
			continue
		}
		select {
		case client.Send <- messageBytes:
		default:
			// Канал клиента полон: пропускаем, клиент перечитает состояние сам.
		}
		client.Mu.Unlock()
	}
}

// ForwardBusEvents подписывает hub на шину изменений: каждое событие уходит
// и в общую комнату таблицы, и в комнату конкретного турнира. Возвращённую
// подписку останавливает вызывающая сторона.
func (h *Hub) ForwardBusEvents(bus *Bus, table string) *Subscription {
	return bus.Subscribe(table, nil, func(e Event) {
		h.BroadcastToRoom(RoomForTable(table), e)
		if e.TournamentID != uuid.Nil {
			h.BroadcastToRoom(RoomForTournament(table, e.TournamentID), e)
		}
	})
}

package handlers

import (
	"log"
	"net/http"

	"github.com/Dosada05/tournament-registrations/realtime"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене здесь должна быть проверка Origin,
		// чтобы разрешать подключения только с доверенных доменов.
		return true
	},
}

type WebSocketHandler struct {
	hub *realtime.Hub
}

func NewWebSocketHandler(hub *realtime.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// ServeRegistrations подключает клиента к изменениям заявок одного турнира.
// Клиент после подключения (и после каждого реконнекта) перечитывает
// состояние запросом: доставка пропущенных за время разрыва событий не
// обещается.
func (h *WebSocketHandler) ServeRegistrations(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getUUIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader.Upgrade сам отправляет HTTP ошибку клиенту, так что здесь просто логируем.
		log.Printf("Failed to upgrade connection for tournament %s: %v", tournamentID, err)
		return
	}

	client := &realtime.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Rooms: []string{
			realtime.RoomForTournament(realtime.TableRegistrations, tournamentID),
		},
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// ServeAllRegistrations — подключение админского дашборда к изменениям по
// всем турнирам сразу.
func (h *WebSocketHandler) ServeAllRegistrations(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade admin connection: %v", err)
		return
	}

	client := &realtime.Client{
		Hub:   h.hub,
		Conn:  conn,
		Send:  make(chan []byte, 256),
		Rooms: []string{realtime.RoomForTable(realtime.TableRegistrations)},
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/DiFlector/kgb-pulse/protocols"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var errMissingProtocolKey = errors.New("missing protocol key")

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
	hub *protocols.Hub
}

func NewWebSocketHandler(hub *protocols.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// ServeWs подписывает клиента на обновления одного протокола.
// Клиент подключается к /ws/protocols/{key}.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "Missing protocol key", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader.Upgrade сам отправляет HTTP ошибку клиенту.
		log.Printf("Failed to upgrade connection for protocol %s: %v", key, err)
		return
	}

	client := &protocols.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: key,
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	log.Printf("Client registered for protocol room %s.", key)
}

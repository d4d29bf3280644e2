package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	"github.com/ayusman/libra/internal/app"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const writeWait = 5 * time.Second

// EventsHandler pushes app events to WebSocket clients. Each client receives
// the current status on connect, then every event the app publishes.
type EventsHandler struct {
	app     *app.App
	clients map[*websocket.Conn]*sync.Mutex
	mu      sync.RWMutex
}

// NewEventsHandler creates an EventsHandler subscribed to a.
func NewEventsHandler(a *app.App) *EventsHandler {
	h := &EventsHandler{
		app:     a,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
	a.Subscribe(h.broadcast)
	return h
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := klog.FromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(err, "websocket upgrade")
		return
	}
	defer conn.Close()

	writeMu := &sync.Mutex{}
	st := h.app.Status()
	if err := h.send(conn, writeMu, app.Event{Message: st.Message, Status: st, Time: time.Now()}); err != nil {
		log.V(1).Info("websocket client gone before initial status", "err", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = writeMu
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *EventsHandler) send(conn *websocket.Conn, writeMu *sync.Mutex, ev app.Event) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

// broadcast sends ev to all connected clients.
func (h *EventsHandler) broadcast(ev app.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, writeMu := range h.clients {
		if err := h.send(conn, writeMu, ev); err != nil {
			klog.V(1).InfoS("dropping websocket event", "remote", conn.RemoteAddr().String(), "err", err)
		}
	}
}

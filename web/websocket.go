package web

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"spiderpit/fight"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// EventHub fans domain events out to websocket subscribers. It
// implements fight.Broadcaster; the engine and the sweeper publish into
// it without knowing about websockets. Delivery is best-effort and
// unordered across distinct entities; a subscriber that cares about
// exact state re-reads the API.
type EventHub struct {
	clients    map[*websocket.Conn]string // conn -> user filter ("" = firehose)
	clientsMux sync.RWMutex
	writeMux   sync.Mutex // serializes writes; gorilla allows one writer per conn
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[*websocket.Conn]string),
	}
}

// Publish sends the event to every subscriber whose filter matches.
func (h *EventHub) Publish(event fight.Event) {
	h.clientsMux.RLock()
	conns := make(map[*websocket.Conn]string, len(h.clients))
	for conn, filter := range h.clients {
		conns[conn] = filter
	}
	h.clientsMux.RUnlock()

	h.writeMux.Lock()
	defer h.writeMux.Unlock()
	for conn, filter := range conns {
		if filter != "" && !eventInvolves(event, filter) {
			continue
		}
		if err := conn.WriteJSON(event); err != nil {
			h.remove(conn)
		}
	}
}

func eventInvolves(event fight.Event, userID string) bool {
	if event.Challenge != nil {
		if event.Challenge.ChallengerID == userID || event.Challenge.ChallengedID == userID {
			return true
		}
	}
	if event.Fight != nil {
		if event.Fight.ChallengerID == userID || event.Fight.ChallengedID == userID {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the connection and subscribes it to the
// event feed. ?user=<id> narrows the feed to events involving that user.
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	filter := r.URL.Query().Get("user")

	h.clientsMux.Lock()
	h.clients[conn] = filter
	h.clientsMux.Unlock()

	log.Printf("Event subscriber connected (filter=%q, total=%d)", filter, h.SubscriberCount())

	// Read pump: subscribers don't send anything meaningful, but reading
	// is how we notice the close.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *EventHub) SubscriberCount() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients)
}

func (h *EventHub) remove(conn *websocket.Conn) {
	h.clientsMux.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.clientsMux.Unlock()
}

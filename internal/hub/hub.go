package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event tells a browser that its session changed and the page should re-render.
type Event struct {
	SessionID uuid.UUID `json:"session_id"`
	Type      string    `json:"type"`
	Loading   bool      `json:"loading"`
	Message   string    `json:"message,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// Client is one open page for a session.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID uuid.UUID
}

// Hub fans session events out to every page open for that session.
type Hub struct {
	Rooms      map[uuid.UUID]map[*Client]bool
	Broadcast  chan Event
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[uuid.UUID]map[*Client]bool),
		Broadcast:  make(chan Event, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Publish queues a state event for sessionID. It drops the event when the
// queue is full; a page that misses one catches up on its next reload.
func (h *Hub) Publish(sessionID uuid.UUID, loading bool, message string) {
	ev := Event{
		SessionID: sessionID,
		Type:      "state",
		Loading:   loading,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
	select {
	case h.Broadcast <- ev:
	default:
		log.Printf("hub: broadcast queue full, dropping event for %s", sessionID)
	}
}

// Clients reports how many pages are connected for sessionID.
func (h *Hub) Clients(sessionID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Rooms[sessionID])
}

// Run serves registrations and broadcasts until ctx is done. On shutdown every
// client's Send is closed and later Unregister calls return at once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.Rooms {
				for client := range clients {
					close(client.Send)
				}
				delete(h.Rooms, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.SessionID] == nil {
				h.Rooms[client.SessionID] = make(map[*Client]bool)
			}
			h.Rooms[client.SessionID][client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.Rooms[client.SessionID][client]; ok {
				delete(h.Rooms[client.SessionID], client)
				close(client.Send)
				if len(h.Rooms[client.SessionID]) == 0 {
					delete(h.Rooms, client.SessionID)
				}
			}
			h.mu.Unlock()

		case ev := <-h.Broadcast:
			h.mu.Lock()
			payload, _ := json.Marshal(ev)
			for client := range h.Rooms[ev.SessionID] {
				select {
				case client.Send <- payload:
				default:
					close(client.Send)
					delete(h.Rooms[ev.SessionID], client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Join registers c with the hub. After Run has stopped it closes c.Send
// instead, so the client's pumps wind down.
func (h *Hub) Join(c *Client) {
	select {
	case h.Register <- c:
	case <-h.done:
		close(c.Send)
	}
}

// unregister hands c to Run, or does nothing once Run has stopped.
func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// ReadPump drains the socket so pongs and close frames are processed.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("hub: read error: %v", err)
			}
			break
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

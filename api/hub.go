package api

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/mini-leebee/leebee/engine"
)

// Message types on /ws/state.
const (
	MessageTypeState    = "state"
	MessageTypePosition = "position"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
)

type (
	// Message is sent to websocket subscribers: the whole snapshot when it
	// changes, the live position while the transport plays.
	Message struct {
		Type     string           `json:"type"`
		State    *engine.Snapshot `json:"state,omitempty"`
		Position *engine.Position `json:"position,omitempty"`
	}

	// Client is a websocket subscriber.
	Client struct {
		Conn *websocket.Conn
		Send chan []byte
	}

	// Hub watches the engine mirror and fans changes out to subscribers.
	Hub struct {
		ctrl  *engine.Controller
		every time.Duration

		// owned by Run
		clients map[*Client]bool

		register   chan *Client
		unregister chan *Client
		done       chan struct{}

		// connections whose handler has not returned yet
		active atomic.Int64
	}
)

// NewHub creates a hub that looks for changes every period.
func NewHub(ctrl *engine.Controller, every time.Duration) *Hub {
	return &Hub{
		ctrl:       ctrl,
		every:      every,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing
// every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.every)
	defer ticker.Stop()
	var last *engine.Snapshot
	var pos engine.Position
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.Send)
			}
			h.clients = nil
			return

		case client := <-h.register:
			h.clients[client] = true
			if data := h.encode(Message{Type: MessageTypeState, State: h.ctrl.State()}); data != nil {
				client.Send <- data
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}

		case <-ticker.C:
			if len(h.clients) == 0 {
				continue
			}
			if s := h.ctrl.State(); s != last {
				last = s
				h.broadcast(Message{Type: MessageTypeState, State: s})
				continue
			}
			if p := h.ctrl.Position(); p.Playing && p != pos {
				pos = p
				h.broadcast(Message{Type: MessageTypePosition, Position: &p})
			}
		}
	}
}

func (h *Hub) encode(msg Message) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[api] failed to marshal %s message: %v", msg.Type, err)
		return nil
	}
	return data
}

func (h *Hub) broadcast(msg Message) {
	data := h.encode(msg)
	if data == nil {
		return
	}
	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// too slow, drop it
			close(client.Send)
			delete(h.clients, client)
		}
	}
}

// Register adds a new client. It returns false if the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribers returns the number of open connections.
func (h *Hub) Subscribers() int {
	return int(h.active.Load())
}

// HandleConnection streams state to a websocket until either side closes.
// The connection is closed and its writer has stopped when it returns.
func (h *Hub) HandleConnection(c *websocket.Conn) {
	client := &Client{
		Conn: c,
		Send: make(chan []byte, 64),
	}
	if !h.Register(client) {
		return
	}
	h.active.Add(1)
	defer h.active.Add(-1)
	defer h.Unregister(client)

	// Send belongs to the hub, so pongs take their own path
	pongs := make(chan struct{}, 1)
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-quit:
				return

			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					c.Close()
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-pongs:
				if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`)); err != nil {
					return
				}

			case <-ticker.C:
				// keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
	defer func() {
		close(quit)
		c.Close()
		<-done
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[api] websocket error: %v", err)
			}
			break
		}
		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == MessageTypePing {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}

package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection following a single session
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session string
	send    chan []byte
}

// Hub routes events to the websocket clients and SSE subscribers of their session
type Hub struct {
	clients    map[*Client]bool
	subs       map[string]map[chan Event]struct{}
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
	logger     *zap.Logger
}

// NewHub initializes a new Hub instance
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		subs:       make(map[string]map[chan Event]struct{}),
		broadcast:  make(chan Event, sendBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.Named("progress-hub"),
	}
}

// Run dispatches registrations and events until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("WebSocket client connected", zap.String("session", client.session))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Debug("WebSocket client disconnected", zap.String("session", client.session))
			}
			h.mu.Unlock()
		case evt := <-h.broadcast:
			h.dispatch(evt)
		}
	}
}

func (h *Hub) dispatch(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Warn("Failed to encode progress event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.session != evt.SessionID {
			continue
		}
		select {
		case client.send <- payload:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
	for ch := range h.subs[evt.SessionID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Publish queues evt for delivery. When the queue is full the event is dropped;
// the durable run row still carries the latest state.
func (h *Hub) Publish(evt Event) {
	select {
	case h.broadcast <- evt:
	default:
		h.logger.Warn("Progress queue full, dropping event", zap.String("session", evt.SessionID))
	}
}

// Subscribe returns a channel of the session's events and a cancel func that closes it
func (h *Hub) Subscribe(session string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	h.mu.Lock()
	if h.subs[session] == nil {
		h.subs[session] = make(map[chan Event]struct{})
	}
	h.subs[session][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[session], ch)
			if len(h.subs[session]) == 0 {
				delete(h.subs, session)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// ServeWS upgrades the request and streams the session's events to it
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, session string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &Client{hub: h, conn: conn, session: session, send: make(chan []byte, sendBufferSize)}
	h.register <- client

	go client.writePump()
	go client.readPump()
	return nil
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only drains control frames so pongs and close are noticed
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

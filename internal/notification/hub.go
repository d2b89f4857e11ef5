package notification

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins in development
		// In production, you should check the origin
		return true
	},
}

// wsClient represents one WebSocket subscriber.
type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	accountID string
	closeChan chan struct{}
}

// Hub pushes notifications to connected WebSocket clients. Account-targeted
// notifications go only to that account's connections; notifications without
// an account id are broadcast.
type Hub struct {
	clients        map[*wsClient]bool
	accountClients map[string][]*wsClient
	register       chan *wsClient
	unregister     chan *wsClient
	logger         zerolog.Logger
	mu             sync.RWMutex
}

// NewHub creates a WebSocket notification hub. Call Run in a goroutine before
// serving connections.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:        make(map[*wsClient]bool),
		accountClients: make(map[string][]*wsClient),
		register:       make(chan *wsClient),
		unregister:     make(chan *wsClient),
		logger:         logger.With().Str("component", "notify_ws").Logger(),
	}
}

// Run processes client registration until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if client.accountID != "" {
				h.accountClients[client.accountID] = append(h.accountClients[client.accountID], client)
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				if client.accountID != "" {
					h.removeClientFromAccountMap(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Name() string {
	return "websocket"
}

func (h *Hub) IsEnabled() bool {
	return true
}

// Send routes a notification to the matching connections. It never blocks: a
// client whose send buffer is full gets unregistered instead.
func (h *Hub) Send(notification *Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var targets []*wsClient
	if notification.AccountID != "" {
		targets = append(targets, h.accountClients[notification.AccountID]...)
	} else {
		for client := range h.clients {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- data:
		default:
			go func(c *wsClient) {
				h.unregister <- c
			}(client)
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DisconnectAccount closes every connection held by one account, e.g. on
// logout or account closure.
func (h *Hub) DisconnectAccount(accountID string) {
	if accountID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.accountClients[accountID]
	if !ok || len(clients) == 0 {
		return
	}

	for _, client := range clients {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			close(client.send)
			select {
			case client.closeChan <- struct{}{}:
			default:
			}
		}
	}
	delete(h.accountClients, accountID)

	h.logger.Info().
		Int("connections", len(clients)).
		Str("account_id", accountID).
		Msg("Disconnected account WebSocket sessions")
}

// removeClientFromAccountMap removes a client from the accountClients map.
// Caller must hold the write lock.
func (h *Hub) removeClientFromAccountMap(client *wsClient) {
	clients, ok := h.accountClients[client.accountID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.accountClients[client.accountID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.accountClients[client.accountID]) == 0 {
		delete(h.accountClients, client.accountID)
	}
}

// ServeWS upgrades an HTTP request to a WebSocket subscription for accountID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, accountID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := &wsClient{
		conn:      conn,
		send:      make(chan []byte, 256),
		hub:       h,
		accountID: accountID,
		closeChan: make(chan struct{}),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()

	welcome := map[string]interface{}{
		"type":      "CONNECTED",
		"message":   "WebSocket connection established",
		"timestamp": time.Now().UTC(),
	}
	if data, err := json.Marshal(welcome); err == nil {
		select {
		case client.send <- data:
		default:
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// readPump drains the connection so pings and close frames are processed.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		// Clients are not expected to send messages.
	}
}

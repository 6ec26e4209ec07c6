package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"tc.com/token-prices/pkg/logging"
	"tc.com/token-prices/pkg/sources"
)

// WebSocketServer streams live price resolutions to connected clients.
// It mounts on the main HTTP server at /ws.
type WebSocketServer struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	// Client management
	mu      sync.RWMutex
	clients map[*WebSocketClient]bool

	// Price updates channel
	updates chan PriceUpdateMessage

	// Server control
	ctx    context.Context
	cancel context.CancelFunc
}

// WebSocketClient represents a connected WebSocket client.
type WebSocketClient struct {
	conn               *websocket.Conn
	send               chan []byte
	server             *WebSocketServer
	subscribedAll      bool
	subscribedSubjects map[string]bool
	mu                 sync.RWMutex
}

// WebSocketMessage represents a client message.
type WebSocketMessage struct {
	Type     string   `json:"type"`     // "subscribe", "unsubscribe", "ping"
	Subjects []string `json:"subjects"` // List of subjects to subscribe to
}

// PriceUpdateMessage is sent to clients on live resolutions.
type PriceUpdateMessage struct {
	Type      string `json:"type"`      // "price_update"
	Timestamp string `json:"timestamp"` // ISO 8601 timestamp
	Subject   string `json:"subject"`
	Quote     string `json:"quote"`
	DataClass string `json:"data_class"`
	Price     string `json:"price"`
	SourceID  string `json:"source_id"`
}

// NewWebSocketServer creates a new WebSocket streamer.
func NewWebSocketServer(logger *logging.Logger) *WebSocketServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketServer{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Allow all origins (configure CORS as needed)
				return true
			},
		},
		clients: make(map[*WebSocketClient]bool),
		updates: make(chan PriceUpdateMessage, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start runs the broadcast loop until Stop is called.
func (s *WebSocketServer) Start() {
	go s.broadcastUpdates()
}

// Stop stops the broadcast loop.
func (s *WebSocketServer) Stop() {
	s.cancel()
}

// SendUpdate queues a live resolution for broadcast.
func (s *WebSocketServer) SendUpdate(query sources.PriceQuery, result sources.PriceResult) {
	message := PriceUpdateMessage{
		Type:      "price_update",
		Timestamp: result.ObservedAt.UTC().Format(time.RFC3339),
		Subject:   query.Subject,
		Quote:     result.QuoteCurrency,
		DataClass: string(query.DataClass),
		Price:     result.Value.String(),
		SourceID:  result.SourceID,
	}

	select {
	case s.updates <- message:
	case <-time.After(100 * time.Millisecond):
		s.logger.Warn("Update channel full, dropping price update")
	}
}

// handleWebSocket handles new WebSocket connections.
func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &WebSocketClient{
		conn:               conn,
		send:               make(chan []byte, 256),
		server:             s,
		subscribedAll:      true, // Subscribe to all by default
		subscribedSubjects: make(map[string]bool),
	}

	s.registerClient(client)

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	s.logger.Info("New WebSocket client connected", "remote", conn.RemoteAddr())
}

// registerClient adds a client to the server.
func (s *WebSocketServer) registerClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

// unregisterClient removes a client from the server.
func (s *WebSocketServer) unregisterClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
}

// broadcastUpdates broadcasts queued updates to all clients.
func (s *WebSocketServer) broadcastUpdates() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case message := <-s.updates:
			s.broadcast(message)
		}
	}
}

// broadcast sends one update to all subscribed clients.
func (s *WebSocketServer) broadcast(message PriceUpdateMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("Failed to marshal price update", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if client.shouldReceive(message.Subject) {
			select {
			case client.send <- data:
			default:
				s.logger.Warn("Client send buffer full, skipping update")
			}
		}
	}
}

// writePump sends messages to the WebSocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.server.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket connection.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// handleMessage processes client messages.
func (c *WebSocketClient) handleMessage(data []byte) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.server.logger.Warn("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Subjects)
	case "unsubscribe":
		c.unsubscribe(msg.Subjects)
	case "ping":
		c.sendPong()
	default:
		c.server.logger.Warn("Unknown message type", "type", msg.Type)
	}
}

// subscribe subscribes to specific subjects.
func (c *WebSocketClient) subscribe(subjects []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(subjects) == 0 || (len(subjects) == 1 && subjects[0] == "*") {
		c.subscribedAll = true
		c.subscribedSubjects = make(map[string]bool)
	} else {
		c.subscribedAll = false
		for _, subject := range subjects {
			c.subscribedSubjects[subject] = true
		}
	}

	c.server.logger.Debug("Client subscribed", "subjects", subjects)
}

// unsubscribe unsubscribes from specific subjects.
func (c *WebSocketClient) unsubscribe(subjects []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(subjects) == 0 || (len(subjects) == 1 && subjects[0] == "*") {
		c.subscribedAll = false
		c.subscribedSubjects = make(map[string]bool)
	} else {
		for _, subject := range subjects {
			delete(c.subscribedSubjects, subject)
		}
	}

	c.server.logger.Debug("Client unsubscribed", "subjects", subjects)
}

// shouldReceive checks if the client subscribed to this subject.
func (c *WebSocketClient) shouldReceive(subject string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subscribedAll {
		return true
	}
	return c.subscribedSubjects[subject]
}

// sendPong sends a pong response.
func (c *WebSocketClient) sendPong() {
	pong := map[string]string{"type": "pong"}
	data, _ := json.Marshal(pong)
	select {
	case c.send <- data:
	default:
	}
}

package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/harnessgg/blenderbridge/internal/jobs"
)

// Message types sent over the job stream.
const (
	MessageTypeStatus = "status"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
)

// Message is the envelope clients send and receive.
type Message struct {
	Type string `json:"type"`
}

type statusMessage struct {
	Type string         `json:"type"`
	Job  map[string]any `json:"job"`
}

// Client represents a WebSocket client subscribed to one render job
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by job ID
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to job subscribers
	broadcast chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	JobID   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.JobID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.JobID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.JobID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// StatusMessage renders a job as a status frame. Returns nil when the
// job cannot be marshaled.
func StatusMessage(job jobs.Job) []byte {
	data, err := json.Marshal(statusMessage{Type: MessageTypeStatus, Job: job.Map()})
	if err != nil {
		log.Printf("Failed to marshal status message: %v", err)
		return nil
	}
	return data
}

// BroadcastJob sends a job status update to all subscribers of its ID.
// Registered with jobs.Tracker.OnChange so every transition is streamed.
func (h *Hub) BroadcastJob(job jobs.Job) {
	data := StatusMessage(job)
	if data == nil {
		return
	}
	h.broadcast <- &BroadcastMessage{
		JobID:   job.ID,
		Message: data,
	}
}

// HandleConnection handles a WebSocket connection subscribed to jobID.
// The initial frame, when non-nil, is queued before any broadcast so
// subscribers always start from the current job state.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string, initial []byte) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}
	if initial != nil {
		client.Send <- initial
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == MessageTypePing {
			pong := Message{Type: MessageTypePong}
			data, _ := json.Marshal(pong)
			client.Send <- data
		}
	}
}

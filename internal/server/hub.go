package server

import (
	"sync"

	"cryptodash/internal/assistant"
	"cryptodash/internal/metrics"

	"go.uber.org/zap"
)

// WSMessage is the frame exchanged over /ws.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// WSClient is one websocket connection with its own chat session.
type WSClient struct {
	hub     *WSHub
	send    chan WSMessage
	session *assistant.Session
}

// WSHub fans broadcast messages out to every registered client.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewWSHub(m *metrics.Metrics, logger *zap.Logger) *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		metrics:    m,
		logger:     logger,
	}
}

// Run is the hub event loop. On stop every client channel is closed.
func (h *WSHub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.metrics.WSClients.Set(0)
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.WSClients.Set(float64(n))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.WSClients.Set(float64(n))
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client; disconnect
					h.logger.Warn("dropping slow websocket client")
					delete(h.clients, client)
					close(client.send)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.WSClients.Set(float64(n))
		}
	}
}

// Broadcast queues msg for all clients. It drops the message when the queue is full.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message", zap.String("type", msg.Type))
	}
}

func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub. It returns false when the hub has stopped.
func (h *WSHub) Register(client *WSClient, stop <-chan struct{}) bool {
	select {
	case h.register <- client:
		return true
	case <-stop:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient, stop <-chan struct{}) {
	select {
	case h.unregister <- client:
	case <-stop:
	}
}

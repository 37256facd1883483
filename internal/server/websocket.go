package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cryptodash/internal/assistant"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS settings of the REST API
	},
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 2048
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	stop, running := s.stopCh, s.running
	s.mu.Unlock()
	if !running {
		writeError(w, http.StatusServiceUnavailable, "server is not running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &WSClient{
		hub:     s.hub,
		send:    make(chan WSMessage, 64),
		session: assistant.NewSession(s.opts.Responder),
	}
	if !s.hub.Register(client, stop) {
		conn.Close()
		return
	}

	replies := make(chan WSMessage, 16)
	done := make(chan struct{})

	go wsWritePump(conn, client, replies, done)
	go s.wsReadPump(conn, client, replies, done, stop)
}

// wsReadPump handles client frames. Replies go through their own channel so
// that only the hub ever closes client.send.
func (s *Server) wsReadPump(conn *websocket.Conn, client *WSClient, replies chan<- WSMessage, done <-chan struct{}, stop <-chan struct{}) {
	defer func() {
		client.hub.Unregister(client, stop)
		close(replies)
		conn.Close()
	}()

	reply := func(msg WSMessage) bool {
		select {
		case replies <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Greet with the conversation and whatever snapshots are already loaded.
	if !reply(WSMessage{Type: "history", Data: client.session.Messages()}) {
		return
	}
	for _, msg := range s.snapshotMessages() {
		if !reply(msg) {
			return
		}
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			if !reply(WSMessage{Type: "error", Data: "invalid message"}) {
				return
			}
			continue
		}

		var out WSMessage
		switch msg.Type {
		case "chat":
			text, _ := msg.Data.(string)
			q, a, err := client.session.Submit(text)
			if errors.Is(err, assistant.ErrEmptyQuery) {
				out = WSMessage{Type: "error", Data: "content must not be empty"}
				break
			}
			s.metrics.ChatMessages.Inc()
			out = WSMessage{Type: "chat", Data: messageResponse{Question: q, Answer: a}}
		case "history":
			out = WSMessage{Type: "history", Data: client.session.Messages()}
		case "ping":
			out = WSMessage{Type: "pong"}
		default:
			out = WSMessage{Type: "error", Data: "unknown message type"}
		}
		if !reply(out) {
			return
		}
	}
}

// wsWritePump writes hub broadcasts and replies to the connection.
func wsWritePump(conn *websocket.Conn, client *WSClient, replies <-chan WSMessage, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case msg, ok := <-replies:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) snapshotMessages() []WSMessage {
	var out []WSMessage
	if st := s.listing.Latest(); st.HasValue {
		out = append(out, WSMessage{Type: "coins", Data: s.coinsView(st)})
	}
	if st := s.global.Latest(); st.HasValue && st.Value != nil {
		out = append(out, WSMessage{Type: "market", Data: s.marketView(st)})
	}
	if s.news != nil {
		if st := s.news.Latest(); st.HasValue {
			out = append(out, WSMessage{Type: "news", Data: s.newsView(st)})
		}
	}
	return out
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/formcoach/internal/coach"
	"github.com/ayusman/formcoach/internal/pose"
)

const (
	writeWait      = 5 * time.Second
	clientSendSize = 32
	maxMessageSize = 64 << 10
)

// Message types exchanged over /api/live.
const (
	MessageStart    = "start"
	MessageFrame    = "frame"
	MessageEnd      = "end"
	MessageUpdate   = "update"
	MessageAnnounce = "announce"
	MessageSession  = "session"
	MessageError    = "error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// ClientMessage is sent by browsers driving a session over the socket.
type ClientMessage struct {
	Type     string     `json:"type"`
	Exercise string     `json:"exercise,omitempty"`
	Epoch    uint64     `json:"epoch,omitempty"`
	Pose     *pose.Pose `json:"pose,omitempty"`
}

// ServerMessage is pushed to clients.
type ServerMessage struct {
	Type    string          `json:"type"`
	Update  *coach.Update   `json:"update,omitempty"`
	Session *coach.Snapshot `json:"session,omitempty"`
	Text    string          `json:"text,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type liveClient struct {
	conn *websocket.Conn
	send chan []byte
}

// LiveHandler pushes coaching updates and spoken feedback to WebSocket
// clients, and accepts session commands and client-side poses from them.
type LiveHandler struct {
	coach  *coach.Coach
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*liveClient]struct{}
	closed  bool

	unsubscribe func()
}

// NewLiveHandler creates a LiveHandler subscribed to c's updates.
func NewLiveHandler(c *coach.Coach, logger *zap.Logger) *LiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &LiveHandler{
		coach:   c,
		logger:  logger,
		clients: make(map[*liveClient]struct{}),
	}
	h.unsubscribe = c.Subscribe(func(u coach.Update) {
		h.broadcast(ServerMessage{Type: MessageUpdate, Update: &u})
	})
	return h
}

// Announce forwards text to every connected client. It reports whether any
// client was connected, so it can serve as a feedback sink.
func (h *LiveHandler) Announce(text string) bool {
	return h.broadcast(ServerMessage{Type: MessageAnnounce, Text: text}) > 0
}

// Clients returns the number of connected clients.
func (h *LiveHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from the coach and disconnects every client.
func (h *LiveHandler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*liveClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.unsubscribe()
	var errs []error
	for _, c := range clients {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	_ = conn.SetWriteDeadline(time.Time{})
	conn.SetReadLimit(maxMessageSize)

	c := &liveClient{conn: conn, send: make(chan []byte, clientSendSize)}
	if !h.add(c) {
		conn.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(c)
	}()

	h.readLoop(c)
	h.remove(c)
	<-done
	conn.Close()
}

func (h *LiveHandler) add(c *liveClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *LiveHandler) remove(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *LiveHandler) readLoop(c *liveClient) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(c, ServerMessage{Type: MessageError, Error: "Invalid message"})
			continue
		}
		h.handle(c, msg)
	}
}

func (h *LiveHandler) handle(c *liveClient, msg ClientMessage) {
	switch msg.Type {
	case MessageStart:
		s, err := h.coach.StartSession(msg.Exercise)
		if err != nil {
			h.reply(c, ServerMessage{Type: MessageError, Error: err.Error()})
			return
		}
		snap := s.Snapshot()
		h.broadcast(ServerMessage{Type: MessageSession, Session: &snap})

	case MessageFrame:
		if msg.Pose == nil {
			h.reply(c, ServerMessage{Type: MessageError, Error: "Pose is required"})
			return
		}
		// Successful updates reach every client through the subscription.
		if _, err := h.coach.Submit(msg.Epoch, *msg.Pose); err != nil {
			h.reply(c, ServerMessage{Type: MessageError, Error: err.Error()})
		}

	case MessageEnd:
		snap, err := h.coach.EndSession()
		if err != nil {
			h.reply(c, ServerMessage{Type: MessageError, Error: err.Error()})
			return
		}
		h.broadcast(ServerMessage{Type: MessageSession, Session: &snap})

	default:
		h.reply(c, ServerMessage{Type: MessageError, Error: "Unknown message type"})
	}
}

func (h *LiveHandler) writeLoop(c *liveClient) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			// Unblock the reader so the handler can clean up.
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
}

// reply queues msg for a single client.
func (h *LiveHandler) reply(c *liveClient, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		h.enqueue(c, data)
	}
}

// broadcast queues msg for every client and returns how many received it.
// Slow clients drop messages rather than stall the pipeline.
func (h *LiveHandler) broadcast(msg ServerMessage) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode live message", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if h.enqueue(c, data) {
			n++
		}
	}
	return n
}

func (h *LiveHandler) enqueue(c *liveClient, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

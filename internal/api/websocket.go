package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/medtriage-server/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// StageEvent is the payload pushed to subscribers on every stage change.
type StageEvent struct {
	SessionID      string                `json:"session_id"`
	Stage          domain.Stage          `json:"stage"`
	NextActionHint domain.NextActionHint `json:"next_action_hint"`
	Timestamp      time.Time             `json:"timestamp"`
}

// Hub fans stage events out to per-session websocket subscribers. It
// implements domain.StagePublisher; publishing never blocks the workflow,
// slow subscribers drop events instead.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan StageEvent]struct{}
	logger      *logrus.Logger
}

// NewHub creates a stage-event hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan StageEvent]struct{}),
		logger:      logger,
	}
}

// PublishStage notifies all subscribers of the session's new stage.
func (h *Hub) PublishStage(sessionID string, stage domain.Stage, hint domain.NextActionHint) {
	event := StageEvent{
		SessionID:      sessionID,
		Stage:          stage,
		NextActionHint: hint,
		Timestamp:      time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[sessionID] {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; drop rather than stall the engine.
		}
	}
}

// subscribe registers a subscriber channel for a session.
func (h *Hub) subscribe(sessionID string) chan StageEvent {
	ch := make(chan StageEvent, 8)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[sessionID] == nil {
		h.subscribers[sessionID] = make(map[chan StageEvent]struct{})
	}
	h.subscribers[sessionID][ch] = struct{}{}
	return ch
}

// unsubscribe removes a subscriber channel.
func (h *Hub) unsubscribe(sessionID string, ch chan StageEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[sessionID]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(h.subscribers, sessionID)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from app origins; CORS policy is enforced
	// at the HTTP layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSessionSocket upgrades the connection and streams stage events
// for one session until the client disconnects.
func (s *Server) handleSessionSocket(c *gin.Context) {
	sessionID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	ch := s.hub.subscribe(sessionID)
	defer func() {
		s.hub.unsubscribe(sessionID, ch)
		conn.Close()
	}()

	// Reader goroutine: only pongs and close frames are expected.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

package notify

import (
	"sync"
	"time"

	"binarynet/internal/metrics"
	"binarynet/internal/service"
	"binarynet/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	subscriberSize = 16
)

type Message struct {
	Type    string        `json:"type"`
	Payload service.Event `json:"payload"`
}

// Hub pushes each event to the live feed subscriptions of the user it concerns.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan service.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[chan service.Event]struct{})}
}

func (h *Hub) Publish(e service.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[e.UserID] {
		select {
		case ch <- e:
		default:
			metrics.NotificationsDropped.WithLabelValues("websocket").Inc()
		}
	}
}

func (h *Hub) Subscribe(userID uuid.UUID) (<-chan service.Event, func()) {
	ch := make(chan service.Event, subscriberSize)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan service.Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[userID], ch)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		h.mu.Unlock()
	}
}

// Serve streams the user's events over conn until the peer goes away.
func (h *Hub) Serve(conn *websocket.Conn, userID uuid.UUID) {
	log := logger.Logger().With(zap.String("user_id", userID.String()))
	events, unsubscribe := h.Subscribe(userID)
	defer func() {
		unsubscribe()
		conn.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Info("websocket unexpected close", zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e := <-events:
			payload, err := json.Marshal(Message{Type: string(e.Kind), Payload: e})
			if err != nil {
				log.Error("failed to marshal feed event", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Info("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

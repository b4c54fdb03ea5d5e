package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-tutor/pkg/tutordto"
)

const (
	subscriberBuffer = 16
	wsWriteTimeout   = 5 * time.Second
	wsPingInterval   = 30 * time.Second
)

type subscriber struct {
	events chan tutordto.Event
}

// Hub fans tutor events out to the websocket clients watching a session.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), logger: logger}
}

// Publish never blocks; a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(sessionID string, ev tutordto.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[sessionID] {
		select {
		case sub.events <- ev:
		default:
			h.logger.Warn("ws_event_dropped",
				zap.String("session_id", sessionID),
				zap.String("type", ev.Type),
			)
		}
	}
}

func (h *Hub) subscribe(sessionID string) (*subscriber, func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, false
	}
	sub := &subscriber{events: make(chan tutordto.Event, subscriberBuffer)}
	set := h.subs[sessionID]
	if set == nil {
		set = make(map[*subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[sessionID]; ok {
				if _, ok := set[sub]; ok {
					delete(set, sub)
					close(sub.events)
				}
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
		})
	}, true
}

// Subscribers reports how many clients watch a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, set := range h.subs {
		for sub := range set {
			close(sub.events)
		}
		delete(h.subs, id)
	}
}

var errHubClosed = errors.New("event hub closed")

// attach subscribes to sessionID and only then loads the snapshot, so an
// event published in between is queued rather than lost.
func (h *Hub) attach(sessionID string, load func() (*tutordto.State, error)) (*subscriber, func(), *tutordto.State, error) {
	sub, unsubscribe, ok := h.subscribe(sessionID)
	if !ok {
		return nil, nil, nil, errHubClosed
	}
	snapshot, err := load()
	if err != nil {
		unsubscribe()
		return nil, nil, nil, err
	}
	return sub, unsubscribe, snapshot, nil
}

// serve streams events for one attached subscriber until the client goes
// away. The first frame is the snapshot.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, sessionID string, sub *subscriber, unsubscribe func(), snapshot *tutordto.State) {
	defer unsubscribe()

	// Server read/write timeouts would otherwise cut the stream.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		h.logger.Warn("ws_accept_failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead handles control frames.
	ctx := conn.CloseRead(r.Context())

	if err := h.write(ctx, conn, tutordto.Event{
		Type:      tutordto.EventSnapshot,
		SessionID: sessionID,
		State:     snapshot,
	}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.logger.Debug("ws_ping_failed", zap.String("session_id", sessionID), zap.Error(err))
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, ev tutordto.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, ev); err != nil {
		if !errors.Is(err, context.Canceled) {
			h.logger.Debug("ws_write_failed", zap.String("session_id", ev.SessionID), zap.Error(err))
		}
		return err
	}
	return nil
}

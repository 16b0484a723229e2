package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	eventCardUpdated = "card-updated"
	eventBoardUpdate = "board-update"
	eventListUpdated = "list-updated"
)

const (
	actionCreated = "created"
	actionUpdated = "updated"
	actionDeleted = "deleted"
	actionMoved   = "moved"
)

var ErrHubClosed = errors.New("event hub closed")

type Event struct {
	Name      string    `json:"event"`
	BoardID   uuid.UUID `json:"board_id"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type message struct {
	name string
	body []byte
}

// Subscription is one listener's queue for a single board. C is closed when
// the subscription leaves the hub or the hub shuts down.
type Subscription struct {
	C     <-chan message
	board uuid.UUID
	ch    chan message
}

type HubConfig struct {
	Buffer      int
	Heartbeat   time.Duration
	CheckOrigin func(r *http.Request) bool
}

// Hub is the board-scoped subscription registry. Publishing never blocks: a
// full listener queue drops the event for that listener.
type Hub struct {
	log      *slog.Logger
	cfg      HubConfig
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	rooms  map[uuid.UUID]map[*Subscription]struct{}
	closed bool
}

func NewHub(log *slog.Logger, cfg HubConfig) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 16
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 25 * time.Second
	}
	return &Hub{
		log: log,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		rooms: make(map[uuid.UUID]map[*Subscription]struct{}),
	}
}

func (h *Hub) Join(boardID uuid.UUID) (*Subscription, error) {
	ch := make(chan message, h.cfg.Buffer)
	sub := &Subscription{C: ch, board: boardID, ch: ch}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if h.rooms[boardID] == nil {
		h.rooms[boardID] = make(map[*Subscription]struct{})
	}
	h.rooms[boardID][sub] = struct{}{}
	eventListeners.Inc()
	return sub, nil
}

// Leave is safe to call more than once and after Close.
func (h *Hub) Leave(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[sub.board]
	if !ok {
		return
	}
	if _, ok := room[sub]; !ok {
		return
	}
	delete(room, sub)
	if len(room) == 0 {
		delete(h.rooms, sub.board)
	}
	close(sub.ch)
	eventListeners.Dec()
}

func (h *Hub) Listeners(boardID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[boardID])
}

// Publish queues ev for every listener of its board and reports how many
// listeners received it.
func (h *Hub) Publish(ev Event) (int, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", ev.Name, err)
	}
	msg := message{name: ev.Name, body: body}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrHubClosed
	}
	delivered := 0
	for sub := range h.rooms[ev.BoardID] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			eventsDropped.WithLabelValues(ev.Name).Inc()
		}
	}
	eventsPublished.WithLabelValues(ev.Name).Add(float64(delivered))
	return delivered, nil
}

// Close ends every subscription. Streams being served return once their
// queue is closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for board, room := range h.rooms {
		for sub := range room {
			close(sub.ch)
			eventListeners.Dec()
		}
		delete(h.rooms, board)
	}
}

// ServeSSE streams a board's events until the client goes away.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, boardID uuid.UUID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream unsupported")
		return
	}
	sub, err := h.Join(boardID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer h.Leave(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// keeps proxies from timing out an idle stream
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.name, msg.body)
			flusher.Flush()
		}
	}
}

// ServeWS upgrades to a websocket and writes each event as one text frame.
// Client frames are read only to notice the connection closing.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, boardID uuid.UUID) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.Warn("ws upgrade", "err", err)
		return
	}
	defer conn.Close()

	sub, err := h.Join(boardID)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()),
			time.Now().Add(time.Second))
		return
	}
	defer h.Leave(sub)

	wait := 2 * h.cfg.Heartbeat
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.Heartbeat)); err != nil {
				return
			}
		case msg, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.Heartbeat))
			if err := conn.WriteMessage(websocket.TextMessage, msg.body); err != nil {
				return
			}
		}
	}
}

// notifier publishes change events after a mutation has been answered. It
// never returns an error to the caller.
type notifier struct {
	hub *Hub
	log *slog.Logger
}

func (n *notifier) Notify(boardID uuid.UUID, name, action, entity string, data any) {
	if n == nil || n.hub == nil {
		return
	}
	_, err := n.hub.Publish(Event{
		Name:    name,
		BoardID: boardID,
		Action:  action,
		Entity:  entity,
		Data:    data,
	})
	if err != nil {
		notifyFailures.WithLabelValues(name).Inc()
		n.log.Warn("notify", "event", name, "board_id", boardID, "err", err)
	}
}

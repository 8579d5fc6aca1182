// Package live pushes map reconciliation plans to connected viewers over
// WebSocket.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/safewatch/internal/mapview"
)

const (
	pingInterval = 30 * time.Second
	pongTimeout  = 10 * time.Second
	sendBuffer   = 64
)

// Message types.
const (
	TypeSnapshot = "snapshot"
	TypePlan     = "plan"
	TypeFocus    = "focus"
)

// Message is the envelope exchanged with viewers. Snapshot and plan
// messages carry a Plan; a focus reply carries Focus. Viewers send focus
// requests with an ID.
type Message struct {
	Type  string                  `json:"type"`
	Plan  *mapview.Plan           `json:"plan,omitempty"`
	Focus *mapview.FocusDirective `json:"focus,omitempty"`
	ID    string                  `json:"id,omitempty"`
}

// SnapshotFunc returns the plan that renders the current marker set,
// stamped with the registry sequence it reflects.
type SnapshotFunc func() mapview.Plan

// LocateFunc resolves a rendered marker to a focus directive.
type LocateFunc func(id string) (mapview.FocusDirective, bool)

// Hub tracks connected viewers and fans plans out to them. Focus replies go
// only to the viewer that asked.
type Hub struct {
	logger         log.Logger
	snapshot       SnapshotFunc
	locate         LocateFunc
	originPatterns []string

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	// since is the registry sequence of the snapshot this viewer received.
	since uint64
	// evict drops the connection so the viewer reconnects and resyncs.
	evict func()
}

// NewHub creates a hub. snapshot and locate may be nil. originPatterns is
// passed to websocket.AcceptOptions; empty means same-origin only.
func NewHub(logger log.Logger, snapshot SnapshotFunc, locate LocateFunc, originPatterns []string) *Hub {
	if logger == nil {
		logger = log.Nop()
	}
	return &Hub{
		logger:         logger,
		snapshot:       snapshot,
		locate:         locate,
		originPatterns: originPatterns,
		clients:        make(map[*client]struct{}),
	}
}

// Len returns the number of connected viewers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends p to every viewer whose snapshot predates it. Empty plans
// are dropped. A viewer whose buffer is full cannot stay consistent, so it
// is disconnected and receives a fresh snapshot when it reconnects.
func (h *Hub) Broadcast(ctx context.Context, p mapview.Plan) {
	if p.Empty() {
		return
	}
	data, err := json.Marshal(Message{Type: TypePlan, Plan: &p})
	if err != nil {
		h.logger.Error(ctx, err, "failed to encode plan")
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if p.Seq != 0 && p.Seq <= c.since {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn(ctx, "viewer too slow, disconnecting", "seq", p.Seq)
		h.drop(c)
	}
}

// sendTo queues data for a single viewer, dropping it if it cannot keep up.
func (h *Hub) sendTo(ctx context.Context, c *client, data []byte) {
	h.mu.RLock()
	_, ok := h.clients[c]
	full := false
	if ok {
		select {
		case c.send <- data:
		default:
			full = true
		}
	}
	h.mu.RUnlock()

	if full {
		h.logger.Warn(ctx, "viewer too slow, disconnecting")
		h.drop(c)
	}
}

func (h *Hub) drop(c *client) {
	h.unregister(c)
	if c.evict != nil {
		c.evict()
	}
}

// ServeHTTP upgrades the request and serves one viewer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn(ctx, "websocket accept failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		evict: func() {
			conn.Close(websocket.StatusTryAgainLater, "viewer too slow")
		},
	}
	if err := h.register(c); err != nil {
		h.logger.Error(ctx, err, "failed to encode snapshot")
		conn.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}
	h.logger.Info(ctx, "viewer connected", "viewers", h.Len())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.pingLoop(ctx)
	go c.writePump(ctx)
	h.readPump(ctx, c)
}

// register adds c and queues the snapshot under the hub lock so no plan can
// overtake it. Plans already contained in the snapshot are skipped by
// Broadcast through c.since.
func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.snapshot != nil {
		snap := h.snapshot()
		data, err := json.Marshal(Message{Type: TypeSnapshot, Plan: &snap})
		if err != nil {
			return err
		}
		c.since = snap.Seq
		c.send <- data
	}
	h.clients[c] = struct{}{}
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "bye")
		h.logger.Info(ctx, "viewer disconnected", "viewers", h.Len())
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == TypeFocus && msg.ID != "" {
			h.focus(ctx, c, msg.ID)
		}
	}
}

// focus answers a viewer's focus request on that viewer's connection only.
// Unknown ids are ignored.
func (h *Hub) focus(ctx context.Context, c *client, id string) {
	if h.locate == nil {
		return
	}
	f, ok := h.locate(id)
	if !ok {
		return
	}
	data, err := json.Marshal(Message{Type: TypeFocus, Focus: &f})
	if err != nil {
		h.logger.Error(ctx, err, "failed to encode focus")
		return
	}
	h.sendTo(ctx, c, data)
}

func (c *client) pingLoop(ctx context.Context) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, pongTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

func (c *client) writePump(ctx context.Context) {
	for data := range c.send {
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
}

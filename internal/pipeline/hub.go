// Package pipeline pushes lab pipeline status to WebSocket subscribers.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/models"
	"github.com/calcutta/console/internal/telemetry"
	"github.com/calcutta/console/internal/upstream"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send control frames
	maxMessageSize = 512
)

// ErrHubClosed is returned by Join once Run has returned.
var ErrHubClosed = errors.New("pipeline hub is shut down")

// StatusSource reads pipeline status from the API.
type StatusSource interface {
	PipelineStatus(ctx context.Context, token, runID string) (*models.PipelineStatus, error)
}

// Message is what subscribers receive.
type Message struct {
	Type   string                 `json:"type"`
	Status *models.PipelineStatus `json:"status,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// Client is one WebSocket subscriber to a run.
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	RunID  string
	UserID int64
	Token  string

	// snapshot is the status the client was admitted with.
	snapshot *models.PipelineStatus
}

// NewClient builds a subscriber with a buffered outbound queue.
func NewClient(h *Hub, conn *websocket.Conn, runID string, userID int64, token string) *Client {
	return &Client{Hub: h, Conn: conn, Send: make(chan []byte, 16), RunID: runID, UserID: userID, Token: token}
}

// Hub tracks subscribers per run and runs one poller per watched run.
// The poller calls the API with one subscriber's token and moves to
// another subscriber's token when that one leaves or is rejected.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	finished   chan string
	done       chan struct{}

	runs    map[string]map[*Client]bool
	pollers map[string]context.CancelFunc
	tokens  map[string]string
	mu      sync.RWMutex

	source   StatusSource
	interval time.Duration
	log      *logger.Logger
	metrics  *telemetry.Metrics
}

// NewHub builds a hub; call Run to start it.
func NewHub(source StatusSource, interval time.Duration, log *logger.Logger, metrics *telemetry.Metrics) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		finished:   make(chan string),
		done:       make(chan struct{}),
		runs:       make(map[string]map[*Client]bool),
		pollers:    make(map[string]context.CancelFunc),
		tokens:     make(map[string]string),
		source:     source,
		interval:   interval,
		log:        log,
		metrics:    metrics,
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Snapshot reads a run's status with the subscriber's own token. Callers
// use it to check access before upgrading the connection.
func (h *Hub) Snapshot(ctx context.Context, token, runID string) (*models.PipelineStatus, error) {
	return h.source.PipelineStatus(ctx, token, runID)
}

// Join queues the admission snapshot for client and subscribes it. A run
// that is already terminal gets the snapshot and a closed queue.
func (h *Hub) Join(client *Client, snapshot *models.PipelineStatus) error {
	if snapshot != nil {
		if payload, err := json.Marshal(Message{Type: "status", Status: snapshot}); err == nil {
			client.Send <- payload
		}
		client.snapshot = snapshot
		if snapshot.Terminal() {
			close(client.Send)
			return nil
		}
	}
	select {
	case h.Register <- client:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Run processes registrations until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.mu.Lock()
			subs, ok := h.runs[client.RunID]
			if !ok {
				subs = make(map[*Client]bool)
				h.runs[client.RunID] = subs
			}
			subs[client] = true
			if _, polling := h.pollers[client.RunID]; !polling {
				pollCtx, cancel := context.WithCancel(ctx)
				h.pollers[client.RunID] = cancel
				h.tokens[client.RunID] = client.Token
				go h.poll(pollCtx, client.RunID, client.snapshot)
			}
			h.mu.Unlock()
			h.gauge(1)

		case client := <-h.Unregister:
			h.mu.Lock()
			if h.remove(client) {
				h.gauge(-1)
			}
			h.settle(client.RunID, client.Token)
			h.mu.Unlock()

		case runID := <-h.finished:
			h.mu.Lock()
			for client := range h.runs[runID] {
				h.remove(client)
				h.gauge(-1)
			}
			h.settle(runID, "")
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) bool {
	subs, ok := h.runs[client.RunID]
	if !ok || !subs[client] {
		return false
	}
	delete(subs, client)
	close(client.Send)
	return true
}

// settle stops the run's poller once nobody is left, or moves the poller
// off gone, a token no remaining subscriber holds. mu must be held.
func (h *Hub) settle(runID, gone string) {
	subs := h.runs[runID]
	if len(subs) == 0 {
		delete(h.runs, runID)
		delete(h.tokens, runID)
		if cancel, ok := h.pollers[runID]; ok {
			cancel()
			delete(h.pollers, runID)
		}
		return
	}
	if gone == "" || h.tokens[runID] != gone {
		return
	}
	for client := range subs {
		if client.Token != gone {
			h.tokens[runID] = client.Token
			return
		}
	}
}

// revoke drops the subscribers holding a token the API rejected and reports
// whether anyone is left to poll for.
func (h *Hub) revoke(runID, token string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	payload, _ := json.Marshal(Message{Type: "error", Error: "Your session can no longer read this run"})
	for client := range h.runs[runID] {
		if client.Token != token {
			continue
		}
		select {
		case client.Send <- payload:
		default:
		}
		h.remove(client)
		h.gauge(-1)
	}
	h.settle(runID, token)
	return len(h.runs[runID]) > 0
}

func (h *Hub) token(runID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tokens[runID]
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for runID, cancel := range h.pollers {
		cancel()
		delete(h.pollers, runID)
	}
	for runID, subs := range h.runs {
		for client := range subs {
			delete(subs, client)
			close(client.Send)
			h.gauge(-1)
		}
		delete(h.runs, runID)
		delete(h.tokens, runID)
	}
}

func (h *Hub) gauge(delta float64) {
	if h.metrics != nil {
		h.metrics.PipelineSubscribers.Add(delta)
	}
}

// denied reports whether the API refused the token for this run.
func denied(err error) bool {
	if errors.Is(err, upstream.ErrUnauthorized) {
		return true
	}
	var apiErr *upstream.APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden
}

// poll pushes status until the run is terminal or nobody is watching.
// last is the status subscribers already hold.
func (h *Hub) poll(ctx context.Context, runID string, last *models.PipelineStatus) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		token := h.token(runID)
		st, err := h.source.PipelineStatus(ctx, token, runID)
		switch {
		case ctx.Err() != nil:
			return
		case denied(err):
			h.log.Info("Pipeline subscriber token rejected", "run_id", runID, "error", err)
			if !h.revoke(runID, token) {
				return
			}
			// Retry right away with the next subscriber's token.
			continue
		case err != nil:
			h.log.Warn("Pipeline status poll failed", "run_id", runID, "error", err)
			h.broadcast(runID, Message{Type: "error", Error: "Pipeline status is unavailable"})
			if errors.Is(err, upstream.ErrNotFound) {
				h.finish(ctx, runID)
				return
			}
		default:
			if last == nil || changed(*last, *st) {
				h.broadcast(runID, Message{Type: "status", Status: st})
				last = st
			}
			if st.Terminal() {
				h.finish(ctx, runID)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Hub) finish(ctx context.Context, runID string) {
	select {
	case h.finished <- runID:
	case <-ctx.Done():
	}
}

func changed(a, b models.PipelineStatus) bool {
	return a.Status != b.Status || a.Stage != b.Stage || a.Progress != b.Progress || a.Message != b.Message
}

func (h *Hub) broadcast(runID string, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to encode pipeline message", "error", err)
		return
	}
	h.BroadcastToRun(runID, payload)
}

// BroadcastToRun queues payload for every subscriber of runID. A full
// queue drops the message for that subscriber.
func (h *Hub) BroadcastToRun(runID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.runs[runID] {
		select {
		case client.Send <- payload:
		default:
			h.log.Debug("Dropping pipeline message for slow subscriber", "run_id", runID, "user_id", client.UserID)
		}
	}
}

// Subscribers returns the number of clients watching runID.
func (h *Hub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.runs[runID])
}

// ReadPump drains control frames until the peer goes away.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Debug("Pipeline subscriber closed unexpectedly", "run_id", c.RunID, "error", err)
			}
			return
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// internal/events/hub.go

// Package events fans out state-change notifications to live WebSocket
// clients, scoped by (tenant, topic). Delivery is best-effort: a slow
// consumer's buffer fills and further messages to it are dropped rather than
// blocking the publisher.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var dropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "opsgate_events_dropped_total",
	Help: "Events dropped because a subscriber's buffer was full.",
})

// Message is the push payload sent to subscribed clients.
type Message struct {
	Topic     string `json:"topic"`
	Event     string `json:"event"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
}

// sendBuffer bounds the per-connection queue. Full buffer = drop.
const sendBuffer = 32

type subKey struct {
	tenantID string
	topic    string
}

type client struct {
	tenantID string
	send     chan []byte

	mu     sync.Mutex
	closed bool
	topics map[string]struct{}
}

// trySend queues raw without blocking. The client mutex serializes sends
// against shutdown, so a publisher can never hit a closed channel.
func (c *client) trySend(raw []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub indexes live connections by (tenant, topic). The index lock covers
// only map maintenance; delivery goes through per-client buffered channels
// and never blocks under the lock.
type Hub struct {
	mu      sync.RWMutex
	subs    map[subKey]map[*client]struct{}
	clients map[*client]struct{}

	maxConnections int
	maxTopics      int
	log            *zap.SugaredLogger
}

func NewHub(maxConnections, maxTopics int, log *zap.SugaredLogger) *Hub {
	if maxConnections <= 0 {
		maxConnections = 1000
	}
	if maxTopics <= 0 {
		maxTopics = 16
	}
	return &Hub{
		subs:           map[subKey]map[*client]struct{}{},
		clients:        map[*client]struct{}{},
		maxConnections: maxConnections,
		maxTopics:      maxTopics,
		log:            log,
	}
}

// register admits a connection, or reports false at the process cap.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= h.maxConnections {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.mu.Lock()
	for t := range c.topics {
		k := subKey{c.tenantID, t}
		if set, ok := h.subs[k]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, k)
			}
		}
	}
	c.mu.Unlock()
	c.shutdown()
}

// subscribe adds topics up to the per-connection cap; extra topics are
// reported back to the client as rejected.
func (h *Hub) subscribe(c *client, topics []string) (added, rejected []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		if t == "" {
			continue
		}
		if _, ok := c.topics[t]; ok {
			continue
		}
		if len(c.topics) >= h.maxTopics {
			rejected = append(rejected, t)
			continue
		}
		c.topics[t] = struct{}{}
		k := subKey{c.tenantID, t}
		if h.subs[k] == nil {
			h.subs[k] = map[*client]struct{}{}
		}
		h.subs[k][c] = struct{}{}
		added = append(added, t)
	}
	return added, rejected
}

func (h *Hub) unsubscribe(c *client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		if _, ok := c.topics[t]; !ok {
			continue
		}
		delete(c.topics, t)
		k := subKey{c.tenantID, t}
		if set, ok := h.subs[k]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, k)
			}
		}
	}
}

// Publish fans out to every live subscriber of (tenantID, topic). Non-blocking
// per connection: drop-on-full.
func (h *Hub) Publish(tenantID, topic, event string, payload any) {
	msg := Message{
		Topic:     topic,
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		h.log.Warnw("event marshal failed", "topic", topic, "err", err)
		return
	}

	h.mu.RLock()
	set := h.subs[subKey{tenantID, topic}]
	targets := make([]*client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.trySend(raw) {
			dropped.Inc()
		}
	}
}

// Subscription is an in-process subscriber handle. It counts against the
// same connection cap as a WebSocket client.
type Subscription struct {
	C      <-chan Message
	hub    *Hub
	client *client
}

// Close detaches the subscriber and drains its channel.
func (s *Subscription) Close() {
	s.hub.unregister(s.client)
}

// Subscribe attaches an in-process consumer to (tenantID, topics). Returns
// nil when the connection cap is reached.
func (h *Hub) Subscribe(tenantID string, topics ...string) *Subscription {
	c := &client{
		tenantID: tenantID,
		send:     make(chan []byte, sendBuffer),
		topics:   map[string]struct{}{},
	}
	if !h.register(c) {
		return nil
	}
	h.subscribe(c, topics)

	out := make(chan Message, sendBuffer)
	go func() {
		defer close(out)
		for raw := range c.send {
			var m Message
			if json.Unmarshal(raw, &m) == nil {
				select {
				case out <- m:
				default:
				}
			}
		}
	}()
	return &Subscription{C: out, hub: h, client: c}
}

// ConnectionCount reports live connections, for health reporting and tests.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

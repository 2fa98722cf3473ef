// Package notify delivers change events to registered observers, coalescing
// events raised during a batch into a single delivery per event kind.
package notify

import "sync"

// Event identifies what changed.
type Event string

// Events posted during a sync.
const (
	ContainerChanged Event = "container_changed"
	StatusesChanged  Event = "statuses_changed"
	ArticlesChanged  Event = "articles_changed"
)

// Handler receives an event after it is posted (or when the enclosing batch
// ends). Handlers run on the posting goroutine.
type Handler func(Event)

// Center fans events out to subscribed handlers. During a batch, repeated
// posts of the same event collapse into one delivery at EndBatch.
type Center struct {
	mu       sync.Mutex
	handlers []Handler
	batching bool
	deferred map[Event]bool
	order    []Event
}

// NewCenter returns an empty notification center.
func NewCenter() *Center {
	return &Center{deferred: make(map[Event]bool)}
}

// Subscribe registers a handler for all events.
func (c *Center) Subscribe(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Post delivers the event immediately, or defers it if a batch is open.
func (c *Center) Post(e Event) {
	c.mu.Lock()
	if c.batching {
		if !c.deferred[e] {
			c.deferred[e] = true
			c.order = append(c.order, e)
		}
		c.mu.Unlock()
		return
	}
	handlers := make([]Handler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(e)
	}
}

// BeginBatch defers event delivery until EndBatch. Batches do not nest.
func (c *Center) BeginBatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batching = true
}

// EndBatch delivers each deferred event once, in first-posted order.
func (c *Center) EndBatch() {
	c.mu.Lock()
	events := c.order
	c.order = nil
	c.deferred = make(map[Event]bool)
	c.batching = false
	handlers := make([]Handler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, e := range events {
		for _, h := range handlers {
			h(e)
		}
	}
}

package infrastructure

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"project_associa/internal/entities"

	"github.com/google/uuid"
)

var ErrHubClosed = errors.New("notification hub closed")

// Sink consumes notification events outside the request path (Telegram, Redis, ...).
type Sink interface {
	Deliver(ctx context.Context, evt entities.Event) error
}

// Hub fans notification events out to subscribers. It lives as long as the process and is
// torn down with Close. Publishing never blocks: a subscriber whose buffer is full misses
// the event. Events are best-effort and never the source of truth.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan entities.Event
	closed      bool

	sinks   sync.WaitGroup
	logger  *slog.Logger
	metrics *Metrics
}

func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]chan entities.Event),
		logger:      logger,
		metrics:     metrics,
	}
}

// Subscribe registers a buffered subscriber. The channel is closed by Unsubscribe or Close.
func (h *Hub) Subscribe(buffer int) (string, <-chan entities.Event) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan entities.Event, buffer)
	id := uuid.NewString()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Publish delivers evt to every subscriber with buffer room. It only fails after Close.
func (h *Hub) Publish(ctx context.Context, evt entities.Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHubClosed
	}
	for id, ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
			h.metrics.EventDropped()
			h.logger.Debug("notification dropped for slow subscriber", "subscriber", id, "type", evt.Type)
		}
	}
	return nil
}

// Attach subscribes sink and feeds it from a goroutine until the hub is closed.
func (h *Hub) Attach(name string, sink Sink, buffer int, timeout time.Duration) {
	id, events := h.Subscribe(buffer)
	h.sinks.Add(1)
	go func() {
		defer h.sinks.Done()
		for evt := range events {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			if err := sink.Deliver(ctx, evt); err != nil {
				h.logger.Warn("notification sink failed", "sink", name, "type", evt.Type, "error", err)
			}
			cancel()
		}
		h.logger.Debug("notification sink stopped", "sink", name, "subscriber", id)
	}()
}

// SubscriberCount is the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close closes every subscription and waits for attached sinks to drain. Safe to call twice.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
	h.mu.Unlock()

	h.sinks.Wait()
}

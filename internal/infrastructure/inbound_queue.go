package infrastructure

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"project_associa/internal/entities"
)

// InboundHandler processes one inbound event.
type InboundHandler func(ctx context.Context, evt entities.InboundEvent) error

// InboundQueue hands device events to one worker per session, so events of a session
// are processed one at a time in the order they were enqueued. Workers stop with the
// queue's context; events still buffered at that point are dropped.
type InboundQueue struct {
	ctx     context.Context
	handle  InboundHandler
	buffer  int
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	queues map[string]chan entities.InboundEvent
	wg     sync.WaitGroup
}

func NewInboundQueue(ctx context.Context, buffer int, timeout time.Duration, handle InboundHandler, logger *slog.Logger) *InboundQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &InboundQueue{
		ctx:     ctx,
		handle:  handle,
		buffer:  buffer,
		timeout: timeout,
		logger:  logger,
		queues:  make(map[string]chan entities.InboundEvent),
	}
}

// Enqueue blocks while the session's buffer is full. It returns false once the queue is stopped.
func (q *InboundQueue) Enqueue(evt entities.InboundEvent) bool {
	ch := q.session(evt.Session)
	if ch == nil {
		return false
	}
	select {
	case ch <- evt:
		return true
	case <-q.ctx.Done():
		return false
	}
}

func (q *InboundQueue) session(name string) chan entities.InboundEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx.Err() != nil {
		return nil
	}
	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan entities.InboundEvent, q.buffer)
		q.queues[name] = ch
		q.wg.Add(1)
		go q.work(name, ch)
	}
	return ch
}

func (q *InboundQueue) work(session string, ch chan entities.InboundEvent) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			if n := len(ch); n > 0 {
				q.logger.Warn("inbound events dropped on shutdown", "session", session, "count", n)
			}
			return
		case evt := <-ch:
			q.process(evt)
		}
	}
}

func (q *InboundQueue) process(evt entities.InboundEvent) {
	ctx, cancel := q.ctx, context.CancelFunc(func() {})
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(q.ctx, q.timeout)
	}
	defer cancel()
	if err := q.handle(ctx, evt); err != nil {
		q.logger.Warn("device message not processed", "session", evt.Session, "error", err)
	}
}

// Wait blocks until every worker has returned. Cancel the queue's context first.
func (q *InboundQueue) Wait() {
	q.wg.Wait()
}

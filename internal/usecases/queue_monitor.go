package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/interfaces"
)

// QueueMonitor alerts once per conversation that waits in fila_humano longer than timeout.
type QueueMonitor struct {
	conversations interfaces.ConversationStore
	publisher     interfaces.Publisher
	interval      time.Duration
	timeout       time.Duration
	logger        *slog.Logger
	now           func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	notified map[string]struct{}
}

func NewQueueMonitor(conversations interfaces.ConversationStore, publisher interfaces.Publisher, interval, timeout time.Duration, logger *slog.Logger) *QueueMonitor {
	return &QueueMonitor{
		conversations: conversations,
		publisher:     publisher,
		interval:      interval,
		timeout:       timeout,
		logger:        logger,
		now:           time.Now,
		notified:      make(map[string]struct{}),
	}
}

// Start launches the polling loop. Calling Start on a running monitor is a no-op.
func (q *QueueMonitor) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return
	}
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})
	go q.run(ctx, q.done)
	q.logger.Info("queue monitor started", "interval", q.interval, "timeout", q.timeout)
}

// Stop halts the loop and waits for it to exit. Safe to call more than once.
func (q *QueueMonitor) Stop() {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel, q.done = nil, nil
	q.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (q *QueueMonitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Check(ctx)
		}
	}
}

// Check publishes queue_timeout for every conversation queued since before now-timeout that
// has not been reported for its current queue entry. It returns the number of new alerts.
func (q *QueueMonitor) Check(ctx context.Context) int {
	now := q.now()
	overdue, err := q.conversations.ListQueuedBefore(ctx, now.Add(-q.timeout))
	if err != nil {
		q.logger.Warn("queue monitor query failed", "error", err)
		return 0
	}

	current := make(map[string]struct{}, len(overdue))
	sent := 0
	for _, c := range overdue {
		key := queueEntryKey(c)
		current[key] = struct{}{}

		q.mu.Lock()
		_, seen := q.notified[key]
		q.notified[key] = struct{}{}
		q.mu.Unlock()
		if seen {
			continue
		}

		waited := now.Sub(*c.QueuedAt)
		publish(ctx, q.publisher, q.logger, entities.Event{
			Type:           entities.EventQueueTimeout,
			AssociationID:  c.AssociationID,
			ConversationID: c.ID,
			PatientID:      c.PatientID,
			Status:         c.Status,
			Data: map[string]interface{}{
				"interlocutor":   c.InterlocutorName,
				"waited_seconds": int(waited.Seconds()),
			},
		})
		sent++
	}

	// forget conversations that left the queue so a later requeue alerts again
	q.mu.Lock()
	for key := range q.notified {
		if _, ok := current[key]; !ok {
			delete(q.notified, key)
		}
	}
	q.mu.Unlock()

	if sent > 0 {
		q.logger.Info("queue timeout alerts published", "count", sent)
	}
	return sent
}

func queueEntryKey(c entities.Conversation) string {
	return fmt.Sprintf("%d@%d", c.ID, c.QueuedAt.UnixNano())
}

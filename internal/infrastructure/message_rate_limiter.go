package infrastructure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"project_associa/internal/interfaces"

	"golang.org/x/time/rate"
)

// ThrottledMessenger paces outbound messages per gateway session so a burst of
// replies does not get the WhatsApp number flagged.
type ThrottledMessenger struct {
	next        interfaces.Messenger
	mu          sync.Mutex
	buckets     map[string]*sessionBucket
	rate        rate.Limit
	burst       int
	idleTimeout time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

type sessionBucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewThrottledMessenger wraps next with a token bucket per session.
// perSecond: messages per second allowed
// burst: maximum burst capacity
func NewThrottledMessenger(next interfaces.Messenger, perSecond float64, burst int) *ThrottledMessenger {
	t := &ThrottledMessenger{
		next:        next,
		buckets:     make(map[string]*sessionBucket),
		rate:        rate.Limit(perSecond),
		burst:       burst,
		idleTimeout: 10 * time.Minute,
		stop:        make(chan struct{}),
	}

	go t.cleanup(5 * time.Minute)

	return t
}

// SendText waits for a token of the session, then delivers. The wait honors ctx.
func (t *ThrottledMessenger) SendText(ctx context.Context, session, chatID, text string) error {
	if err := t.limiter(session).Wait(ctx); err != nil {
		return fmt.Errorf("send throttled: %w", err)
	}
	return t.next.SendText(ctx, session, chatID, text)
}

func (t *ThrottledMessenger) limiter(session string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[session]
	if !ok {
		b = &sessionBucket{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.buckets[session] = b
	}
	b.lastUsed = time.Now()
	return b.limiter
}

// Sessions returns how many sessions currently hold a bucket.
func (t *ThrottledMessenger) Sessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

// Close stops the cleanup goroutine.
func (t *ThrottledMessenger) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// cleanup removes buckets idle for longer than idleTimeout
func (t *ThrottledMessenger) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.evictIdle(time.Now())
		}
	}
}

func (t *ThrottledMessenger) evictIdle(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for session, b := range t.buckets {
		if now.Sub(b.lastUsed) > t.idleTimeout {
			delete(t.buckets, session)
		}
	}
}

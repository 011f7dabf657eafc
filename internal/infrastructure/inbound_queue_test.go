package infrastructure

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"project_associa/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboundQueueKeepsSessionOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	got := map[string][]string{}
	var wg sync.WaitGroup
	q := NewInboundQueue(ctx, 4, time.Second, func(ctx context.Context, evt entities.InboundEvent) error {
		defer wg.Done()
		time.Sleep(time.Duration(rand.Intn(300)) * time.Microsecond)
		mu.Lock()
		got[evt.Session] = append(got[evt.Session], evt.Payload.Body)
		mu.Unlock()
		return nil
	}, nil)

	var want []string
	for i := 0; i < 30; i++ {
		body := strconv.Itoa(i)
		want = append(want, body)
		for _, session := range []string{"abrace", "outra"} {
			wg.Add(1)
			require.True(t, q.Enqueue(entities.InboundEvent{Event: "message", Session: session, Payload: entities.InboundPayload{Body: body}}))
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got["abrace"])
	assert.Equal(t, want, got["outra"])
}

func TestInboundQueueStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	var handlerErr error
	q := NewInboundQueue(ctx, 1, 0, func(ctx context.Context, evt entities.InboundEvent) error {
		close(started)
		<-ctx.Done()
		handlerErr = ctx.Err()
		return errors.New("stopped")
	}, nil)

	require.True(t, q.Enqueue(entities.InboundEvent{Session: "abrace"}))
	<-started
	cancel()

	done := make(chan struct{})
	go func() {
		q.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not stop")
	}
	assert.ErrorIs(t, handlerErr, context.Canceled)
	assert.False(t, q.Enqueue(entities.InboundEvent{Session: "abrace"}))
}

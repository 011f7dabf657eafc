package infrastructure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMessenger struct {
	mu    sync.Mutex
	sends map[string]int
}

func (m *countingMessenger) SendText(_ context.Context, session, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sends == nil {
		m.sends = map[string]int{}
	}
	m.sends[session]++
	return nil
}

func TestThrottledMessengerBurstThenWait(t *testing.T) {
	next := &countingMessenger{}
	tm := NewThrottledMessenger(next, 0.001, 2)
	defer tm.Close()

	ctx := context.Background()
	require.NoError(t, tm.SendText(ctx, "abrace", "1@c.us", "a"))
	require.NoError(t, tm.SendText(ctx, "abrace", "1@c.us", "b"))

	// third message would wait far longer than the deadline
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := tm.SendText(short, "abrace", "1@c.us", "c")
	assert.Error(t, err)
	assert.Equal(t, 2, next.sends["abrace"])

	// other sessions have their own bucket
	require.NoError(t, tm.SendText(ctx, "outra", "1@c.us", "a"))
	assert.Equal(t, 1, next.sends["outra"])
	assert.Equal(t, 2, tm.Sessions())
}

func TestThrottledMessengerEvictsIdleSessions(t *testing.T) {
	tm := NewThrottledMessenger(&countingMessenger{}, 10, 1)
	defer tm.Close()

	require.NoError(t, tm.SendText(context.Background(), "abrace", "1@c.us", "oi"))
	tm.evictIdle(time.Now())
	assert.Equal(t, 1, tm.Sessions())

	tm.evictIdle(time.Now().Add(11 * time.Minute))
	assert.Equal(t, 0, tm.Sessions())
}

package infrastructure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatientLocksSerializeSameKey(t *testing.T) {
	pl := NewPatientLocks()
	key := PatientKey(1, "11999999999")
	assert.Equal(t, "1:11999999999", key)

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := pl.Lock(key)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, pl.Len())
}

func TestPatientLocksIndependentKeys(t *testing.T) {
	pl := NewPatientLocks()
	unlockA := pl.Lock(PatientKey(1, "a"))

	acquired := make(chan struct{})
	go func() {
		unlock := pl.Lock(PatientKey(2, "a"))
		unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("different association blocked on another key")
	}
	unlockA()
	unlockA()
	assert.Equal(t, 0, pl.Len())
}

func TestPatientLocksLockContextGivesUp(t *testing.T) {
	pl := NewPatientLocks()
	key := PatientKey(1, "11999999999")
	unlock := pl.Lock(key)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	noop, err := pl.LockContext(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	noop()
	assert.Equal(t, 1, pl.Len(), "holder keeps its entry")

	unlock()
	assert.Equal(t, 0, pl.Len())

	again, err := pl.LockContext(context.Background(), key)
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, pl.Len())
}

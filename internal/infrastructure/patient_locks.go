package infrastructure

import (
	"context"
	"fmt"
	"sync"
)

// patientLock is reference counted so idle entries are dropped from the map.
// The one-slot channel is the lock itself, so waiters can give up on ctx.
type patientLock struct {
	sem  chan struct{}
	refs int
}

// PatientLocks serializes inbound processing per patient inside one process, so two
// rapid messages from the same phone are handled in arrival order. Database constraints
// stay authoritative across processes.
type PatientLocks struct {
	locks map[string]*patientLock
	mu    sync.Mutex
}

func NewPatientLocks() *PatientLocks {
	return &PatientLocks{
		locks: make(map[string]*patientLock),
	}
}

// PatientKey builds the lock key for a canonical phone inside an association.
func PatientKey(associationID int, canonicalPhone string) string {
	return fmt.Sprintf("%d:%s", associationID, canonicalPhone)
}

// Lock blocks until key is free and returns the matching unlock func.
func (pl *PatientLocks) Lock(key string) (unlock func()) {
	unlock, _ = pl.LockContext(context.Background(), key)
	return unlock
}

// LockContext is Lock bounded by ctx. On ctx expiry it returns ctx.Err() and holds nothing.
func (pl *PatientLocks) LockContext(ctx context.Context, key string) (unlock func(), err error) {
	pl.mu.Lock()
	l, exists := pl.locks[key]
	if !exists {
		l = &patientLock{sem: make(chan struct{}, 1)}
		pl.locks[key] = l
	}
	l.refs++
	pl.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		pl.release(key, l)
		return func() {}, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			pl.release(key, l)
		})
	}, nil
}

func (pl *PatientLocks) release(key string, l *patientLock) {
	pl.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(pl.locks, key)
	}
	pl.mu.Unlock()
}

// Len returns the number of keys currently held or awaited.
func (pl *PatientLocks) Len() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.locks)
}

package service

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// WriterLocks serialises mutating operations per tournament so audit records keep
// causal order. Reads never take a lock.
type WriterLocks struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// NewWriterLocks constructs an empty registry shared by every mutating service.
func NewWriterLocks() *WriterLocks {
	return &WriterLocks{locks: make(map[string]*semaphore.Weighted)}
}

// acquire blocks until the tournament's writer slot is free or ctx is done. The
// returned func releases the slot.
func (w *WriterLocks) acquire(ctx context.Context, tournamentID string) (func(), error) {
	w.mu.Lock()
	sem, ok := w.locks[tournamentID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		w.locks[tournamentID] = sem
	}
	w.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}

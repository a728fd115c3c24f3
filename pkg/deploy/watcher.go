package deploy

import (
	"context"
	"errors"
	"sync"
)

// ErrWatcherClosed is returned by Watcher.Next once the terminal change has
// already been delivered to the calling observer.
var ErrWatcherClosed = errors.New("watcher closed")

// Watcher is the change log of a single deployment. All observers of the
// deployment share the same log; each observer id keeps its own delivery
// offset, so every observer sees every change at least once, in arrival
// order.
type Watcher struct {
	mu      sync.Mutex
	changes []Change
	closed  bool
	wake    chan struct{}
	offsets map[int]int
}

func newWatcher() *Watcher {
	return &Watcher{
		wake:    make(chan struct{}),
		offsets: make(map[int]int),
	}
}

// Put appends a change and wakes every suspended Next call.
func (w *Watcher) Put(change Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.append(change)
}

// Close appends the terminal change and marks the log complete. Observers
// still receive everything they have not consumed yet; after that, Next
// fails with ErrWatcherClosed.
func (w *Watcher) Close(change Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.append(change)
	w.closed = true
}

func (w *Watcher) append(change Change) {
	w.changes = append(w.changes, change)
	close(w.wake)
	w.wake = make(chan struct{})
}

// Last returns the most recent change, if any.
func (w *Watcher) Last() (Change, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.changes) == 0 {
		return Change{}, false
	}
	return w.changes[len(w.changes)-1], true
}

// Next returns the changes the given observer has not seen yet, suspending
// until at least one exists. It never returns an empty, nil-error result.
func (w *Watcher) Next(ctx context.Context, observerID int) ([]Change, error) {
	w.mu.Lock()
	for {
		offset := w.offsets[observerID]
		if offset < len(w.changes) {
			pending := make([]Change, len(w.changes)-offset)
			copy(pending, w.changes[offset:])
			w.offsets[observerID] = len(w.changes)
			w.mu.Unlock()
			return pending, nil
		}
		if w.closed {
			w.mu.Unlock()
			return nil, ErrWatcherClosed
		}
		wake := w.wake
		w.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		w.mu.Lock()
	}
}

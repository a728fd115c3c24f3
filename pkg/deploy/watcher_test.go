package deploy

import (
	"context"
	"testing"
	"time"
)

func TestWatcherReturnsPendingChanges(t *testing.T) {
	w := newWatcher()
	w.Put(NewPositionChange(0, 0))
	w.Put(NewPositionChange(0, 1))

	changes, err := w.Next(context.Background(), 0)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("len(changes) = %d, want 2", len(changes))
	}
}

func TestWatcherNeverReturnsEmpty(t *testing.T) {
	w := newWatcher()

	done := make(chan []Change, 1)
	go func() {
		changes, err := w.Next(context.Background(), 0)
		if err != nil {
			t.Errorf("Next error: %v", err)
		}
		done <- changes
	}()

	select {
	case <-done:
		t.Fatal("Next returned without any change")
	case <-time.After(20 * time.Millisecond):
	}

	w.Put(NewPositionChange(0, 0))
	select {
	case changes := <-done:
		if len(changes) != 1 {
			t.Errorf("len(changes) = %d, want 1", len(changes))
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not resume after Put")
	}
}

func TestWatcherObserversShareTheLog(t *testing.T) {
	w := newWatcher()
	w.Put(NewPositionChange(0, 1))

	first, err := w.Next(context.Background(), 1)
	if err != nil || len(first) != 1 {
		t.Fatalf("Next(1) = %v, %v", first, err)
	}

	w.Put(NewPositionChange(0, 0))

	// A later observer receives the full history.
	second, err := w.Next(context.Background(), 2)
	if err != nil || len(second) != 2 {
		t.Fatalf("Next(2) = %v, %v", second, err)
	}

	// The first observer only receives what it has not seen.
	first, err = w.Next(context.Background(), 1)
	if err != nil || len(first) != 1 {
		t.Fatalf("Next(1) = %v, %v", first, err)
	}
	if first[0].Status != StatusStarted {
		t.Errorf("status = %q, want started", first[0].Status)
	}
}

func TestWatcherClosed(t *testing.T) {
	w := newWatcher()
	w.Put(NewPositionChange(0, 0))
	w.Close(NewChange(0, StatusCompleted, "boom"))

	// The terminal change is still delivered.
	changes, err := w.Next(context.Background(), 0)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("len(changes) = %d, want 2", len(changes))
	}
	last := changes[len(changes)-1]
	if last.Status != StatusCompleted || last.Error != "boom" {
		t.Errorf("terminal change = %+v", last)
	}

	// Once consumed, the watcher is exhausted for this observer.
	if _, err := w.Next(context.Background(), 0); err != ErrWatcherClosed {
		t.Errorf("Next error = %v, want ErrWatcherClosed", err)
	}

	// Further changes are dropped after close.
	w.Put(NewPositionChange(0, 1))
	if last, _ := w.Last(); last.Status != StatusCompleted {
		t.Errorf("last change = %+v, want completed", last)
	}
}

func TestWatcherNextHonorsContext(t *testing.T) {
	w := newWatcher()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := w.Next(ctx, 0)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Next error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not resume on cancellation")
	}
}

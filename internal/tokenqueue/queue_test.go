package tokenqueue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestOfferDedupsAndDrains(t *testing.T) {
	var mu sync.Mutex
	var processed []string
	done := make(chan struct{})

	q := New(func(ctx context.Context, mint string) {
		mu.Lock()
		processed = append(processed, mint)
		n := len(processed)
		mu.Unlock()
		if n == 2 {
			close(done)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	if !q.Offer("MintA") {
		t.Error("expected first offer of MintA to be newly enqueued")
	}
	if q.Offer("MintA") {
		t.Error("expected duplicate offer of MintA to be a no-op")
	}
	if !q.Offer("MintB") {
		t.Error("expected first offer of MintB to be newly enqueued")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for queue to drain both mints")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 2 {
		t.Fatalf("processed %v, want 2 distinct mints", processed)
	}
}

func TestOfferAfterCompletionReEnqueues(t *testing.T) {
	var calls int
	release := make(chan struct{})
	first := make(chan struct{})

	q := New(func(ctx context.Context, mint string) {
		calls++
		if calls == 1 {
			close(first)
			<-release
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	q.Offer("MintA")
	<-first
	close(release)

	time.Sleep(20 * time.Millisecond)
	if !q.Offer("MintA") {
		t.Error("expected MintA to be re-offerable once no longer pending")
	}
}

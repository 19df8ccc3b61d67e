// Package tokenqueue implements a deduplicating FIFO of token mints
// awaiting metadata enrichment (spec §4.6). A single worker drains it;
// offering an already-queued or in-flight mint is a no-op.
package tokenqueue

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Worker is invoked once per distinct mint that reaches the front of the
// queue. A panic in the worker is recovered and logged by the queue; the
// worker never blocks the offering side.
type Worker func(ctx context.Context, mint string)

// Queue is a deduplicating, single-worker FIFO.
type Queue struct {
	worker Worker

	mu      sync.Mutex
	pending map[string]struct{}
	order   []string

	notify chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a token queue. Call Start to begin draining it.
func New(worker Worker) *Queue {
	return &Queue{
		worker:  worker,
		pending: make(map[string]struct{}),
		notify:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Offer enqueues mint if it is not already queued or in-flight. Returns
// true if it was newly enqueued.
func (q *Queue) Offer(mint string) bool {
	q.mu.Lock()
	if _, exists := q.pending[mint]; exists {
		q.mu.Unlock()
		return false
	}
	q.pending[mint] = struct{}{}
	q.order = append(q.order, mint)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Start launches the single drain worker. No ordering guarantee across
// different mints is provided beyond FIFO offer order (spec §4.6).
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.drain(ctx)
}

func (q *Queue) drain(ctx context.Context) {
	defer q.wg.Done()

	for {
		mint, ok := q.pop()
		if !ok {
			select {
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("mint", mint).Msg("token enrichment worker panicked")
				}
			}()
			q.worker(ctx, mint)
		}()

		q.mu.Lock()
		delete(q.pending, mint)
		q.mu.Unlock()
	}
}

func (q *Queue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return "", false
	}
	mint := q.order[0]
	q.order = q.order[1:]
	return mint, true
}

// Len returns the number of mints currently pending or in-flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stop ends the drain worker and waits for it to exit.
func (q *Queue) Stop() {
	close(q.stopCh)
	q.wg.Wait()
}

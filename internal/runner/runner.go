// Package runner implements SupervisedRunner (spec §2): start/stop
// lifecycle around a StreamClient + EventRouter pipeline, graceful
// drain, and empty-subscription teardown. Lifecycle shape (goroutine
// launch, signal-driven shutdown, component Stop() calls in reverse
// dependency order) is grounded on cmd/bot/main.go's runHeadless.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"solana-tx-tracker/internal/poolmonitor"
	"solana-tx-tracker/internal/stream"
)

// Handler processes one inbound stream event.
type Handler interface {
	Handle(ctx context.Context, ev stream.Event)
}

// Runner owns one StreamClient subscription lifecycle. It is idle (no
// active subscription) until Start is called with a non-empty address
// set; Stop tears the subscription down (spec §2's "empty-subscription
// teardown"). Calling Start with an empty set returns an error and
// leaves any current subscription as it is.
type Runner struct {
	client     *stream.Client
	handler    Handler
	monitor    *poolmonitor.Monitor
	commitment stream.Commitment

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(client *stream.Client, handler Handler, monitor *poolmonitor.Monitor, commitment stream.Commitment) *Runner {
	return &Runner{
		client:     client,
		handler:    handler,
		monitor:    monitor,
		commitment: commitment,
	}
}

// Start begins the subscription over addresses. An empty address list
// is rejected: the runner stays idle rather than opening a
// zero-filter subscription that would see nothing.
func (r *Runner) Start(ctx context.Context, addresses []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(addresses) == 0 {
		return fmt.Errorf("runner: refusing to start with an empty address set")
	}
	if r.running {
		return fmt.Errorf("runner: already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	filter := stream.Filter{IncludeAddresses: addresses, Commitment: r.commitment}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := r.client.Run(runCtx, filter, func(ev stream.Event) {
			r.handler.Handle(runCtx, ev)
		})
		if err != nil && runCtx.Err() == nil {
			log.Error().Err(err).Msg("stream run exited unexpectedly")
		}
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	log.Info().Int("addresses", len(addresses)).Str("commitment", string(r.commitment)).Msg("tracker started")
	return nil
}

// Stop gracefully drains the current subscription: it asks the stream
// client to clear and close (spec §4.1), cancels the run goroutine,
// waits for it to exit, and transitions all active pool-monitor
// sessions to Cancelled.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.mu.Unlock()

	r.client.Stop()
	cancel()
	r.wg.Wait()

	if r.monitor != nil {
		r.monitor.Shutdown(ctx)
	}

	log.Info().Msg("tracker stopped")
	return nil
}

// Running reports whether a subscription is currently active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Package health implements the periodic component probes supplementing
// spec.md's control surface (spec.md §9.1 in this expansion). It is
// adapted from the trading bot's Checker: same periodic-ticker shape and
// Status type, repurposed from RPC/Telegram-listener probes to
// store/chain-RPC/stream-staleness probes.
package health

import (
	"context"
	"sync"
	"time"

	"solana-tx-tracker/internal/chainrpc"
	"solana-tx-tracker/internal/storage"
	"solana-tx-tracker/internal/stream"
)

// Status is the result of one component probe.
type Status struct {
	Name    string
	Healthy bool
	Latency time.Duration
	Error   string
}

// staleStreamAfter is how long a subscription may go without an event
// before the stream probe is reported unhealthy.
const staleStreamAfter = 60 * time.Second

// Checker periodically probes the store, chain RPC, and stream.
type Checker struct {
	mu       sync.RWMutex
	statuses []Status

	store  storage.Store
	rpc    *chainrpc.Client
	stream *stream.Client
}

// NewChecker builds a Checker. stream may be nil before the tracker has
// started its first subscription — the stream probe then reports healthy
// (nothing to be stale yet).
func NewChecker(store storage.Store, rpc *chainrpc.Client, streamClient *stream.Client) *Checker {
	return &Checker{store: store, rpc: rpc, stream: streamClient}
}

// Start begins periodic health checks every 10s, plus an immediate one.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check(ctx)
			}
		}
	}()

	c.check(ctx)
}

func (c *Checker) check(ctx context.Context) {
	statuses := []Status{
		c.checkStore(ctx),
		c.checkRPC(),
		c.checkStream(),
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

func (c *Checker) checkStore(ctx context.Context) Status {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.store.GetLatestSolPrice(ctx)
	status := Status{Name: "store", Latency: time.Since(start), Healthy: err == nil}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func (c *Checker) checkRPC() Status {
	return Status{Name: "chain_rpc", Healthy: c.rpc == nil || c.rpc.Healthy()}
}

func (c *Checker) checkStream() Status {
	if c.stream == nil {
		return Status{Name: "stream", Healthy: true}
	}
	last, ok := c.stream.LastEventAt()
	if !ok {
		return Status{Name: "stream", Healthy: true}
	}
	age := time.Since(last)
	return Status{Name: "stream", Healthy: age < staleStreamAfter, Latency: age}
}

// GetStatuses returns the most recent probe results.
func (c *Checker) GetStatuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statuses
}

// Healthy reports whether every probed component is currently healthy.
func (c *Checker) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

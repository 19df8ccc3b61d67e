// Package priceoracle periodically refreshes the SOL/USD price the
// enrichment pipeline reads for market-cap math (spec §4.3 step 3). The
// upstream price source is an external collaborator (spec §1); this
// package only owns the refresh loop and the store write-through.
package priceoracle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"solana-tx-tracker/internal/storage"
)

// Fetcher retrieves the current SOL/USD price from an upstream source.
type Fetcher interface {
	FetchSolUsd(ctx context.Context) (float64, error)
}

// Oracle refreshes a cached SOL/USD price on an interval and mirrors it
// into the store, so GetLatestSolPrice (spec §6) always reflects the
// last successful fetch even across process restarts.
type Oracle struct {
	fetcher  Fetcher
	store    storage.Store
	interval time.Duration

	current atomic.Value // holds float64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates an Oracle. interval is the refresh cadence (design
// guidance: a few seconds is plenty for market-cap purposes).
func New(fetcher Fetcher, store storage.Store, interval time.Duration) *Oracle {
	return &Oracle{
		fetcher:  fetcher,
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start performs an initial synchronous fetch (best-effort) and then
// refreshes in the background until Stop is called.
func (o *Oracle) Start(ctx context.Context) {
	if err := o.refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial SOL/USD fetch failed, will retry on schedule")
	}

	o.wg.Add(1)
	go o.loop(ctx)
}

func (o *Oracle) loop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("SOL/USD refresh failed")
			}
		}
	}
}

func (o *Oracle) refresh(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	price, err := o.fetcher.FetchSolUsd(fetchCtx)
	if err != nil {
		return err
	}

	o.current.Store(price)
	if err := o.store.SetLatestSolPrice(ctx, price); err != nil {
		log.Warn().Err(err).Msg("failed to persist SOL/USD price")
	}
	return nil
}

// Get returns the last fetched price, or 0 if none has succeeded yet.
func (o *Oracle) Get() float64 {
	v := o.current.Load()
	if v == nil {
		return 0
	}
	return v.(float64)
}

// Stop ends the refresh loop and waits for it to exit.
func (o *Oracle) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}

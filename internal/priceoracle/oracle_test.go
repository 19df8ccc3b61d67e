package priceoracle

import (
	"context"
	"testing"
	"time"

	"solana-tx-tracker/internal/storage"
)

type fakeFetcher struct {
	price float64
	err   error
	calls int
}

func (f *fakeFetcher) FetchSolUsd(ctx context.Context) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.price, nil
}

func TestOracleRefreshesAndPersists(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()

	fetcher := &fakeFetcher{price: 150.25}
	oracle := New(fetcher, store, 20*time.Millisecond)

	ctx := context.Background()
	oracle.Start(ctx)
	defer oracle.Stop()

	if oracle.Get() != 150.25 {
		t.Errorf("Get() = %v, want 150.25 after initial synchronous fetch", oracle.Get())
	}

	time.Sleep(50 * time.Millisecond)

	persisted, err := store.GetLatestSolPrice(ctx)
	if err != nil {
		t.Fatalf("GetLatestSolPrice: %v", err)
	}
	if persisted == nil || *persisted != 150.25 {
		t.Errorf("persisted price = %v, want 150.25", persisted)
	}
	if fetcher.calls < 2 {
		t.Errorf("expected at least 2 fetches (initial + ticked), got %d", fetcher.calls)
	}
}

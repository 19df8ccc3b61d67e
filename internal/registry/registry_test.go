package registry

import (
	"context"
	"sync"
	"testing"

	"solana-tx-tracker/internal/storage"
	"solana-tx-tracker/internal/txevent"
)

func TestRecordFirstBuyRaceHasExactlyOneWinner(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()

	reg := New(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 2)
	sigs := []string{"sigA", "sigB"}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			won, err := reg.RecordFirst(ctx, txevent.Buy, "W1", "T1", int64(100+idx), sigs[idx], nil, nil)
			if err != nil {
				t.Errorf("RecordFirst: %v", err)
			}
			results[idx] = won
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, won := range results {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly one winner of the first-BUY race, got %d", winners)
	}
}

func TestIsFirstBuyTrueWhenNoRow(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()

	reg := New(store)
	first, err := reg.IsFirstBuy(context.Background(), "W1", "Tnew")
	if err != nil {
		t.Fatalf("IsFirstBuy: %v", err)
	}
	if !first {
		t.Error("expected true for an unseen (wallet,token) pair")
	}
}

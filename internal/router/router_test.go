package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"solana-tx-tracker/internal/chainrpc"
	"solana-tx-tracker/internal/enrich"
	"solana-tx-tracker/internal/poolmonitor"
	"solana-tx-tracker/internal/registry"
	"solana-tx-tracker/internal/storage"
	"solana-tx-tracker/internal/stream"
	"solana-tx-tracker/internal/tokenqueue"
	"solana-tx-tracker/internal/txevent"
)

type fakeDecoder struct {
	event *txevent.Event
	err   error
}

func (f fakeDecoder) Decode(raw txevent.RawTx) (*txevent.Event, error) {
	return f.event, f.err
}

type fakeOracle struct{}

func (fakeOracle) Get() float64 { return 0 }

func newEmptyRPCServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "getTokenAccountsByOwner":
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":[]}}`))
		case "getTokenSupply":
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":{"amount":"0","decimals":6}}}`))
		default:
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
		}
	}))
}

func newTestRouter(t *testing.T, decoder txevent.Decoder) (*Router, *storage.SQLiteStore, *tokenqueue.Queue) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ts := newEmptyRPCServer(t)
	t.Cleanup(ts.Close)

	rpc := chainrpc.NewClient(ts.URL, ts.URL, "")
	reg := registry.New(store)

	var mu sync.Mutex
	var offered []string
	queue := tokenqueue.New(func(ctx context.Context, mint string) {
		mu.Lock()
		offered = append(offered, mint)
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	queue.Start(ctx)
	t.Cleanup(queue.Stop)

	pipeline := enrich.New(store, rpc, fakeOracle{}, nil, reg, nil)
	monitor := poolmonitor.New(store, rpc, fakeOracle{}, time.Minute)

	return New(decoder, store, queue, pipeline, monitor), store, queue
}

func TestHandleDropsNilDecodedEvent(t *testing.T) {
	r, store, _ := newTestRouter(t, fakeDecoder{event: nil, err: nil})

	r.Handle(context.Background(), stream.Event{Signature: "Sig1", Slot: 1})

	count, err := store.GetBuyCountForToken(context.Background(), "W", "T")
	if err != nil {
		t.Fatalf("GetBuyCountForToken: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no side effects for a dropped event")
	}
}

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func TestHandleRoutesBuyToEnrichmentMerge(t *testing.T) {
	ev := &txevent.Event{
		Signature: "Sig1",
		Kind:      txevent.Buy,
		Platform:  "pumpfun",
		MintOut:   testMint,
		FeePayer:  "Wallet1",
	}
	r, store, _ := newTestRouter(t, fakeDecoder{event: ev})

	r.Handle(context.Background(), stream.Event{Signature: "Sig1", Slot: 100})

	// Enrichment runs in a goroutine; give it a moment to persist.
	deadline := time.After(2 * time.Second)
	for {
		pair, err := store.GetWalletTokenPair(context.Background(), "Wallet1", testMint)
		if err != nil {
			t.Fatalf("GetWalletTokenPair: %v", err)
		}
		if pair != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for enrichment to merge wallet-token pair")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHandleDropsMalformedMint(t *testing.T) {
	ev := &txevent.Event{
		Signature: "Sig3",
		Kind:      txevent.Buy,
		MintOut:   "not-a-real-mint",
		FeePayer:  "Wallet1",
	}
	r, store, _ := newTestRouter(t, fakeDecoder{event: ev})

	r.Handle(context.Background(), stream.Event{Signature: "Sig3", Slot: 1})

	pair, err := store.GetWalletTokenPair(context.Background(), "Wallet1", "not-a-real-mint")
	if err != nil {
		t.Fatalf("GetWalletTokenPair: %v", err)
	}
	if pair != nil {
		t.Error("malformed mint should never reach enrichment/persistence")
	}
}

func TestHandleNonTradeTransactionLeavesWalletTokenCounters(t *testing.T) {
	ev := &txevent.Event{Signature: "Sig2", Kind: txevent.Other, FeePayer: "Wallet1"}
	r, store, _ := newTestRouter(t, fakeDecoder{event: ev})

	r.Handle(context.Background(), stream.Event{Signature: "Sig2", Slot: 1})

	count, err := store.GetBuyCountForToken(context.Background(), "Wallet1", "Mint1")
	if err != nil {
		t.Fatalf("GetBuyCountForToken: %v", err)
	}
	if count != 0 {
		t.Errorf("OTHER transactions must not affect wallet-token counters")
	}
}

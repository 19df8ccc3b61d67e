package storage

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveTransactionIsWriteOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := TransactionRecord{Signature: "sig1", Platform: "raydium", Type: "BUY", FeePayer: "W1"}
	if err := store.SaveTransaction(ctx, rec); err != nil {
		t.Fatalf("first SaveTransaction: %v", err)
	}
	// Replaying the same signature must not error, and must not overwrite
	// the base fields (spec §8: stored record for sig written exactly once).
	rec.FeePayer = "W2"
	if err := store.SaveTransaction(ctx, rec); err != nil {
		t.Fatalf("replayed SaveTransaction: %v", err)
	}

	holding := true
	if err := store.UpdateTransactionDevHolding(ctx, "sig1", holding); err != nil {
		t.Fatalf("UpdateTransactionDevHolding: %v", err)
	}
}

func TestWalletTokenPairFirstBuyWriteOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mc1 := 1000.0
	if err := store.SaveWalletTokenPair(ctx, WalletTokenMerge{
		Wallet: "W1", Token: "T1", Kind: MergeBuy, Timestamp: 100, TxSignature: "sigA", MarketCap: &mc1,
	}); err != nil {
		t.Fatalf("first merge: %v", err)
	}

	mc2 := 2000.0
	if err := store.SaveWalletTokenPair(ctx, WalletTokenMerge{
		Wallet: "W1", Token: "T1", Kind: MergeBuy, Timestamp: 200, TxSignature: "sigB", MarketCap: &mc2,
	}); err != nil {
		t.Fatalf("second merge: %v", err)
	}

	pair, err := store.GetWalletTokenPair(ctx, "W1", "T1")
	if err != nil {
		t.Fatalf("GetWalletTokenPair: %v", err)
	}
	if pair == nil {
		t.Fatal("expected wallet-token pair to exist")
	}
	if pair.FirstBuyTimestamp == nil || *pair.FirstBuyTimestamp != 100 {
		t.Errorf("firstBuyTimestamp changed on second BUY: got %v, want 100", pair.FirstBuyTimestamp)
	}
	if pair.FirstBuyTx != "sigA" {
		t.Errorf("firstBuyTx changed on second BUY: got %q, want sigA", pair.FirstBuyTx)
	}

	buyCount, err := store.GetBuyCountForToken(ctx, "W1", "T1")
	if err != nil {
		t.Fatalf("GetBuyCountForToken: %v", err)
	}
	if buyCount != 2 {
		t.Errorf("buyCount = %d, want 2 (derived counter accumulates)", buyCount)
	}
}

func TestIsFirstBuyNoRowMeansTrue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.IsFirstBuy(ctx, "Wnew", "Tnew")
	if err != nil {
		t.Fatalf("IsFirstBuy: %v", err)
	}
	if !first {
		t.Error("expected IsFirstBuy to be true when no row exists")
	}

	if err := store.SaveWalletTokenPair(ctx, WalletTokenMerge{
		Wallet: "Wnew", Token: "Tnew", Kind: MergeBuy, Timestamp: 1, TxSignature: "s",
	}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	first, err = store.IsFirstBuy(ctx, "Wnew", "Tnew")
	if err != nil {
		t.Fatalf("IsFirstBuy after merge: %v", err)
	}
	if first {
		t.Error("expected IsFirstBuy to be false after a BUY was recorded")
	}
}

func TestTokenJobDedup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	queued, err := store.EnqueueTokenJob(ctx, "MintA")
	if err != nil || !queued {
		t.Fatalf("first enqueue: queued=%v err=%v", queued, err)
	}

	queued, err = store.EnqueueTokenJob(ctx, "MintA")
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if queued {
		t.Error("duplicate enqueue of an already-queued mint should be a no-op")
	}

	mint, ok, err := store.DequeueTokenJob(ctx)
	if err != nil || !ok || mint != "MintA" {
		t.Fatalf("DequeueTokenJob: mint=%q ok=%v err=%v", mint, ok, err)
	}

	if err := store.CompleteTokenJob(ctx, mint); err != nil {
		t.Fatalf("CompleteTokenJob: %v", err)
	}

	queued, err = store.EnqueueTokenJob(ctx, "MintA")
	if err != nil || !queued {
		t.Fatalf("re-enqueue after completion: queued=%v err=%v", queued, err)
	}
}

func TestInsertSessionThenFinalizeUpdatesTheInsertedRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := SessionKey{Wallet: "W2", Token: "T2"}
	if err := store.InsertSession(ctx, key, time.Now()); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}

	// Re-inserting the same (wallet,token) must not error or reset state
	// (a BUY event could be redelivered before the registry dedups it).
	if err := store.InsertSession(ctx, key, time.Now()); err != nil {
		t.Fatalf("duplicate InsertSession: %v", err)
	}

	if err := store.FinalizeSession(ctx, key, "deadline_exceeded", nil); err != nil {
		t.Fatalf("FinalizeSession: %v", err)
	}

	var state, reason string
	var finalizedAt *int64
	if err := store.db.QueryRowContext(ctx,
		`SELECT state, final_reason, finalized_at FROM monitoring_sessions WHERE wallet = ? AND token = ?`,
		key.Wallet, key.Token).Scan(&state, &reason, &finalizedAt); err != nil {
		t.Fatalf("read back session: %v", err)
	}
	if state != "deadline_exceeded" || reason != "deadline_exceeded" {
		t.Errorf("session not finalized correctly: state=%q reason=%q", state, reason)
	}
	if finalizedAt == nil {
		t.Error("expected finalized_at to be set, FinalizeSession matched zero rows")
	}
}

func TestFinalizeSessionRecordsTerminalPoint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := SessionKey{Wallet: "W1", Token: "T1"}
	_, err := store.db.ExecContext(ctx,
		`INSERT INTO monitoring_sessions (wallet, token, state, started_at) VALUES (?, ?, 'Active', ?)`,
		key.Wallet, key.Token, time.Now().Unix())
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	terminal := &PricePoint{SampledAt: time.Now(), Slot: 5, PriceSol: 0.01, PriceUsd: 1.5, MarketCap: 15000}
	if err := store.FinalizeSession(ctx, key, "sell_signal", terminal); err != nil {
		t.Fatalf("FinalizeSession: %v", err)
	}

	var state, reason string
	if err := store.db.QueryRowContext(ctx,
		`SELECT state, final_reason FROM monitoring_sessions WHERE wallet = ? AND token = ?`,
		key.Wallet, key.Token).Scan(&state, &reason); err != nil {
		t.Fatalf("read back session: %v", err)
	}
	if state != "sell_signal" || reason != "sell_signal" {
		t.Errorf("session not finalized correctly: state=%q reason=%q", state, reason)
	}
}

// Package registry implements the idempotent "first BUY / first SELL
// per (wallet,token)" ledger (spec §4.5). Every call goes straight to
// the store, whose write-once merge is authoritative; there is no
// in-memory cache in front of it. The package exposes the race-tolerant
// RecordFirst contract pool monitoring depends on.
package registry

import (
	"context"

	"solana-tx-tracker/internal/storage"
	"solana-tx-tracker/internal/txevent"
)

// Registry consults the store's write-once wallet-token merge.
type Registry struct {
	store storage.Store
}

func New(store storage.Store) *Registry {
	return &Registry{store: store}
}

// IsFirstBuy reports whether no row exists or firstBuyTimestamp is null
// (spec §4.5). Concurrent callers for the same (w,t) may both observe
// true — the store's merge, not this check, is authoritative.
func (r *Registry) IsFirstBuy(ctx context.Context, wallet, token string) (bool, error) {
	return r.store.IsFirstBuy(ctx, wallet, token)
}

func (r *Registry) IsFirstSell(ctx context.Context, wallet, token string) (bool, error) {
	return r.store.IsFirstSell(ctx, wallet, token)
}

// RecordFirst performs the write-once merge and reports whether this
// caller's timestamp ended up as the recorded first-event (i.e. whether
// it "won the race"). Per spec §4.5, two concurrent BUYs for the same
// (w,t) may both have observed IsFirstBuy()==true; only one of them wins
// the merge, and callers (PoolMonitor) must tolerate losing.
func (r *Registry) RecordFirst(ctx context.Context, kind txevent.Kind, wallet, token string, ts int64, txID string, marketCap *float64, openPositionCount *int) (won bool, err error) {
	mergeKind := storage.MergeBuy
	if kind == txevent.Sell {
		mergeKind = storage.MergeSell
	}

	if err := r.store.SaveWalletTokenPair(ctx, storage.WalletTokenMerge{
		Wallet:            wallet,
		Token:             token,
		Kind:              mergeKind,
		Timestamp:         ts,
		TxSignature:       txID,
		MarketCap:         marketCap,
		OpenPositionCount: openPositionCount,
	}); err != nil {
		return false, err
	}

	pair, err := r.store.GetWalletTokenPair(ctx, wallet, token)
	if err != nil {
		return false, err
	}
	if pair == nil {
		return false, nil
	}

	if kind == txevent.Sell {
		return pair.FirstSellTx == txID, nil
	}
	return pair.FirstBuyTx == txID, nil
}

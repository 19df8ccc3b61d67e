// Package storage defines the persistence contract the core requires
// (spec §6) and a SQLite-backed implementation of it. Any store that
// satisfies Store suffices; the core never type-asserts down to SQLite.
package storage

import (
	"context"
	"time"
)

// TransactionRecord is the row persisted for every BUY/SELL/OTHER
// transaction the router observes (spec §3, Transaction entity).
type TransactionRecord struct {
	Signature      string
	Platform       string
	Type           string // BUY | SELL | OTHER
	MintIn         string
	MintOut        string
	AmountIn       float64
	AmountOut      float64
	FeePayer       string
	BlockNumber    uint64
	BlockTimestamp int64

	MarketCap      *float64
	TotalSupply    *float64
	PriceSol       *float64
	PriceUsd       *float64
	DevStillHolding *bool
}

// WalletTokenPair mirrors spec §3's WalletTokenPair entity.
type WalletTokenPair struct {
	Wallet    string
	Token     string

	FirstBuyTimestamp  *int64
	FirstSellTimestamp *int64
	FirstBuyTx         string
	FirstSellTx        string
	FirstBuyMarketCap  *float64
	FirstSellMarketCap *float64

	OpenPositionCountAtFirstBuy *int
}

// SessionKey identifies a MonitoringSession / PricePoint owner.
type SessionKey struct {
	Wallet string
	Token  string
}

// PricePoint mirrors spec §3's PricePoint entity.
type PricePoint struct {
	SampledAt time.Time
	Slot      uint64
	PriceSol  float64
	PriceUsd  float64
	MarketCap float64
}

// MergeKind tells SaveWalletTokenPair which first-event field is
// eligible to be set by this call (write-once, per spec §3/§4.5).
type MergeKind string

const (
	MergeBuy  MergeKind = "BUY"
	MergeSell MergeKind = "SELL"
)

// WalletTokenMerge is the input to the write-once upsert.
type WalletTokenMerge struct {
	Wallet            string
	Token             string
	Kind              MergeKind
	Timestamp         int64
	TxSignature       string
	MarketCap         *float64
	OpenPositionCount *int // only meaningful for MergeBuy
}

// Store is the persistence contract the core consumes (spec §6). All
// methods must be safe for concurrent use; merges must be commutative for
// derived fields and write-once for first-event fields.
type Store interface {
	SaveTransaction(ctx context.Context, rec TransactionRecord) error
	UpdateTransactionDevHolding(ctx context.Context, signature string, holding bool) error
	UpdateTransactionMarketCap(ctx context.Context, signature string, marketCap, totalSupply, priceSol, priceUsd *float64) error

	SaveWalletTokenPair(ctx context.Context, m WalletTokenMerge) error
	IsFirstBuy(ctx context.Context, wallet, token string) (bool, error)
	IsFirstSell(ctx context.Context, wallet, token string) (bool, error)
	GetWalletTokenPair(ctx context.Context, wallet, token string) (*WalletTokenPair, error)

	GetBuyCountForToken(ctx context.Context, wallet, token string) (int, error)
	GetSellCountForToken(ctx context.Context, wallet, token string) (int, error)

	GetLatestSolPrice(ctx context.Context) (*float64, error)
	SetLatestSolPrice(ctx context.Context, priceUsd float64) error

	UpdateCreatorTokenCount(ctx context.Context, token, creator string, count int) error

	InsertSession(ctx context.Context, key SessionKey, startedAt time.Time) error
	SavePriceSample(ctx context.Context, key SessionKey, point PricePoint) error
	FinalizeSession(ctx context.Context, key SessionKey, reason string, terminal *PricePoint) error

	EnqueueTokenJob(ctx context.Context, mint string) (queued bool, err error)
	DequeueTokenJob(ctx context.Context) (mint string, ok bool, err error)
	CompleteTokenJob(ctx context.Context, mint string) error

	Close() error
}

// Package router implements EventRouter (spec §4.2): per inbound stream
// event it invokes the decoder, classifies BUY/SELL/OTHER, and for
// BUY/SELL fans out to the TokenQueue, EnrichmentPipeline, and
// PoolMonitor without blocking the stream loop on any of them.
package router

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"solana-tx-tracker/internal/enrich"
	"solana-tx-tracker/internal/metrics"
	"solana-tx-tracker/internal/poolmonitor"
	"solana-tx-tracker/internal/storage"
	"solana-tx-tracker/internal/stream"
	"solana-tx-tracker/internal/tokenqueue"
	"solana-tx-tracker/internal/trackerr"
	"solana-tx-tracker/internal/txevent"
)

// Router dispatches one decoded event at a time to its downstream
// collaborators. For BUY/SELL it never blocks the caller beyond a token
// queue offer and launching a goroutine (spec §4.2's "bounded hand-off"
// requirement); OTHER transactions are saved to the store synchronously.
type Router struct {
	decoder  txevent.Decoder
	store    storage.Store
	queue    *tokenqueue.Queue
	pipeline *enrich.Pipeline
	monitor  *poolmonitor.Monitor
}

func New(decoder txevent.Decoder, store storage.Store, queue *tokenqueue.Queue, pipeline *enrich.Pipeline, monitor *poolmonitor.Monitor) *Router {
	return &Router{
		decoder:  decoder,
		store:    store,
		queue:    queue,
		pipeline: pipeline,
		monitor:  monitor,
	}
}

// Handle processes one inbound stream event (spec §4.2 steps 1-5).
func (r *Router) Handle(ctx context.Context, raw stream.Event) {
	blockTimestamp := blockTimestampOf(raw)

	ev, err := r.decoder.Decode(txevent.RawTx{
		Signature: raw.Signature,
		Slot:      raw.Slot,
		CreatedAt: raw.CreatedAt,
		Data:      raw.RawTx,
	})
	if err != nil {
		log.Warn().Err(trackerr.New(trackerr.DecodeFailure, "router.Handle", err)).Str("signature", raw.Signature).Msg("decode failed, dropping")
		return
	}
	if ev == nil {
		return
	}

	ev.Kind = txevent.Normalize(string(ev.Kind))
	tokenAddress := ev.TokenAddress()
	metrics.IncEventProcessed(string(ev.Kind))

	if (ev.Kind == txevent.Buy || ev.Kind == txevent.Sell) && tokenAddress != "" {
		if !txevent.ValidAddress(tokenAddress) {
			log.Warn().Str("signature", ev.Signature).Str("mint", tokenAddress).Msg("decoder produced malformed mint, dropping")
			return
		}
		r.queue.Offer(tokenAddress)

		go r.enrichAndMonitor(ctx, ev, raw.Slot, blockTimestamp, tokenAddress)
		return
	}

	if err := r.store.SaveTransaction(ctx, storage.TransactionRecord{
		Signature:      ev.Signature,
		Platform:       ev.Platform,
		Type:           string(ev.Kind),
		MintIn:         ev.MintIn,
		MintOut:        ev.MintOut,
		AmountIn:       ev.AmountIn,
		AmountOut:      ev.AmountOut,
		FeePayer:       ev.FeePayer,
		BlockNumber:    raw.Slot,
		BlockTimestamp: blockTimestamp,
	}); err != nil {
		log.Warn().Err(trackerr.New(trackerr.StoreFailure, "router.Handle", err)).Str("signature", ev.Signature).Msg("failed to persist non-trade transaction")
	}
}

// enrichAndMonitor runs the enrichment pipeline for one BUY/SELL and
// then feeds its derived priceSol/priceUsd/marketCap (and, for a BUY,
// whether this call won the first-buy merge) into PoolMonitor, so the
// monitoring session's initial/terminal sample reflects the same
// numbers persisted to storage rather than the decoder's raw fields.
func (r *Router) enrichAndMonitor(ctx context.Context, ev *txevent.Event, slot uint64, blockTimestamp int64, tokenAddress string) {
	priceSol, priceUsd, marketCap, wonFirstBuy := r.pipeline.Process(ctx, ev, slot, blockTimestamp, tokenAddress)

	switch ev.Kind {
	case txevent.Buy:
		r.monitor.OnBuy(ctx, ev.FeePayer, tokenAddress, ev.PoolAddress, slot, blockTimestamp, priceSol, priceUsd, marketCap, ev.Signature, wonFirstBuy)
	case txevent.Sell:
		r.monitor.OnSell(ctx, ev.FeePayer, tokenAddress, slot, blockTimestamp, priceSol, priceUsd, marketCap, ev.Signature)
	}
}

// blockTimestampOf computes blockTimestamp per spec §4.2 step 1: floor
// seconds of createdAt if present, else current wall clock.
func blockTimestampOf(raw stream.Event) int64 {
	if raw.CreatedAt != nil {
		return *raw.CreatedAt
	}
	return time.Now().Unix()
}

// Package enrich implements the EnrichmentPipeline (spec §4.3): persists
// each BUY/SELL transaction, then fills in derived fields off the hot
// path (dev-holding, market cap, wallet-token merge, open-position
// count, delayed creator-token-count). Every step logs and continues on
// failure; the pipeline never aborts the router's dispatch.
package enrich

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"solana-tx-tracker/internal/chainrpc"
	"solana-tx-tracker/internal/metadata"
	"solana-tx-tracker/internal/metrics"
	"solana-tx-tracker/internal/registry"
	"solana-tx-tracker/internal/storage"
	"solana-tx-tracker/internal/tokenqueue"
	"solana-tx-tracker/internal/trackerr"
	"solana-tx-tracker/internal/txevent"
)

// CreatorCountDelay is the default for how long after an event the
// creator-token-count job is offered to the token queue (spec §4.3 step
// 6); SetCreatorCountDelay overrides it per pipeline.
const CreatorCountDelay = 45 * time.Second

// Pipeline wires the collaborators EnrichmentPipeline needs.
type Pipeline struct {
	store    storage.Store
	rpc      *chainrpc.Client
	oracle   solUSDReader
	metadata *metadata.Client
	registry *registry.Registry
	queue    *tokenqueue.Queue

	creatorCountDelay time.Duration
}

// solUSDReader is the subset of priceoracle.Oracle the pipeline needs;
// kept as an interface so tests can stub it without a real refresh loop.
type solUSDReader interface {
	Get() float64
}

// New builds an EnrichmentPipeline. queue may be nil to disable the
// delayed creator-token-count job (e.g. in tests); md may be nil or
// disabled to skip it outright.
func New(store storage.Store, rpc *chainrpc.Client, oracle solUSDReader, md *metadata.Client, reg *registry.Registry, queue *tokenqueue.Queue) *Pipeline {
	return &Pipeline{
		store:             store,
		rpc:               rpc,
		oracle:            oracle,
		metadata:          md,
		registry:          reg,
		queue:             queue,
		creatorCountDelay: CreatorCountDelay,
	}
}

// SetCreatorCountDelay overrides CreatorCountDelay for this pipeline.
func (p *Pipeline) SetCreatorCountDelay(d time.Duration) { p.creatorCountDelay = d }

// Process runs every EnrichmentPipeline step for one decoded BUY/SELL
// event. It is designed to be launched as its own goroutine by the
// router; it never panics out and never blocks the caller beyond its
// own work. It returns the priceSol/priceUsd/marketCap it derived (nil
// where unknown) and, for a BUY, whether this call won the write-once
// first-buy merge (spec §4.5) — the router feeds both straight into
// PoolMonitor.OnBuy/OnSell so the session's initial sample and its
// first-buy gate come from the same authoritative computation instead
// of a second, racy lookup.
func (p *Pipeline) Process(ctx context.Context, ev *txevent.Event, blockNumber uint64, blockTimestamp int64, tokenAddress string) (priceSol, priceUsd, marketCap *float64, wonFirst bool) {
	rec := storage.TransactionRecord{
		Signature:      ev.Signature,
		Platform:       ev.Platform,
		Type:           string(ev.Kind),
		MintIn:         ev.MintIn,
		MintOut:        ev.MintOut,
		AmountIn:       ev.AmountIn,
		AmountOut:      ev.AmountOut,
		FeePayer:       ev.FeePayer,
		BlockNumber:    blockNumber,
		BlockTimestamp: blockTimestamp,
		PriceSol:       ev.PriceSol,
		PriceUsd:       ev.PriceUsd,
	}

	persistStart := time.Now()
	err := p.store.SaveTransaction(ctx, rec)
	metrics.ObserveEnrichStage(metrics.StagePersist, time.Since(persistStart).Seconds())
	if err != nil {
		log.Error().Err(trackerr.New(trackerr.StoreFailure, "enrich.SaveTransaction", err)).Str("signature", ev.Signature).Msg("failed to persist transaction")
		return nil, nil, nil, false
	}

	if ev.Creator != "" {
		go p.checkDevHolding(ctx, ev.Signature, ev.Creator, tokenAddress)
	}

	marketCapStart := time.Now()
	var totalSupply *float64
	marketCap, totalSupply, priceSol, priceUsd = p.computeMarketCap(ctx, ev, tokenAddress)
	metrics.ObserveEnrichStage(metrics.StageMarketCap, time.Since(marketCapStart).Seconds())
	if marketCap != nil || totalSupply != nil || priceSol != nil || priceUsd != nil {
		if err := p.store.UpdateTransactionMarketCap(ctx, ev.Signature, marketCap, totalSupply, priceSol, priceUsd); err != nil {
			log.Warn().Err(err).Str("signature", ev.Signature).Msg("failed to persist market cap")
		}
	}

	var openPositionCount *int
	if ev.Kind == txevent.Buy {
		openPositionStart := time.Now()
		n, err := p.openPositionCount(ctx, ev.FeePayer)
		metrics.ObserveEnrichStage(metrics.StageOpenPosition, time.Since(openPositionStart).Seconds())
		if err != nil {
			log.Warn().Err(err).Str("wallet", ev.FeePayer).Msg("open-position count failed")
		} else {
			openPositionCount = &n
		}
	}

	mergeStart := time.Now()
	won, err := p.registry.RecordFirst(ctx, ev.Kind, ev.FeePayer, tokenAddress, blockTimestamp, ev.Signature, marketCap, openPositionCount)
	metrics.ObserveEnrichStage(metrics.StageMerge, time.Since(mergeStart).Seconds())
	if err != nil {
		log.Error().Err(trackerr.New(trackerr.StoreFailure, "enrich.RecordFirst", err)).Str("wallet", ev.FeePayer).Str("token", tokenAddress).Msg("wallet-token merge failed")
	}

	if ev.Creator != "" && p.metadata != nil && p.metadata.Enabled() && p.queue != nil {
		creator, mint := ev.Creator, tokenAddress
		time.AfterFunc(p.creatorCountDelay, func() {
			p.queue.Offer(mint)
			p.recordCreatorTokenCount(context.Background(), mint, creator)
		})
	}

	return priceSol, priceUsd, marketCap, won && err == nil
}

func (p *Pipeline) checkDevHolding(ctx context.Context, signature, creator, tokenAddress string) {
	start := time.Now()
	defer func() { metrics.ObserveEnrichStage(metrics.StageDevHolding, time.Since(start).Seconds()) }()

	accounts, err := p.rpc.GetTokenAccountsByOwner(ctx, creator)
	if err != nil {
		log.Warn().Err(err).Str("creator", creator).Msg("dev-holding check failed")
		return
	}

	holding := false
	for _, acc := range accounts {
		if acc.Mint == tokenAddress && acc.Amount > 0 {
			holding = true
			break
		}
	}

	if err := p.store.UpdateTransactionDevHolding(ctx, signature, holding); err != nil {
		log.Warn().Err(err).Str("signature", signature).Msg("failed to persist dev-holding")
	}
}

func (p *Pipeline) computeMarketCap(ctx context.Context, ev *txevent.Event, tokenAddress string) (marketCap, totalSupply, priceSol, priceUsd *float64) {
	if tokenAddress == "" {
		return nil, nil, nil, nil
	}

	solUsd, err := p.store.GetLatestSolPrice(ctx)
	if err != nil || solUsd == nil || *solUsd <= 0 {
		if p.oracle != nil {
			if price := p.oracle.Get(); price > 0 {
				solUsd = &price
			}
		}
	}
	if solUsd == nil || *solUsd <= 0 {
		return nil, nil, nil, nil
	}

	supply, err := p.rpc.GetTokenSupply(ctx, tokenAddress)
	if err != nil {
		return nil, nil, nil, nil
	}
	human := supply.Human()

	var ps float64
	if ev.PriceSol != nil {
		ps = *ev.PriceSol
	} else if ev.PriceUsd != nil {
		ps = *ev.PriceUsd / *solUsd
	} else {
		return nil, &human, nil, nil
	}

	pu := ps * *solUsd
	mc := human * pu
	return &mc, &human, &ps, &pu
}

// openPositionCount counts distinct tokens the wallet currently holds a
// positive balance of (across both token programs, excluding wrapped
// SOL) where buyCount > sellCount (spec §4.3 step 5).
func (p *Pipeline) openPositionCount(ctx context.Context, wallet string) (int, error) {
	accounts, err := p.rpc.GetTokenAccountsByOwner(ctx, wallet)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{})
	count := 0
	for _, acc := range accounts {
		if acc.Amount == 0 || acc.Mint == "" || acc.Mint == txevent.WrappedSOLMint {
			continue
		}
		if _, dup := seen[acc.Mint]; dup {
			continue
		}
		seen[acc.Mint] = struct{}{}

		buys, err := p.store.GetBuyCountForToken(ctx, wallet, acc.Mint)
		if err != nil {
			continue
		}
		sells, err := p.store.GetSellCountForToken(ctx, wallet, acc.Mint)
		if err != nil {
			continue
		}
		if buys > sells {
			count++
		}
	}
	return count, nil
}

func (p *Pipeline) recordCreatorTokenCount(ctx context.Context, mint, creator string) {
	if p.metadata == nil || !p.metadata.Enabled() {
		return
	}
	count, err := p.metadata.CreatorTokenCount(ctx, creator)
	if err != nil {
		log.Warn().Err(err).Str("creator", creator).Msg("creator-token-count lookup failed")
		return
	}
	if err := p.store.UpdateCreatorTokenCount(ctx, mint, creator, count); err != nil {
		log.Warn().Err(err).Str("mint", mint).Msg("failed to persist creator-token-count")
	}
}

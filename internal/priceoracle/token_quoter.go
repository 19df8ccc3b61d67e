package priceoracle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"solana-tx-tracker/internal/jupiter"
)

// TokenQuoter asks a Jupiter-compatible quote API for the SOL value of
// one unit of an arbitrary mint, the same request shape the trading
// bot's monitorPositions loop uses to re-price a held token
// (internal/trading/executor_fast.go's `jupiter.GetQuote(pos.Mint,
// jupiter.SOLMint, balance)`) — reused here for PoolMonitor's sampler
// instead of a trade-exit decision.
type TokenQuoter struct {
	client *jupiter.Client
}

func NewTokenQuoter(quoteURL string, timeout time.Duration) *TokenQuoter {
	return &TokenQuoter{client: jupiter.NewClient(quoteURL, timeout)}
}

// QuoteTokenToSol returns the SOL (in lamports) a Jupiter route would
// return for amountRaw of mint (in the mint's native smallest unit).
func (q *TokenQuoter) QuoteTokenToSol(ctx context.Context, mint string, amountRaw uint64) (uint64, error) {
	quote, err := q.client.GetQuote(ctx, mint, jupiter.SOLMint, amountRaw)
	if err != nil {
		return 0, fmt.Errorf("quote %s->SOL: %w", mint, err)
	}

	out, err := strconv.ParseUint(quote.OutAmount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse outAmount: %w", err)
	}
	return out, nil
}

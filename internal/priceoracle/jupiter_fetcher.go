package priceoracle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"solana-tx-tracker/internal/jupiter"
)

// wrappedSOLMint / usdcMint are used to ask Jupiter's quote API for an
// implied SOL/USD price.
const (
	wrappedSOLMint = jupiter.SOLMint
	usdcMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	solDecimals    = 1_000_000_000
)

// JupiterFetcher queries the Jupiter quote API for the current SOL/USDC
// price via the shared read-only jupiter.Client.
type JupiterFetcher struct {
	client *jupiter.Client
}

// NewJupiterFetcher builds a Fetcher against a Jupiter-compatible quote API.
func NewJupiterFetcher(quoteURL string, timeout time.Duration) *JupiterFetcher {
	return &JupiterFetcher{client: jupiter.NewClient(quoteURL, timeout)}
}

// FetchSolUsd requests a quote for 1 SOL -> USDC and derives the implied
// USD price from the output amount.
func (f *JupiterFetcher) FetchSolUsd(ctx context.Context) (float64, error) {
	quote, err := f.client.GetQuote(ctx, wrappedSOLMint, usdcMint, solDecimals)
	if err != nil {
		return 0, fmt.Errorf("fetch sol/usdc quote: %w", err)
	}

	outAmount, err := strconv.ParseFloat(quote.OutAmount, 64)
	if err != nil {
		return 0, fmt.Errorf("parse outAmount: %w", err)
	}

	// USDC has 6 decimals.
	return outAmount / 1_000_000, nil
}

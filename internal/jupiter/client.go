// Package jupiter is a read-only client for Jupiter's swap-quote API,
// trimmed from the trading bot's Client down to the quote path: this
// tracker never builds or submits a swap, it only asks "what would this
// amount of mint A be worth in mint B right now" for price derivation
// (priceoracle's SOL/USD fetcher and PoolMonitor's per-session token
// quoter both wrap this client).
package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
)

// SOLMint is the wrapped-SOL mint Jupiter quotes against.
const SOLMint = "So11111111111111111111111111111111111111112"

// Client queries a Jupiter-compatible quote endpoint.
type Client struct {
	quoteURL string
	pool     *HTTPClientPool
}

// HTTPClientPool round-robins across a small set of HTTP/2-pooled
// clients, the same shape the trading bot uses for its swap traffic.
type HTTPClientPool struct {
	clients []*http.Client
	mu      sync.Mutex
	idx     uint32
}

// NewHTTPClientPool builds an HTTP/2-optimized client pool.
func NewHTTPClientPool(size int, timeout time.Duration) *HTTPClientPool {
	pool := &HTTPClientPool{clients: make([]*http.Client, size)}

	for i := 0; i < size; i++ {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		http2.ConfigureTransport(transport)

		pool.clients[i] = &http.Client{Transport: transport, Timeout: timeout}
	}

	return pool
}

// Get returns the next pooled client, round-robin.
func (p *HTTPClientPool) Get() *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	client := p.clients[p.idx%uint32(len(p.clients))]
	p.idx++
	return client
}

// NewClient builds a quote-only Jupiter client against quoteURL.
func NewClient(quoteURL string, timeout time.Duration) *Client {
	return &Client{quoteURL: quoteURL, pool: NewHTTPClientPool(4, timeout)}
}

// QuoteResponse is the subset of Jupiter's /quote response this tracker
// derives prices from.
type QuoteResponse struct {
	InputMint      string `json:"inputMint"`
	InAmount       string `json:"inAmount"`
	OutputMint     string `json:"outputMint"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	ContextSlot    uint64 `json:"contextSlot"`
}

// GetQuote fetches a swap quote for amountLamports of inputMint priced
// in outputMint.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amountLamports uint64) (*QuoteResponse, error) {
	start := time.Now()

	url := fmt.Sprintf("%s?inputMint=%s&outputMint=%s&amount=%d&slippageBps=50",
		c.quoteURL, inputMint, outputMint, amountLamports)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := c.pool.Get()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("quote failed (%d): %s", resp.StatusCode, string(body))
	}

	var quote QuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}

	log.Debug().
		Dur("latency", time.Since(start)).
		Str("outAmount", quote.OutAmount).
		Msg("jupiter quote")

	return &quote, nil
}

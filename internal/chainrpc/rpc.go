// Package chainrpc is a read-only Solana JSON-RPC client used by the
// enrichment and pool-monitoring modules for balance, supply, and token
// account lookups. Adapted from the trading bot's RPCClient, trimmed to
// the read paths this tracker needs (no sendTransaction, no blockhash
// cache — this system never signs or submits anything).
package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"solana-tx-tracker/internal/trackerr"
)

const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// Client wraps a Solana JSON-RPC endpoint with a primary/fallback circuit
// breaker so transient RPC outages degrade to RpcFailure (null-out
// derived fields) instead of stalling the enrichment pipeline.
type Client struct {
	primaryURL  string
	fallbackURL string
	apiKey      string
	httpClient  *http.Client

	mu          sync.RWMutex
	failures    int
	lastFailure time.Time
	circuitOpen bool
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// NewClient creates an RPC client against primaryURL, falling back to
// fallbackURL when the circuit breaker is open or the primary fails.
func NewClient(primaryURL, fallbackURL, apiKey string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 10 * time.Second, Transport: transport},
	}
}

// TokenAccount is one parsed SPL / Token-2022 token account.
type TokenAccount struct {
	Address  string
	Mint     string
	Amount   uint64
	Decimals uint8
}

// GetTokenAccountsByOwner fetches every token account an owner holds
// across both the standard Token Program and Token-2022, per spec §4.3
// step 2 (dev-holding check) and step 5 (open-position count).
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, owner string) ([]TokenAccount, error) {
	std, err := c.fetchTokenAccounts(ctx, owner, TokenProgramID)
	if err != nil {
		return nil, trackerr.New(trackerr.RpcFailure, "chainrpc.GetTokenAccountsByOwner.standard", err)
	}
	ext, err := c.fetchTokenAccounts(ctx, owner, Token2022ProgramID)
	if err != nil {
		return nil, trackerr.New(trackerr.RpcFailure, "chainrpc.GetTokenAccountsByOwner.token2022", err)
	}
	return append(std, ext...), nil
}

func (c *Client) fetchTokenAccounts(ctx context.Context, owner, programID string) ([]TokenAccount, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTokenAccountsByOwner",
		Params: []interface{}{
			owner,
			map[string]string{"programId": programID},
			map[string]string{"encoding": "jsonParsed"},
		},
	}

	var result struct {
		Value []struct {
			Pubkey  string `json:"pubkey"`
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string `json:"mint"`
							TokenAmount struct {
								Amount   string `json:"amount"`
								Decimals uint8  `json:"decimals"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}

	if err := c.call(ctx, req, &result); err != nil {
		return nil, err
	}

	accounts := make([]TokenAccount, 0, len(result.Value))
	for _, v := range result.Value {
		var amount uint64
		fmt.Sscanf(v.Account.Data.Parsed.Info.TokenAmount.Amount, "%d", &amount)
		accounts = append(accounts, TokenAccount{
			Address:  v.Pubkey,
			Mint:     v.Account.Data.Parsed.Info.Mint,
			Amount:   amount,
			Decimals: v.Account.Data.Parsed.Info.TokenAmount.Decimals,
		})
	}
	return accounts, nil
}

// TokenSupply is the result of getTokenSupply.
type TokenSupply struct {
	Amount   uint64
	Decimals uint8
}

// Human returns the supply adjusted for decimals.
func (s TokenSupply) Human() float64 {
	return float64(s.Amount) / pow10(int(s.Decimals))
}

func pow10(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}

func (c *Client) GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTokenSupply",
		Params:  []interface{}{mint},
	}

	var result struct {
		Value struct {
			Amount   string `json:"amount"`
			Decimals uint8  `json:"decimals"`
		} `json:"value"`
	}

	if err := c.call(ctx, req, &result); err != nil {
		return nil, trackerr.New(trackerr.RpcFailure, "chainrpc.GetTokenSupply", err)
	}

	var amount uint64
	fmt.Sscanf(result.Value.Amount, "%d", &amount)
	return &TokenSupply{Amount: amount, Decimals: result.Value.Decimals}, nil
}

func (c *Client) GetBalance(ctx context.Context, pubkey string) (uint64, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getBalance",
		Params:  []interface{}{pubkey, map[string]string{"commitment": "confirmed"}},
	}

	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, req, &result); err != nil {
		return 0, trackerr.New(trackerr.RpcFailure, "chainrpc.GetBalance", err)
	}
	return result.Value, nil
}

func (c *Client) call(ctx context.Context, req rpcRequest, result interface{}) error {
	if c.isCircuitOpen() {
		return c.callURL(ctx, c.fallbackURL, req, result)
	}

	err := c.callURL(ctx, c.primaryURL, req, result)
	if err != nil {
		c.recordFailure()
		log.Warn().Err(err).Msg("primary RPC failed, trying fallback")
		return c.callURL(ctx, c.fallbackURL, req, result)
	}

	c.recordSuccess()
	return nil
}

func (c *Client) callURL(ctx context.Context, url string, rpcReq rpcRequest, result interface{}) error {
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

// Healthy reports whether the circuit breaker is currently closed
// (i.e. the primary RPC endpoint has not been failing recently).
func (c *Client) Healthy() bool {
	return !c.isCircuitOpen()
}

func (c *Client) isCircuitOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.circuitOpen {
		return false
	}
	return time.Since(c.lastFailure) <= 30*time.Second
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.lastFailure = time.Now()
	if c.failures >= 5 {
		c.circuitOpen = true
		log.Warn().Msg("chain RPC circuit breaker opened")
	}
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.circuitOpen = false
}

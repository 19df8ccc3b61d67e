// Package metadata talks to the external creator-history API used by
// the enrichment pipeline's delayed creator-token-count job (spec §4.3
// step 6). The upstream API itself is an external collaborator; this
// package owns pagination, dedup, and API-key handling.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// CreatedToken is one mint a creator has deployed, per the history API.
type CreatedToken struct {
	Mint      string `json:"mint"`
	CreatedAt int64  `json:"createdAt"`
}

// Client queries the creator-history API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	pageSize int
}

// NewClient builds a metadata client. A blank apiKey disables the
// creator-token-count job entirely (METADATA_API_KEY unset, spec §6).
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		pageSize: 50,
	}
}

// Enabled reports whether the client has credentials to call the API.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// CreatorTokenCount pages through every token a creator has deployed,
// deduping by mint, and returns the distinct count (spec §4.3 step 6:
// "query an external history API paginated until short page, dedupe by
// mint, persist count").
func (c *Client) CreatorTokenCount(ctx context.Context, creator string) (int, error) {
	if !c.Enabled() {
		return 0, fmt.Errorf("metadata client disabled: no API key configured")
	}

	seen := make(map[string]struct{})
	page := 0
	for {
		tokens, err := c.fetchPage(ctx, creator, page)
		if err != nil {
			return 0, fmt.Errorf("fetch page %d: %w", page, err)
		}
		for _, tok := range tokens {
			seen[tok.Mint] = struct{}{}
		}

		log.Debug().
			Str("creator", creator).
			Int("page", page).
			Int("pageLen", len(tokens)).
			Msg("creator-history page fetched")

		if len(tokens) < c.pageSize {
			break
		}
		page++
	}

	return len(seen), nil
}

func (c *Client) fetchPage(ctx context.Context, creator string, page int) ([]CreatedToken, error) {
	url := fmt.Sprintf("%s/creators/%s/tokens?page=%d&limit=%d", c.baseURL, creator, page, c.pageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var tokens []CreatedToken
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreatorTokenCountPaginatesUntilShortPage(t *testing.T) {
	pages := [][]CreatedToken{
		{{Mint: "A"}, {Mint: "B"}},
		{{Mint: "C"}, {Mint: "A"}}, // duplicate mint "A" must not double-count
	}
	call := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("expected api key header, got %q", r.Header.Get("x-api-key"))
		}
		w.Header().Set("Content-Type", "application/json")
		if call >= len(pages) {
			w.Write([]byte(`[]`))
			call++
			return
		}
		page := pages[call]
		call++
		body := `[`
		for i, tok := range page {
			if i > 0 {
				body += ","
			}
			body += `{"mint":"` + tok.Mint + `"}`
		}
		body += `]`
		w.Write([]byte(body))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "secret", 5*time.Second)
	client.pageSize = 2

	count, err := client.CreatorTokenCount(context.Background(), "Creator1")
	if err != nil {
		t.Fatalf("CreatorTokenCount: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3 distinct mints (A, B, C)", count)
	}
	// Both fixture pages are full (pageSize 2), so the third, empty page is
	// the short page that ends pagination.
	if call != 3 {
		t.Errorf("expected pagination to stop after a short page (3 calls), got %d calls", call)
	}
}

func TestCreatorTokenCountDisabledWithoutAPIKey(t *testing.T) {
	client := NewClient("http://example.invalid", "", time.Second)
	if client.Enabled() {
		t.Error("expected client to be disabled without an API key")
	}
	if _, err := client.CreatorTokenCount(context.Background(), "Creator1"); err == nil {
		t.Error("expected an error when calling a disabled metadata client")
	}
}

package jupiter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetQuoteParsesOutAmount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"inputMint":"TokenMint","outputMint":"` + SOLMint + `","inAmount":"1000000","outAmount":"42","priceImpactPct":"0.01"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	quote, err := client.GetQuote(context.Background(), "TokenMint", SOLMint, 1_000_000)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if quote.OutAmount != "42" {
		t.Errorf("OutAmount = %q, want 42", quote.OutAmount)
	}
}

func TestGetQuoteErrorsOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("route not found"))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	if _, err := client.GetQuote(context.Background(), "TokenMint", SOLMint, 1); err == nil {
		t.Error("expected error on 500 response")
	}
}

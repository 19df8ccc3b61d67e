package chainrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetTokenAccountsByOwnerQueriesBothPrograms(t *testing.T) {
	var programIDs []string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		filter, _ := req.Params[1].(map[string]interface{})
		programIDs = append(programIDs, filter["programId"].(string))

		fakeResp := `{"jsonrpc":"2.0","id":1,"result":{"value":[{"pubkey":"Acc1","account":{"data":{"parsed":{"info":{"mint":"MintA","tokenAmount":{"amount":"100","decimals":6}}}}}}]}}`
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fakeResp))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, ts.URL, "")
	accounts, err := client.GetTokenAccountsByOwner(context.Background(), "Owner1")
	if err != nil {
		t.Fatalf("GetTokenAccountsByOwner: %v", err)
	}

	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts (one per program), got %d", len(accounts))
	}
	if len(programIDs) != 2 || programIDs[0] != TokenProgramID || programIDs[1] != Token2022ProgramID {
		t.Errorf("expected both programs queried in order, got %v", programIDs)
	}
}

func TestGetTokenSupplyComputesHuman(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":{"amount":"1000000000","decimals":9}}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, ts.URL, "")
	supply, err := client.GetTokenSupply(context.Background(), "MintA")
	if err != nil {
		t.Fatalf("GetTokenSupply: %v", err)
	}
	if supply.Human() != 1.0 {
		t.Errorf("Human() = %v, want 1.0", supply.Human())
	}
}

func TestCircuitBreakerFallsBackAfterFailures(t *testing.T) {
	calls := 0
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":42}}`))
	}))
	defer good.Close()

	client := NewClient(bad.URL, good.URL, "")
	for i := 0; i < 6; i++ {
		client.GetBalance(context.Background(), "Owner1")
	}

	if !client.isCircuitOpen() {
		t.Error("expected circuit breaker to be open after 5+ consecutive failures")
	}

	balance, err := client.GetBalance(context.Background(), "Owner1")
	if err != nil {
		t.Fatalf("expected fallback to succeed once circuit is open, got %v", err)
	}
	if balance != 42 {
		t.Errorf("balance = %d, want 42", balance)
	}
}

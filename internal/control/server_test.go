package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

var errStartRejected = errors.New("refusing to start")

type fakeTracker struct {
	startErr    error
	stopErr     error
	running     bool
	lastStarted []string
	startCtx    context.Context
}

func (f *fakeTracker) Start(ctx context.Context, addresses []string) error {
	f.startCtx = ctx
	if f.startErr != nil {
		return f.startErr
	}
	f.lastStarted = addresses
	f.running = true
	return nil
}

func (f *fakeTracker) Stop(ctx context.Context) error {
	f.running = false
	return f.stopErr
}

func (f *fakeTracker) Running() bool { return f.running }

func TestSetAddressesThenStartUsesThem(t *testing.T) {
	tracker := &fakeTracker{}
	server := New("0.0.0.0", 0, tracker, nil)

	body, _ := json.Marshal(addressesRequest{Addresses: []string{"Addr1", "Addr2"}})
	req, _ := http.NewRequest(http.MethodPost, "/addresses", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.app.Test(req, 1000)
	if err != nil {
		t.Fatalf("POST /addresses: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /addresses status = %d", resp.StatusCode)
	}

	startReq, _ := http.NewRequest(http.MethodPost, "/start", nil)
	startResp, err := server.app.Test(startReq, 1000)
	if err != nil {
		t.Fatalf("POST /start: %v", err)
	}
	if startResp.StatusCode != http.StatusOK {
		t.Fatalf("POST /start status = %d", startResp.StatusCode)
	}

	if len(tracker.lastStarted) != 2 || tracker.lastStarted[0] != "Addr1" {
		t.Errorf("expected tracker to be started with the previously set addresses, got %v", tracker.lastStarted)
	}
	if !tracker.Running() {
		t.Error("expected tracker to report running after /start")
	}
}

func TestStartContextOutlivesTheRequest(t *testing.T) {
	tracker := &fakeTracker{}
	server := New("0.0.0.0", 0, tracker, nil)

	req, _ := http.NewRequest(http.MethodPost, "/start", nil)
	if _, err := server.app.Test(req, 1000); err != nil {
		t.Fatalf("POST /start: %v", err)
	}

	if tracker.startCtx == nil {
		t.Fatal("tracker.Start was never called")
	}
	if err := tracker.startCtx.Err(); err != nil {
		t.Errorf("context passed to Start must not be cancelled once the HTTP request completes, got %v", err)
	}
}

func TestStartRejectionSurfacesAsBadRequest(t *testing.T) {
	tracker := &fakeTracker{startErr: errStartRejected}
	server := New("0.0.0.0", 0, tracker, nil)

	req, _ := http.NewRequest(http.MethodPost, "/start", nil)
	resp, err := server.app.Test(req, 1000)
	if err != nil {
		t.Fatalf("POST /start: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthWithoutCheckerReportsHealthy(t *testing.T) {
	server := New("0.0.0.0", 0, &fakeTracker{}, nil)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	resp, err := server.app.Test(req, 1000)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

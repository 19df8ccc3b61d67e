package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestObserversDoNotPanic(t *testing.T) {
	ObserveEnrichStage(StagePersist, 0.01)
	ObserveEnrichStage(StageDevHolding, 0.02)
	ObserveEnrichStage(StageMarketCap, 0.03)
	ObserveEnrichStage(StageMerge, 0.04)
	ObserveEnrichStage(StageOpenPosition, 0.05)
	ObserveSampler(0.1)
	IncEventProcessed("BUY")
	IncSamplerError()
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	ObserveEnrichStage(StagePersist, 0.01)
	IncEventProcessed("SELL")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	text := string(body)
	for _, want := range []string{
		"tracker_enrich_stage_duration_seconds",
		"tracker_router_events_processed_total",
		"tracker_poolmonitor_sampler_duration_seconds",
		"tracker_poolmonitor_sampler_errors_total",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected /metrics body to contain %q", want)
		}
	}
}

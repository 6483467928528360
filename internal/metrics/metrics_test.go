package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"vodrive/internal/metrics"
)

func TestRecorderCounters(t *testing.T) {
	r := metrics.New()
	r.FrameFed(0.01)
	r.FrameFed(0.02)
	r.FrameSkipped()
	r.EngineReset("init_failed")
	r.EngineReset("requested")
	r.EngineReset("requested")
	r.EngineGeneration(3)
	r.EngineState("tracking")

	expected := `
# HELP vodrive_engine_resets_total Engine reset transitions by reason.
# TYPE vodrive_engine_resets_total counter
vodrive_engine_resets_total{reason="init_failed"} 1
vodrive_engine_resets_total{reason="requested"} 2
`
	if err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "vodrive_engine_resets_total"); err != nil {
		t.Fatalf("unexpected resets metric: %v", err)
	}

	expected = `
# HELP vodrive_engine_state 1 for the current engine session state, 0 otherwise.
# TYPE vodrive_engine_state gauge
vodrive_engine_state{state="init_failed"} 0
vodrive_engine_state{state="lost"} 0
vodrive_engine_state{state="terminated"} 0
vodrive_engine_state{state="tracking"} 1
vodrive_engine_state{state="uninitialized"} 0
`
	if err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "vodrive_engine_state"); err != nil {
		t.Fatalf("unexpected state metric: %v", err)
	}

	count, err := testutil.GatherAndCount(r.Registry(), "vodrive_frames_fed_total", "vodrive_frames_skipped_total", "vodrive_engine_generation")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 series, got %d", count)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *metrics.Recorder
	r.FrameFed(1)
	r.FrameSkipped()
	r.EngineReset("requested")
	r.EngineState("lost")
	r.EngineGeneration(1)
	r.PreloadBytes(10)
	r.TrajectoryDropped()
	r.StreamClients(2)
	if r.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	r := metrics.New()
	r.FrameFed(0.001)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "vodrive_frames_fed_total 1") {
		t.Fatalf("expected frames fed in exposition, got:\n%s", body)
	}
}

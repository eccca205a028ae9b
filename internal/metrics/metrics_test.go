package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RunFinished("completed")
	m.ChunkDone("ok", time.Second)
	m.SynthStarted()
	m.SynthFinished()
	m.SetQueueDepth(3)
	m.AddOutputBytes(10)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("expected 404 from nil handler, got %d", rec.Code)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RunFinished("partial")
	m.ChunkDone("ok", 2*time.Second)
	m.ChunkDone("timeout", 0)
	m.SetQueueDepth(2)
	m.AddOutputBytes(1024)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`docaudio_runs_total{status="partial"} 1`,
		`docaudio_chunks_total{result="ok"} 1`,
		`docaudio_chunks_total{result="timeout"} 1`,
		`docaudio_synthesis_seconds_count 1`,
		`docaudio_queue_depth 2`,
		`docaudio_output_bytes_total 1024`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

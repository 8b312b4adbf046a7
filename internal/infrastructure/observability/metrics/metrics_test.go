package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_PipelineCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.EntriesSubmitted(3)
	m.EntriesDropped("invalid", 2)
	m.OutfileSealed("size")
	m.OutfileSealed("size")
	m.BatchUploaded(7)
	m.UploadFailed("upload")
	m.SendCycleObserved(10*time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(m.entriesSubmitted); got != 3 {
		t.Errorf("entries_submitted_total = %v", got)
	}
	if got := testutil.ToFloat64(m.entriesDropped.WithLabelValues("invalid")); got != 2 {
		t.Errorf("entries_dropped_total{invalid} = %v", got)
	}
	if got := testutil.ToFloat64(m.outfilesSealed.WithLabelValues("size")); got != 2 {
		t.Errorf("outfiles_sealed_total{size} = %v", got)
	}
	if got := testutil.ToFloat64(m.entriesUploaded); got != 7 {
		t.Errorf("entries_uploaded_total = %v", got)
	}
	if got := testutil.CollectAndCount(m.sendCycleDuration); got != 1 {
		t.Errorf("expected one send cycle series, got %d", got)
	}
}

func TestMetrics_Middleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)
	m.ObserveQueueDepth(func() float64 { return 4 })

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lifecycle/suspend", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("/api/v1/lifecycle/*", "POST", "202")); got != 1 {
		t.Errorf("http_requests_total = %v", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, family := range families {
		if family.GetName() == "session_telemetry_queue_depth" {
			found = family.GetMetric()[0].GetGauge().GetValue() == 4
		}
	}
	if !found {
		t.Error("queue depth gauge not exported")
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := map[string]string{
		"/healthz":                 "/healthz",
		"/api/v1/entries":          "/api/v1/entries",
		"/api/v1/lifecycle/resume": "/api/v1/lifecycle/*",
		"/api/v1/unknown":          "/api/v1/*",
		"/favicon.ico":             "other",
	}
	for path, want := range tests {
		if got := normalizeRoute(path); got != want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", path, got, want)
		}
	}
}

package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewMetricsRegistry()
	c := r.NewCounter("test_total", "test counter")
	g := r.NewGauge("test_active", "test gauge")

	c.Inc()
	c.Add(2)
	if got := c.Value(); got != 3 {
		t.Errorf("counter value = %v, want 3", got)
	}

	g.Set(5)
	g.Dec()
	if got := g.Value(); got != 4 {
		t.Errorf("gauge value = %v, want 4", got)
	}
}

func TestHistogramObserve(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("test_seconds", "test histogram", []float64{0.1, 1, 10})

	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(100)

	if h.count != 3 {
		t.Errorf("count = %d, want 3", h.count)
	}
	if h.counts[0] != 1 || h.counts[1] != 2 || h.counts[2] != 2 {
		t.Errorf("bucket counts = %v, want [1 2 2]", h.counts)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := NewPipelineMetrics()
	m.DocumentsIndexed.Inc()
	m.DocumentsIndexed.Inc()
	m.PendingDocuments.Set(7)
	m.SearchLatencySecs.Observe(0.02)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE linkhive_documents_indexed_total counter",
		"linkhive_documents_indexed_total 2",
		"linkhive_pending_documents 7",
		"# TYPE linkhive_search_latency_seconds histogram",
		"linkhive_search_latency_seconds_count 1",
		`linkhive_search_latency_seconds_bucket{le="+Inf"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q\n%s", want, body)
		}
	}
}

func TestExpositionStableOrder(t *testing.T) {
	r := NewMetricsRegistry()
	r.NewCounter("b_total", "b")
	r.NewCounter("a_total", "a")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if strings.Index(body, "a_total") > strings.Index(body, "b_total") {
		t.Errorf("metrics not in name order:\n%s", body)
	}
}

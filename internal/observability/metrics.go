package observability

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics and serves them in
// Prometheus text exposition format.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	help  string
	mu    sync.Mutex
	value float64
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name  string
	help  string
	mu    sync.Mutex
	value float64
}

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	mu      sync.Mutex
	counts  []uint64
	sum     float64
	count   uint64
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram. Nil buckets selects
// the default latency buckets.
func (r *MetricsRegistry) NewHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buckets == nil {
		buckets = DefaultBuckets()
	}

	h := &Histogram{
		name:    name,
		help:    help,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns default histogram buckets for latency seconds.
func DefaultBuckets() []float64 {
	return []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// ObserveDuration records the elapsed time since start in seconds.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler returns an HTTP handler serving the registry.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes all metrics in Prometheus text format, in
// stable name order.
func (r *MetricsRegistry) WritePrometheus(w http.ResponseWriter) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		c.mu.Lock()
		writeMetric(w, c.name, "counter", c.help, c.value)
		c.mu.Unlock()
	}

	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		g.mu.Lock()
		writeMetric(w, g.name, "gauge", g.help, g.value)
		g.mu.Unlock()
	}

	for _, name := range sortedKeys(r.histos) {
		h := r.histos[name]
		h.mu.Lock()
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeMetric(w http.ResponseWriter, name, metricType, help string, value float64) {
	w.Write([]byte("# HELP " + name + " " + help + "\n"))
	w.Write([]byte("# TYPE " + name + " " + metricType + "\n"))
	w.Write([]byte(name + " " + formatFloat(value) + "\n"))
}

func writeHistogram(w http.ResponseWriter, h *Histogram) {
	w.Write([]byte("# HELP " + h.name + " " + h.help + "\n"))
	w.Write([]byte("# TYPE " + h.name + " histogram\n"))

	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		w.Write([]byte(h.name + `_bucket{le="` + formatFloat(bound) + `"} `))
		w.Write([]byte(strconv.FormatUint(cumulative, 10) + "\n"))
	}

	w.Write([]byte(h.name + `_bucket{le="+Inf"} `))
	w.Write([]byte(strconv.FormatUint(h.count, 10) + "\n"))

	w.Write([]byte(h.name + "_sum " + formatFloat(h.sum) + "\n"))
	w.Write([]byte(h.name + "_count " + strconv.FormatUint(h.count, 10) + "\n"))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// PipelineMetrics bundles the counters and gauges the indexing pipeline
// reports. Construct one per process and pass it to the components that
// record into it.
type PipelineMetrics struct {
	Registry *MetricsRegistry

	// Reconciliation
	DocumentsDiscovered *Counter
	DocumentsRetired    *Counter

	// Indexing pipeline
	DocumentsIndexed  *Counter
	DocumentsPurged   *Counter
	IndexFailures     *Counter
	ExtractFailures   *Counter
	EmbedFailures     *Counter
	IndexCycleSeconds *Histogram
	PendingDocuments  *Gauge
	ActiveWorkers     *Gauge

	// Search
	FusedQueries       *Counter
	SearchErrors       *Counter
	SearchLatencySecs  *Histogram
	KeywordQueries     *Counter
}

// NewPipelineMetrics creates the pipeline metric set on a fresh registry.
func NewPipelineMetrics() *PipelineMetrics {
	r := NewMetricsRegistry()

	return &PipelineMetrics{
		Registry: r,

		DocumentsDiscovered: r.NewCounter("linkhive_documents_discovered_total", "Documents recorded for indexing"),
		DocumentsRetired:    r.NewCounter("linkhive_documents_retired_total", "Documents marked deleted"),

		DocumentsIndexed:  r.NewCounter("linkhive_documents_indexed_total", "Documents indexed successfully"),
		DocumentsPurged:   r.NewCounter("linkhive_documents_purged_total", "Deleted documents purged from indexes"),
		IndexFailures:     r.NewCounter("linkhive_index_failures_total", "Document indexing attempts that failed"),
		ExtractFailures:   r.NewCounter("linkhive_extract_failures_total", "Content extraction failures"),
		EmbedFailures:     r.NewCounter("linkhive_embed_failures_total", "Embedding failures"),
		IndexCycleSeconds: r.NewHistogram("linkhive_index_cycle_seconds", "Duration of one indexing poll cycle", nil),
		PendingDocuments:  r.NewGauge("linkhive_pending_documents", "Documents awaiting indexing at last poll"),
		ActiveWorkers:     r.NewGauge("linkhive_active_workers", "Indexing workers currently running"),

		FusedQueries:      r.NewCounter("linkhive_fused_queries_total", "Hybrid search queries served"),
		SearchErrors:      r.NewCounter("linkhive_search_errors_total", "Search queries that failed"),
		SearchLatencySecs: r.NewHistogram("linkhive_search_latency_seconds", "Hybrid search latency", nil),
		KeywordQueries:    r.NewCounter("linkhive_keyword_queries_total", "Keyword-only search queries served"),
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *PipelineMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

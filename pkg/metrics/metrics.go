// Package metrics holds the Prometheus collectors for the import and posting pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reconcile"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ImportedRows    prometheus.Counter
	DuplicateRows   prometheus.Counter
	RowFaults       *prometheus.CounterVec
	ProfileLookups  *prometheus.CounterVec
	ImportDuration  prometheus.Histogram
	Postings        *prometheus.CounterVec
	PostingFailures *prometheus.CounterVec
	Categorized     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ImportedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "imported_rows_total",
			Help: "Statement lines persisted as bank transactions.",
		}),
		DuplicateRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "duplicate_rows_total",
			Help: "Statement lines skipped because their dedupe key already existed.",
		}),
		RowFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "row_faults_total",
			Help: "Row-level parse faults by field.",
		}, []string{"field"}),
		ProfileLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "profile_lookups_total",
			Help: "Column mapping resolutions by source (exact, similar, weak, auto).",
		}, []string{"source"}),
		ImportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "import_duration_seconds",
			Help:    "Wall time of one file import.",
			Buckets: prometheus.DefBuckets,
		}),
		Postings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "postings_total",
			Help: "Vouchers created by voucher type.",
		}, []string{"voucher_type"}),
		PostingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "posting_failures_total",
			Help: "Posting attempts rejected or failed, by reason.",
		}, []string{"reason"}),
		Categorized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "categorized_total",
			Help: "Categorization outcomes (matched, unmatched, confirmed).",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.ImportedRows, m.DuplicateRows, m.RowFaults, m.ProfileLookups, m.ImportDuration,
		m.Postings, m.PostingFailures, m.Categorized,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns the process-wide collectors.
func Default() *Metrics {
	defaultOnce.Do(func() { defaultM = New() })
	return defaultM
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) AddImported(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ImportedRows.Add(float64(n))
}

func (m *Metrics) AddDuplicates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DuplicateRows.Add(float64(n))
}

func (m *Metrics) RowFault(field string) {
	if m == nil {
		return
	}
	m.RowFaults.WithLabelValues(field).Inc()
}

func (m *Metrics) ProfileLookup(source string) {
	if m == nil {
		return
	}
	m.ProfileLookups.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveImport(seconds float64) {
	if m == nil {
		return
	}
	m.ImportDuration.Observe(seconds)
}

func (m *Metrics) Posted(voucherType string) {
	if m == nil {
		return
	}
	m.Postings.WithLabelValues(voucherType).Inc()
}

func (m *Metrics) PostingFailed(reason string) {
	if m == nil {
		return
	}
	m.PostingFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) CategorizeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Categorized.WithLabelValues(outcome).Inc()
}

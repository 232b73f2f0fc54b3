package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.AddImported(3)
	m.AddImported(0)
	m.AddDuplicates(2)
	m.RowFault("date")
	m.RowFault("date")
	m.ProfileLookup("exact")
	m.Posted("Payment")
	m.PostingFailed("already_posted")

	assert.InDelta(t, 3, testutil.ToFloat64(m.ImportedRows), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.DuplicateRows), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.RowFaults.WithLabelValues("date")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ProfileLookups.WithLabelValues("exact")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Postings.WithLabelValues("Payment")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PostingFailures.WithLabelValues("already_posted")), 1e-9)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AddImported(1)
		m.RowFault("amount")
		m.ObserveImport(0.5)
		m.Posted("Journal Entry")
		m.CategorizeOutcome("matched")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.AddImported(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reconcile_imported_rows_total 1")
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.Frame(OutcomeAdded)
		r.Classified(time.Millisecond)
		r.Transition("PAID")
		r.InvoiceIssued()
		r.Drift()
		r.HTTPRequest("GET", "/healthz", "200", time.Millisecond)
	})
}

func TestRegistry_Counts(t *testing.T) {
	r := NewRegistry()

	r.Frame(OutcomeAdded)
	r.Frame(OutcomeAdded)
	r.Frame(OutcomeReplayed)
	r.InvoiceIssued()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.FramesIngested.WithLabelValues(OutcomeAdded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FramesIngested.WithLabelValues(OutcomeReplayed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.InvoicesIssued))
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Negotiation("direct", "ok")
		m.Fetch("bytes", "ok", 10)
		m.Delivery("scheduled", "sent")
	})
	assert.Nil(t, m.Registry())
}

func TestCountersIncrement(t *testing.T) {
	m := New()

	m.Negotiation("direct", "failed")
	m.Negotiation("direct", "failed")
	m.Negotiation("upgrade", "ok")
	m.Fetch("archive", "declared_size_exceeded", 0)
	m.Delivery("test", "sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.negotiations.WithLabelValues("direct", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.negotiations.WithLabelValues("upgrade", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("archive", "declared_size_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("test", "sent")))
}

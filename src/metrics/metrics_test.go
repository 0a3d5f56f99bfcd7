package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Correlation(OutcomeResolved)
	m.PublishFailed("ws://x")
	m.QueryFailed("ws://x")
	m.Seed(SeedFailed)
	m.DiscoveredPeers(3)
	m.TrustComputed()
}

func TestCounters(t *testing.T) {
	m := New("peerd")
	m.Correlation(OutcomeResolved)
	m.Correlation(OutcomeResolved)
	m.Correlation(OutcomeTimeout)
	m.DiscoveredPeers(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.correlations.WithLabelValues(OutcomeResolved)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.correlations.WithLabelValues(OutcomeTimeout)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.discoveredPeers))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "peerd_discovered_peers 4"))
}

func TestIndependentRegistries(t *testing.T) {
	a := New("peerd")
	b := New("peerd")
	a.Seed(SeedSucceeded)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.seeds.WithLabelValues(SeedSucceeded)))
}

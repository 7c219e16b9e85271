package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, m *PrometheusMetrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestNoOpMetrics(t *testing.T) {
	m := NewNoOpMetrics()
	assert.NotPanics(t, func() {
		m.Counter("c", 1, map[string]string{"a": "b"})
		m.Gauge("g", 2, nil)
		m.Histogram("h", 3, nil)
		m.Timer("t", 0.5, nil)
	})
}

func TestPrometheusCounter(t *testing.T) {
	m := NewPrometheusMetrics("userbio")

	labels := map[string]string{"provider": "gemini", "outcome": "success"}
	m.Counter("provider_attempts_total", 1, labels)
	m.Counter("provider_attempts_total", 2, labels)
	m.Counter("provider_attempts_total", 1, map[string]string{"provider": "openai", "outcome": "error"})

	family := findFamily(t, m, "userbio_provider_attempts_total")
	require.NotNil(t, family)
	require.Len(t, family.GetMetric(), 2)

	var total float64
	for _, metric := range family.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	assert.Equal(t, 4.0, total)
}

func TestPrometheusDropsMismatchedLabels(t *testing.T) {
	m := NewPrometheusMetrics("userbio")

	m.Counter("requests_total", 1, map[string]string{"path": "/a"})
	assert.NotPanics(t, func() {
		m.Counter("requests_total", 1, map[string]string{"method": "GET"})
		m.Counter("requests_total", -5, map[string]string{"path": "/a"})
	})

	family := findFamily(t, m, "userbio_requests_total")
	require.NotNil(t, family)
	require.Len(t, family.GetMetric(), 1)
	assert.Equal(t, 1.0, family.GetMetric()[0].GetCounter().GetValue())
}

func TestPrometheusGaugeAndTimer(t *testing.T) {
	m := NewPrometheusMetrics("userbio")

	m.Gauge("providers_configured", 2, nil)
	m.Gauge("providers_configured", 1, nil)
	m.Timer("bio_generation_duration_seconds", 0.25, map[string]string{"result": "success"})

	gauge := findFamily(t, m, "userbio_providers_configured")
	require.NotNil(t, gauge)
	assert.Equal(t, 1.0, gauge.GetMetric()[0].GetGauge().GetValue())

	hist := findFamily(t, m, "userbio_bio_generation_duration_seconds")
	require.NotNil(t, hist)
	assert.Equal(t, uint64(1), hist.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestPrometheusHandler(t *testing.T) {
	m := NewPrometheusMetrics("userbio")
	m.Counter("http_requests_total", 1, map[string]string{"status": "200"})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `userbio_http_requests_total{status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

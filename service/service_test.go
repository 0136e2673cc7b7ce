package service

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthzHandler(t *testing.T) {
	srv := httptest.NewServer((&HealthzServer{}).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "hostrunner_test_counter", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	srv := httptest.NewServer((&MetricsServer{Gatherer: reg}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hostrunner_test_counter 1")
}

func TestNewDefaults(t *testing.T) {
	s := New(Config{})
	assert.Equal(t, "0.0.0.0:8080", s.cfg.HealthzAddr)
	assert.Equal(t, "0.0.0.0:7300", s.cfg.MetricsAddr)
	assert.NoError(t, s.Healthz.Shutdown())
	assert.NoError(t, s.Metrics.Shutdown())
}

func TestNewWithoutMetrics(t *testing.T) {
	s := New(Config{HealthzAddr: "127.0.0.1:0", DisableMetrics: true})
	assert.Nil(t, s.Metrics)
	assert.Equal(t, "127.0.0.1:0", s.cfg.HealthzAddr)
	s.Shutdown()
}

package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "researchflow_test_total", Help: "test counter"})
	reg.MustRegister(c)
	c.Add(3)
	return reg
}

func localConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":9091", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestMetricsHandler(t *testing.T) {
	h := NewMetricsHandler(testRegistry(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "researchflow_test_total 3")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManager_StartAndShutdown(t *testing.T) {
	m := NewManager(NewMetricsHandler(testRegistry(t)), localConfig(), zaptest.NewLogger(t))
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + m.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "researchflow_test_total")

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(http.NewServeMux(), localConfig(), zap.NewNop())
	assert.True(t, m.IsRunning())
	assert.Equal(t, "127.0.0.1:0", m.Addr())

	require.NoError(t, m.Start())
	assert.NotEqual(t, "127.0.0.1:0", m.Addr())

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	err = m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	select {
	case err := <-m.Errors():
		t.Fatalf("unexpected server error: %v", err)
	default:
	}
}

func TestManager_ListenFailure(t *testing.T) {
	first := NewManager(http.NewServeMux(), localConfig(), zap.NewNop())
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	cfg := localConfig()
	cfg.Addr = first.Addr()
	second := NewManager(http.NewServeMux(), cfg, nil)
	err := second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}

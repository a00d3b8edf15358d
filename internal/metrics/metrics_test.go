package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.UnitSpawned()
	m.UnitSpawned()
	m.UnitExited("crash")
	m.Wait("queued")
	m.Message("spawn")
	m.SetTable(3, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.spawned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exited.WithLabelValues("crash")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.waits.WithLabelValues("queued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("spawn")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.running))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.zombies))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.UnitSpawned()
		m.UnitExited("exit")
		m.Wait("reaped")
		m.Message("output")
		m.SetTable(1, 1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.UnitSpawned()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "unitd_units_spawned_total 1"), body)
	assert.Contains(t, body, "go_goroutines")
}

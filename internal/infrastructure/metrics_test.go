package infrastructure

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Reconciled("existing")
		m.DirectoryLookup("found")
		m.Transition("com_ia", "fila_humano")
		m.QueueWait(time.Second)
		m.Delivery("ok")
		m.Webhook("processed")
		m.EventDropped()
	})
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.Webhook("processed")
	m.DirectoryLookup("unavailable")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `associa_webhook_events_total{result="processed"} 1`)
	assert.Contains(t, w.Body.String(), `associa_directory_lookups_total{outcome="unavailable"} 1`)
}

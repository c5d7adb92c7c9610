package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOutcomeAndRender(t *testing.T) {
	m := New()
	m.ObserveOutcome("rendered")
	m.ObserveOutcome("rendered")
	m.ObserveOutcome("rate_limited")
	m.ObserveRender(nil, 200*time.Millisecond)
	m.ObserveRender(errors.New("boom"), time.Second)
	m.ObserveSent("text")
	m.ObserveDispatch("send.text", nil)
	m.ObserveDispatch("send.text", errors.New("403"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("rendered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.renders.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.renders.WithLabelValues("fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sent.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatched.WithLabelValues("send.text", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatched.WithLabelValues("send.text", "fail")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.renderDuration))
	assert.Equal(t, 2, testutil.CollectAndCount(m.dispatched))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOutcome("ok")
	m.ObserveRender(nil, time.Second)
	m.ObserveSent("text")
	m.ObserveDispatch("send.text", nil)
	m.Gauge("x", "y", func() float64 { return 1 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerServesMetricsAndHealth(t *testing.T) {
	m := New()
	sessions := 3.0
	m.Gauge("sessions", "Open dialog sessions.", func() float64 { return sessions })
	m.ObserveOutcome("ok")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Contains(t, string(body), `ticketbot_events_total{outcome="ok"} 1`)
	assert.Contains(t, string(body), "ticketbot_sessions 3")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

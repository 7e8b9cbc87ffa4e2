package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Event("text")
		m.GameStarted()
		m.GameEnded("completed")
		m.Answer("correct")
		m.Generation("ok", time.Second)
		m.SetSessions(3)
		m.RecordDropped()
		m.EgressError()
	})
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.GameStarted()
	m.GameStarted()
	m.GameEnded("exit")
	m.Answer("wrong")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.gamesStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gamesEnded.WithLabelValues("exit")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "quizbot_games_started_total 2"))
}

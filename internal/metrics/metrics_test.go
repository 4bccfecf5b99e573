package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/chatpurge/internal/purge"
)

var (
	_ purge.Observer     = (*Metrics)(nil)
	_ purge.ProgressSink = (*Metrics)(nil)
)

func TestObserveFetchAndDelete(t *testing.T) {
	m := New()

	m.ObserveFetch(purge.FetchOK, nil)
	m.ObserveFetch(purge.FetchOK, nil)
	m.ObserveFetch(purge.FetchRateLimited, nil)
	m.ObserveDelete(purge.Message{ID: "1"}, purge.OutcomeDeleted, nil)
	m.ObserveDelete(purge.Message{ID: "2"}, purge.OutcomeForbidden, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeletesTotal.WithLabelValues("deleted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeletesTotal.WithLabelValues("forbidden")))
}

func TestPublish(t *testing.T) {
	m := New()

	m.Publish(purge.Snapshot{
		TotalDeleted:   3,
		TotalProcessed: 7,
		CurrentDelay:   1500 * time.Millisecond,
		State:          purge.Paused,
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.DeletedTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ProcessedTotal))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.CurrentDelay))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunState.WithLabelValues("paused")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunState.WithLabelValues("running")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveFetch(purge.FetchOK, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chatpurge_page_fetches_total{result="ok"} 1`)
}

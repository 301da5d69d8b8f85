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

func TestObserveRun(t *testing.T) {
	m := New()

	m.ObserveRun("notif", 2*time.Second, nil)
	m.ObserveRun("notif", time.Second, errors.New("boom"))
	m.ObserveRun("notif", time.Second, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Runs.WithLabelValues("notif", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("notif", StatusFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestSetCursor(t *testing.T) {
	m := New()
	m.SetCursor("notif", "last_timestamp", 1700001999)
	assert.Equal(t, 1700001999.0, testutil.ToFloat64(m.CheckpointCursor.WithLabelValues("notif", "last_timestamp")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordsEmitted.WithLabelValues("notif").Add(3)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `otcollector_records_emitted_total{source="notif"} 3`)
	assert.Contains(t, string(body), "go_goroutines")
}

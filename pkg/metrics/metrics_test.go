package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsInert(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Propagated(LocalToShared)
		c.Skip(SharedToLocal, SkipGuard)
		c.EntryAppended("insert")
		c.EntryEvicted()
		c.SessionOpened()
		c.SessionClosed()
		c.Probed("connected")
		c.RelayPeerJoined()
		c.RelayPeerLeft()
		c.RelayFrame()
		c.ArchiveFailed()
	})
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestCountersTrackCalls(t *testing.T) {
	c := New(false)
	c.Propagated(LocalToShared)
	c.Propagated(LocalToShared)
	c.Propagated(SharedToLocal)
	c.Skip(LocalToShared, SkipGuard)
	c.EntryAppended("undo")
	c.EntryEvicted()
	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Propagations.WithLabelValues(LocalToShared)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Propagations.WithLabelValues(SharedToLocal)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Skipped.WithLabelValues(LocalToShared, SkipGuard)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LogEntries.WithLabelValues("undo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LogEvictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Sessions))
}

func TestSeparateCollectorsDoNotShareState(t *testing.T) {
	a, b := New(false), New(false)
	a.RelayFrame()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.RelayFrames))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RelayFrames))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New(true)
	c.Probed("disconnected")
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `coedit_relay_probes_total{status="disconnected"} 1`))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}

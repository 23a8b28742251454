package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpRemotePoll, 10*time.Millisecond)
	c.RecordTiming(OpRemotePoll, 30*time.Millisecond)
	c.RecordError(OpRemotePoll, 20*time.Millisecond)

	snap := c.Snapshot()
	poll := snap.Operations[OpRemotePoll]
	require.NotNil(t, poll)
	assert.Equal(t, int64(3), poll.Count)
	assert.Equal(t, int64(1), poll.Errors)
	assert.Equal(t, int64(10), poll.MinTimeMs)
	assert.Equal(t, int64(30), poll.MaxTimeMs)
	assert.InDelta(t, 20.0, poll.AvgTimeMs, 0.01)
	assert.Nil(t, snap.Operations[OpCacheGet])
}

func TestCollectorObserveAndCounters(t *testing.T) {
	c := NewCollector()
	c.Observe(OpCacheGet, time.Now(), nil)
	c.Observe(OpCacheGet, time.Now(), errors.New("boom"))
	c.Add(CounterCacheHit, 2)
	c.Add(CounterCacheHit, 3)

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.Operations[OpCacheGet].Count)
	assert.Equal(t, int64(1), snap.Operations[OpCacheGet].Errors)
	assert.Equal(t, int64(5), snap.Counters[CounterCacheHit])
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTiming(OpCluster, time.Second)
		c.Add(CounterCacheMiss, 1)
	})
}

func TestPrometheusCollector(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpRemoteSubmit, 2*time.Second)
	c.Add(CounterKeywordFailed, 4)

	pc := NewPrometheusCollector(c)

	expected := `
# HELP serpcluster_events_total Pipeline event counters
# TYPE serpcluster_events_total counter
serpcluster_events_total{event="keyword_failed"} 4
`
	err := testutil.CollectAndCompare(pc, strings.NewReader(expected), "serpcluster_events_total")
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(pc, "serpcluster_operation_total"))
}

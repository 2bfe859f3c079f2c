package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fleetbus/metric"
	"github.com/c360/fleetbus/plugin"
)

func TestRunnerStats_Counts(t *testing.T) {
	s, err := NewRunnerStats(nil)
	require.NoError(t, err)

	s.Received()
	s.Received()
	s.Validated()
	s.Unvalidated()
	s.Passed()
	s.Filtered()
	s.Sent()
	s.TTLExpired()

	snap := s.Snapshot()
	assert.Equal(t, 2.0, snap[Total])
	assert.Equal(t, 1.0, snap[Validated])
	assert.Equal(t, 1.0, snap[Unvalidated])
	assert.Equal(t, 1.0, snap[Passed])
	assert.Equal(t, 1.0, snap[Filtered])
	assert.Equal(t, 1.0, snap[Replies])
	assert.Equal(t, 1.0, snap[TTLExpired])
	assert.Equal(t, float64(s.StartTime().Unix()), snap["starttime"])
	assert.GreaterOrEqual(t, snap["uptime"], 0.0)
	assert.WithinDuration(t, time.Now(), s.StartTime(), time.Minute)
}

func TestRunnerStats_Prometheus(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	inst, err := Factory(plugin.Dependencies{MetricsRegistry: registry})
	require.NoError(t, err)
	s := inst.(*RunnerStats)

	s.Received()
	s.Passed()
	s.Passed()

	assert.Equal(t, 1.0, testutil.ToFloat64(s.requests.WithLabelValues(Total)))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.requests.WithLabelValues(Passed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.requests.WithLabelValues(Filtered)))
	assert.Equal(t, len(outcomes), testutil.CollectAndCount(s.requests))

	_, err = NewRunnerStats(registry)
	assert.Error(t, err)
}

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_CacheMetrics(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	c.CacheHit("markets", 3)
	c.CacheMiss("markets", 1)
	c.CacheJoined("loan_details", 2)
	c.FetchDone("markets", 20*time.Millisecond, nil)
	c.FetchDone("markets", time.Second, errors.New("rpc down"))

	assert.Equal(t, 3.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("markets")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("markets")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheJoined.WithLabelValues("loan_details")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fetchErrors.WithLabelValues("markets")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.fetchLatency))
}

func TestCollector_StepMetrics(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	c.StepDone("supply", "APPROVE", time.Second, nil)
	c.StepDone("supply", "DEPOSIT", time.Second, errors.New("rejected"))
	c.StepDone("supply", "DEPOSIT", time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.steps.WithLabelValues("supply", "APPROVE", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.steps.WithLabelValues("supply", "DEPOSIT", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.steps.WithLabelValues("supply", "DEPOSIT", "succeeded")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.stepLatency))
}

func TestNewCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)

	_, err = NewCollector(reg)
	assert.Error(t, err)
}

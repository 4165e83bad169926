package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type jobCounter struct {
	mu   sync.Mutex
	runs map[string]int
}

func (c *jobCounter) fn(name string) RefreshFunc {
	return func(ctx context.Context) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.runs == nil {
			c.runs = map[string]int{}
		}
		c.runs[name]++
	}
}

func (c *jobCounter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[name]
}

func TestPoller_TicksSkippedWhileHidden(t *testing.T) {
	p := NewPoller(0, zap.NewNop())
	c := &jobCounter{}
	p.Register("forms", time.Second, c.fn("forms"))
	ctx := context.Background()

	assert.True(t, p.HandleTick(ctx, "forms"))
	assert.False(t, p.HandleTick(ctx, "unknown"))
	assert.Equal(t, 1, c.get("forms"))

	assert.False(t, p.SetVisible(ctx, false))
	assert.False(t, p.Visible())
	assert.False(t, p.HandleTick(ctx, "forms"))
	assert.False(t, p.TriggerAll(ctx))
	assert.Equal(t, 1, c.get("forms"))
}

func TestPoller_ResumeRefreshesEverything(t *testing.T) {
	p := NewPoller(time.Hour, zap.NewNop())
	c := &jobCounter{}
	p.Register("forms", time.Second, c.fn("forms"))
	p.Register("markets", 0, c.fn("markets"))
	ctx := context.Background()

	p.SetVisible(ctx, false)
	assert.True(t, p.SetVisible(ctx, true))
	assert.Equal(t, 1, c.get("forms"))
	assert.Equal(t, 1, c.get("markets"))

	// Already visible.
	assert.False(t, p.SetVisible(ctx, true))
	assert.Equal(t, 1, c.get("forms"))
}

func TestPoller_TriggerAllIsRateLimited(t *testing.T) {
	p := NewPoller(time.Hour, zap.NewNop())
	c := &jobCounter{}
	p.Register("loans", 0, c.fn("loans"))
	ctx := context.Background()

	assert.True(t, p.TriggerAll(ctx))
	assert.False(t, p.TriggerAll(ctx))
	assert.Equal(t, 1, c.get("loans"))
}

func TestPoller_StartUsesTickers(t *testing.T) {
	p := NewPoller(0, zap.NewNop())
	c := &jobCounter{}
	ticks := make(chan time.Time)
	var stopped sync.WaitGroup
	stopped.Add(1)
	p.newTicker = func(d time.Duration) (<-chan time.Time, func()) {
		return ticks, stopped.Done
	}
	p.Register("prices", time.Minute, c.fn("prices"))
	p.Register("disabled", 0, c.fn("disabled"))

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	p.Start(ctx)

	ticks <- time.Now()
	ticks <- time.Now()
	require.Eventually(t, func() bool { return c.get("prices") == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, c.get("disabled"))

	cancel()
	stopped.Wait()
}

func TestPoller_CancelledContextSkipsJobs(t *testing.T) {
	p := NewPoller(0, zap.NewNop())
	c := &jobCounter{}
	p.Register("forms", time.Second, c.fn("forms"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.HandleTick(ctx, "forms")
	assert.Equal(t, 0, c.get("forms"))
}

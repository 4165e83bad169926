package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RefreshFunc re-fetches one slice with shouldRefetch set.
type RefreshFunc func(ctx context.Context)

type pollJob struct {
	name     string
	interval time.Duration
	fn       RefreshFunc
}

// Poller runs registered refresh jobs on their intervals while the page is
// visible. Ticks that arrive while hidden are dropped; becoming visible again
// refreshes every job at once.
type Poller struct {
	logger *zap.Logger

	mu      sync.Mutex
	jobs    []*pollJob
	visible bool
	started bool

	// trigger throttles TriggerAll, which is driven by the block feed.
	trigger *rate.Limiter

	newTicker func(d time.Duration) (<-chan time.Time, func()) // For testing
}

// NewPoller returns a visible poller. minTriggerGap bounds how often
// TriggerAll may run.
func NewPoller(minTriggerGap time.Duration, logger *zap.Logger) *Poller {
	limit := rate.Inf
	if minTriggerGap > 0 {
		limit = rate.Every(minTriggerGap)
	}
	return &Poller{
		logger:  logger,
		visible: true,
		trigger: rate.NewLimiter(limit, 1),
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Register adds a job. Jobs registered after Start are only run by
// TriggerAll and visibility changes.
func (p *Poller) Register(name string, interval time.Duration, fn RefreshFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, &pollJob{name: name, interval: interval, fn: fn})
}

// Start launches one ticker per job until ctx is done.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	jobs := append([]*pollJob(nil), p.jobs...)
	p.mu.Unlock()

	p.logger.Info("Starting poller", zap.Int("jobs", len(jobs)))
	for _, job := range jobs {
		if job.interval <= 0 {
			continue
		}
		ticks, stop := p.newTicker(job.interval)
		go func(job *pollJob) {
			defer stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticks:
					p.HandleTick(ctx, job.name)
				}
			}
		}(job)
	}
}

// HandleTick runs the named job unless the page is hidden. It reports
// whether the job ran.
func (p *Poller) HandleTick(ctx context.Context, name string) bool {
	p.mu.Lock()
	visible := p.visible
	var job *pollJob
	for _, j := range p.jobs {
		if j.name == name {
			job = j
			break
		}
	}
	p.mu.Unlock()

	if !visible || job == nil {
		return false
	}
	p.run(ctx, job)
	return true
}

// SetVisible records page visibility. Regaining visibility refreshes every
// job immediately and reports true.
func (p *Poller) SetVisible(ctx context.Context, visible bool) bool {
	p.mu.Lock()
	resumed := visible && !p.visible
	p.visible = visible
	p.mu.Unlock()

	if !resumed {
		return false
	}
	p.logger.Debug("Page visible again, refreshing")
	p.runAll(ctx)
	return true
}

func (p *Poller) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// TriggerAll refreshes every job, e.g. on a new block. Calls are skipped
// while hidden or when they arrive faster than the trigger limit.
func (p *Poller) TriggerAll(ctx context.Context) bool {
	if !p.Visible() {
		return false
	}
	if !p.trigger.Allow() {
		return false
	}
	p.runAll(ctx)
	return true
}

func (p *Poller) runAll(ctx context.Context) {
	p.mu.Lock()
	jobs := append([]*pollJob(nil), p.jobs...)
	p.mu.Unlock()
	for _, job := range jobs {
		p.run(ctx, job)
	}
}

func (p *Poller) run(ctx context.Context, job *pollJob) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	job.fn(ctx)
	p.logger.Debug("Refreshed", zap.String("job", job.name), zap.Duration("took", time.Since(start)))
}

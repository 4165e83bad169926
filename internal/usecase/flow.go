package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/lendflow/internal/domain"
)

// DefaultConfirmDelay is how long a completed flow stays in CONFIRMATION
// before it re-checks its prerequisites.
const DefaultConfirmDelay = 5 * time.Second

const recheckTimeout = 30 * time.Second

// StepDef declares one step of a flow. Task steps (approvals) precede the
// single trailing action step.
type StepDef struct {
	Key  string
	Type domain.StepType
	// Run submits the step and returns the transaction hash.
	Run func(ctx context.Context) (string, error)
}

// FlowConfig configures a Flow.
type FlowConfig struct {
	Name         string
	Steps        []StepDef
	ConfirmDelay time.Duration
	// Recheck runs after the confirmation delay and reports how many leading
	// task steps are still satisfied, e.g. 1 when allowance remains.
	Recheck func(ctx context.Context) int
	// OnStepDone is called after every attempt, successful or not.
	OnStepDone func(ctx context.Context, step, txHash string, err error)
	Observer   StepObserver
}

// Flow is an ordered transaction state machine. Only one step can run at a
// time and each successful run advances the flow by exactly one step.
type Flow struct {
	cfg FlowConfig

	mu         sync.Mutex
	done       int
	running    bool
	confirming bool
	lastStep   string
	failedStep string
	lastErr    string

	after   func(time.Duration) <-chan time.Time // For testing
	timeNow func() time.Time
}

func NewFlow(cfg FlowConfig) *Flow {
	if cfg.ConfirmDelay <= 0 {
		cfg.ConfirmDelay = DefaultConfirmDelay
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	return &Flow{
		cfg:     cfg,
		after:   time.After,
		timeNow: time.Now,
	}
}

func (f *Flow) actionIndex() int {
	return len(f.cfg.Steps) - 1
}

// Status derives the FormStatus from the flow position.
func (f *Flow) Status() domain.FormStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := domain.FormStatus{Step: f.lastStep, Error: f.lastErr}
	switch {
	case f.confirming:
		status.Phase = domain.PhaseConfirmation
	case f.running && f.done < f.actionIndex():
		status.Phase = domain.PhaseApproving
	case f.running:
		status.Phase = domain.PhaseExecuting
	case f.done >= f.actionIndex():
		status.Phase = domain.PhaseApproved
	default:
		status.Phase = domain.PhaseNotApproved
	}
	return status
}

// Steps renders every step. ready reports whether the form is valid and a
// signer is connected; without it no step becomes current.
func (f *Flow) Steps(ready bool) []domain.Step {
	f.mu.Lock()
	defer f.mu.Unlock()

	steps := make([]domain.Step, len(f.cfg.Steps))
	for i, def := range f.cfg.Steps {
		st := domain.StepPending
		switch {
		case f.confirming || i < f.done:
			st = domain.StepSucceeded
		case i == f.done && f.running:
			st = domain.StepInProgress
		case i == f.done && f.failedStep == def.Key:
			st = domain.StepFailed
		case i == f.done && ready:
			st = domain.StepCurrent
		}
		steps[i] = domain.Step{Key: def.Key, Type: def.Type, Status: st}
	}
	return steps
}

// Satisfy marks the first n task steps as done when the flow is idle,
// e.g. after an allowance check showed the approval is not needed.
func (f *Flow) Satisfy(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running || f.confirming {
		return
	}
	if n > f.actionIndex() {
		n = f.actionIndex()
	}
	if n > f.done {
		f.done = n
		f.failedStep = ""
		f.lastErr = ""
	}
}

// Run triggers the step identified by key. Steps that are not next in line,
// already succeeded, or blocked by an invalid form return
// ErrStepNotActionable and leave the state unchanged.
func (f *Flow) Run(ctx context.Context, key string, ready bool) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return domain.ErrStepBusy
	}
	idx := -1
	for i, def := range f.cfg.Steps {
		if def.Key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		f.mu.Unlock()
		return domain.ErrUnknownStep
	}
	if f.confirming || idx != f.done || !ready {
		f.mu.Unlock()
		return domain.ErrStepNotActionable
	}
	f.running = true
	f.lastStep = key
	f.failedStep = ""
	f.lastErr = ""
	step := f.cfg.Steps[idx]
	f.mu.Unlock()

	start := f.timeNow()
	hash, err := step.Run(ctx)
	f.cfg.Observer.StepDone(f.cfg.Name, key, f.timeNow().Sub(start), err)
	if f.cfg.OnStepDone != nil {
		f.cfg.OnStepDone(ctx, key, hash, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	if err != nil {
		f.failedStep = key
		f.lastErr = err.Error()
		return err
	}
	f.done++
	if f.done == len(f.cfg.Steps) {
		f.confirming = true
		go f.settle()
	}
	return nil
}

// settle ends the confirmation window and re-checks prerequisites.
func (f *Flow) settle() {
	<-f.after(f.cfg.ConfirmDelay)

	satisfied := 0
	if f.cfg.Recheck != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recheckTimeout)
		satisfied = f.cfg.Recheck(ctx)
		cancel()
	}
	if satisfied < 0 {
		satisfied = 0
	}
	if satisfied > f.actionIndex() {
		satisfied = f.actionIndex()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirming = false
	f.done = satisfied
}

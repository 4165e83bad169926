package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/lendflow/internal/domain"
)

type flowHarness struct {
	flow    *Flow
	after   *manualAfter
	mu      sync.Mutex
	fail    map[string]error
	calls   []string
	done    []string
	recheck int
}

func newApproveFlow(t *testing.T) *flowHarness {
	t.Helper()
	h := &flowHarness{after: newManualAfter(), fail: map[string]error{}}
	run := func(key string) func(ctx context.Context) (string, error) {
		return func(ctx context.Context) (string, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.calls = append(h.calls, key)
			if err := h.fail[key]; err != nil {
				return "", err
			}
			return "0x" + key, nil
		}
	}
	h.flow = NewFlow(FlowConfig{
		Name: "test",
		Steps: []StepDef{
			{Key: domain.StepApprove, Type: domain.StepTask, Run: run(domain.StepApprove)},
			{Key: domain.StepDeposit, Type: domain.StepAction, Run: run(domain.StepDeposit)},
		},
		Recheck: func(ctx context.Context) int {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.recheck
		},
		OnStepDone: func(ctx context.Context, step, txHash string, err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.done = append(h.done, step)
		},
	})
	h.flow.after = h.after.After
	return h
}

func statuses(steps []domain.Step) []domain.StepStatus {
	out := make([]domain.StepStatus, len(steps))
	for i, s := range steps {
		out[i] = s.Status
	}
	return out
}

func TestFlow_InitialState(t *testing.T) {
	h := newApproveFlow(t)

	assert.Equal(t, domain.PhaseNotApproved, h.flow.Status().Phase)
	assert.Equal(t, []domain.StepStatus{domain.StepPending, domain.StepPending}, statuses(h.flow.Steps(false)))
	assert.Equal(t, []domain.StepStatus{domain.StepCurrent, domain.StepPending}, statuses(h.flow.Steps(true)))
}

func TestFlow_ApproveThenExecuteThenConfirm(t *testing.T) {
	h := newApproveFlow(t)
	ctx := context.Background()

	require.NoError(t, h.flow.Run(ctx, domain.StepApprove, true))
	assert.Equal(t, domain.PhaseApproved, h.flow.Status().Phase)
	assert.True(t, h.flow.Status().IsApproved())
	assert.Equal(t, []domain.StepStatus{domain.StepSucceeded, domain.StepCurrent}, statuses(h.flow.Steps(true)))

	require.NoError(t, h.flow.Run(ctx, domain.StepDeposit, true))
	status := h.flow.Status()
	assert.Equal(t, domain.PhaseConfirmation, status.Phase)
	assert.True(t, status.IsComplete())
	assert.Empty(t, status.Error)
	assert.Equal(t, domain.StepDeposit, status.Step)
	assert.Equal(t, []domain.StepStatus{domain.StepSucceeded, domain.StepSucceeded}, statuses(h.flow.Steps(true)))

	// Allowance remains after the deposit.
	h.mu.Lock()
	h.recheck = 1
	h.mu.Unlock()
	h.after.Fire()

	require.Eventually(t, func() bool {
		return h.flow.Status().Phase == domain.PhaseApproved
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{domain.StepApprove, domain.StepDeposit}, h.done)
}

func TestFlow_ConfirmationResetsToNotApproved(t *testing.T) {
	h := newApproveFlow(t)
	ctx := context.Background()

	require.NoError(t, h.flow.Run(ctx, domain.StepApprove, true))
	require.NoError(t, h.flow.Run(ctx, domain.StepDeposit, true))
	h.after.Fire()

	require.Eventually(t, func() bool {
		return h.flow.Status().Phase == domain.PhaseNotApproved
	}, time.Second, time.Millisecond)
}

func TestFlow_StepsNotActionable(t *testing.T) {
	h := newApproveFlow(t)
	ctx := context.Background()

	// Out of order.
	assert.ErrorIs(t, h.flow.Run(ctx, domain.StepDeposit, true), domain.ErrStepNotActionable)
	// Invalid form.
	assert.ErrorIs(t, h.flow.Run(ctx, domain.StepApprove, false), domain.ErrStepNotActionable)
	assert.ErrorIs(t, h.flow.Run(ctx, "NOPE", true), domain.ErrUnknownStep)
	assert.Empty(t, h.calls)

	require.NoError(t, h.flow.Run(ctx, domain.StepApprove, true))
	// Already succeeded.
	assert.ErrorIs(t, h.flow.Run(ctx, domain.StepApprove, true), domain.ErrStepNotActionable)
	assert.Equal(t, []string{domain.StepApprove}, h.calls)
}

func TestFlow_FailureIsRetriable(t *testing.T) {
	h := newApproveFlow(t)
	ctx := context.Background()
	rejected := errors.New("user rejected the request")
	h.fail[domain.StepApprove] = rejected

	err := h.flow.Run(ctx, domain.StepApprove, true)
	assert.ErrorIs(t, err, rejected)
	status := h.flow.Status()
	assert.Equal(t, domain.PhaseNotApproved, status.Phase)
	assert.Equal(t, rejected.Error(), status.Error)
	assert.Equal(t, []domain.StepStatus{domain.StepFailed, domain.StepPending}, statuses(h.flow.Steps(true)))

	h.mu.Lock()
	delete(h.fail, domain.StepApprove)
	h.mu.Unlock()
	require.NoError(t, h.flow.Run(ctx, domain.StepApprove, true))
	assert.Empty(t, h.flow.Status().Error)
	assert.Equal(t, domain.PhaseApproved, h.flow.Status().Phase)
}

func TestFlow_BusyWhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	flow := NewFlow(FlowConfig{
		Name: "busy",
		Steps: []StepDef{{
			Key:  domain.StepUnstake,
			Type: domain.StepAction,
			Run: func(ctx context.Context) (string, error) {
				close(started)
				<-release
				return "0x1", nil
			},
		}},
	})
	after := newManualAfter()
	flow.after = after.After

	errc := make(chan error, 1)
	go func() { errc <- flow.Run(context.Background(), domain.StepUnstake, true) }()
	<-started

	status := flow.Status()
	assert.Equal(t, domain.PhaseExecuting, status.Phase)
	assert.True(t, status.IsInProgress())
	assert.Equal(t, domain.StepUnstake, status.Step)
	assert.Equal(t, []domain.StepStatus{domain.StepInProgress}, statuses(flow.Steps(true)))
	assert.ErrorIs(t, flow.Run(context.Background(), domain.StepUnstake, true), domain.ErrStepBusy)

	close(release)
	require.NoError(t, <-errc)
	assert.True(t, flow.Status().IsComplete())
}

func TestFlow_Monotonic(t *testing.T) {
	h := newApproveFlow(t)
	ctx := context.Background()

	succeeded := func() int {
		n := 0
		active := 0
		for _, s := range h.flow.Steps(true) {
			switch s.Status {
			case domain.StepSucceeded:
				n++
			case domain.StepCurrent, domain.StepInProgress:
				active++
			}
		}
		assert.LessOrEqual(t, active, 1)
		return n
	}

	prev := succeeded()
	for _, key := range []string{domain.StepApprove, domain.StepDeposit} {
		require.NoError(t, h.flow.Run(ctx, key, true))
		n := succeeded()
		assert.Equal(t, prev+1, n)
		prev = n
	}
}

func TestFlow_Satisfy(t *testing.T) {
	h := newApproveFlow(t)

	h.flow.Satisfy(5)
	assert.Equal(t, domain.PhaseApproved, h.flow.Status().Phase)
	assert.Equal(t, []domain.StepStatus{domain.StepSucceeded, domain.StepCurrent}, statuses(h.flow.Steps(true)))
	assert.Empty(t, h.calls)
}

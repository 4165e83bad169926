package domain

// Phase is the single source of truth for where a transaction flow stands.
type Phase string

const (
	PhaseNotApproved  Phase = "NOT_APPROVED"
	PhaseApproving    Phase = "APPROVING"
	PhaseApproved     Phase = "APPROVED"
	PhaseExecuting    Phase = "EXECUTING"
	PhaseConfirmation Phase = "CONFIRMATION"
)

// FormStatus describes the current point in a multi-step transaction.
type FormStatus struct {
	Phase Phase  `json:"phase"`
	Step  string `json:"step"`
	Error string `json:"error"`
}

func (s FormStatus) IsApproved() bool {
	switch s.Phase {
	case PhaseApproved, PhaseExecuting, PhaseConfirmation:
		return true
	}
	return false
}

func (s FormStatus) IsInProgress() bool {
	return s.Phase == PhaseApproving || s.Phase == PhaseExecuting
}

func (s FormStatus) IsComplete() bool {
	return s.Phase == PhaseConfirmation
}

type StepType string

const (
	StepTask   StepType = "task"
	StepAction StepType = "action"
)

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepCurrent    StepStatus = "current"
	StepInProgress StepStatus = "in-progress"
	StepSucceeded  StepStatus = "succeeded"
	StepFailed     StepStatus = "failed"
)

// Step is the rendered state of one step of a flow.
type Step struct {
	Key    string     `json:"key"`
	Type   StepType   `json:"type"`
	Status StepStatus `json:"status"`
}

// FormType names the action a form evaluates.
type FormType string

const (
	FormUnstake            FormType = "unstake"
	FormDeposit            FormType = "deposit"
	FormCreateLoan         FormType = "create-loan"
	FormBorrowMore         FormType = "borrow-more"
	FormCollateralDecrease FormType = "collateral-decrease"
	FormRepay              FormType = "repay"
)

// Amount validation errors surfaced next to the field.
const (
	AmountErrorTooMuchWallet     = "too-much-wallet"
	AmountErrorTooMuchCollateral = "too-much-collateral"
	AmountErrorTooMuchDebt       = "too-much-debt"
	AmountErrorInvalid           = "invalid-amount"
)

// Step keys.
const (
	StepApprove    = "APPROVE"
	StepUnstake    = "UNSTAKE"
	StepDeposit    = "DEPOSIT"
	StepCreateLoan = "CREATE_LOAN"
	StepBorrowMore = "BORROW_MORE"
	StepRemove     = "REMOVE_COLLATERAL"
	StepRepay      = "REPAY"
)

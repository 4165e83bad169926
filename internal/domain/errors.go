package domain

import "errors"

var (
	ErrNoSigner          = errors.New("lendflow: wallet not connected")
	ErrSignerMismatch    = errors.New("lendflow: connected wallet does not own the account")
	ErrStepBusy          = errors.New("lendflow: another step is in progress")
	ErrStepNotActionable = errors.New("lendflow: step is not actionable")
	ErrUnknownStep       = errors.New("lendflow: unknown step")
	ErrNoData            = errors.New("lendflow: no data returned")
	ErrNotFound          = errors.New("lendflow: not found")
	ErrFetchAborted      = errors.New("lendflow: fetch aborted")
)

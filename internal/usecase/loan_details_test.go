package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoanDetails_BatchFetchAndSkip(t *testing.T) {
	sdk := NewMockSDK()
	sdk.Loans["m1"] = existingLoan()
	s := NewLoanDetailsSlice(sdk, NopObserver{}, zap.NewNop())

	refs := []LoanRef{
		{Chain: testChain, Market: "m1", Account: testAccount},
		{Chain: testChain, Market: "m2", Account: testAccount},
		{Chain: testChain, Market: "m3"},
	}
	entries, err := s.FetchLoanDetails(context.Background(), refs, false)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[refs[0].Key()].Data.Exists)
	assert.False(t, entries[refs[1].Key()].Data.Exists)
	assert.Equal(t, 2, sdk.CallCount("UserLoanDetails"))

	_, err = s.FetchLoanDetails(context.Background(), refs, false)
	require.NoError(t, err)
	assert.Equal(t, 2, sdk.CallCount("UserLoanDetails"))

	s.Refresh(context.Background())
	assert.Equal(t, 4, sdk.CallCount("UserLoanDetails"))
}

func TestLoanDetails_FailureKeepsPreviousData(t *testing.T) {
	sdk := NewMockSDK()
	sdk.Loans["m1"] = existingLoan()
	s := NewLoanDetailsSlice(sdk, NopObserver{}, zap.NewNop())
	ref := LoanRef{Chain: testChain, Market: "m1", Account: testAccount}

	_, err := s.FetchLoanDetails(context.Background(), []LoanRef{ref}, false)
	require.NoError(t, err)

	rpcDown := errors.New("rpc down")
	sdk.mu.Lock()
	sdk.LoanErr = rpcDown
	sdk.mu.Unlock()

	entries, err := s.FetchLoanDetails(context.Background(), []LoanRef{ref}, true)
	assert.ErrorIs(t, err, rpcDown)
	e := entries[ref.Key()]
	require.NotNil(t, e.Data)
	assert.Equal(t, "100", e.Data.Debt)
	assert.Contains(t, e.Error, "rpc down")
}

func TestLoanDetails_List(t *testing.T) {
	sdk := NewMockSDK()
	sdk.Loans["m2"] = existingLoan()
	s := NewLoanDetailsSlice(sdk, NopObserver{}, zap.NewNop())

	_, err := s.FetchLoanDetails(context.Background(), []LoanRef{
		{Chain: testChain, Market: "m2", Account: testAccount},
		{Chain: testChain, Market: "m1", Account: testAccount},
	}, false)
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "m1", list[0].Market)
	assert.Equal(t, "m2", list[1].Market)
	assert.True(t, list[1].Details.Exists)
	assert.False(t, list[0].Loading)
}

func TestLoanRef_KeyNormalizesAccount(t *testing.T) {
	a := LoanRef{Chain: testChain, Market: "m1", Account: "0xAbC"}
	b := LoanRef{Chain: "Ethereum", Market: "M1", Account: " 0xabc "}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), LoanRef{Chain: testChain, Market: "m2", Account: "0xabc"}.Key())
}

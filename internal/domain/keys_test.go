package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCacheKey_Deterministic(t *testing.T) {
	a := NewCacheKey("ethereum", "one-way-market-3", "0xabc", Field("n", "10"), AmountField("debt", "100"))
	b := NewCacheKey(" Ethereum ", "ONE-WAY-MARKET-3", "0xABC", AmountField("debt", "100.000"), Field("n", "10"))

	assert.Equal(t, a, b)
}

func TestNewCacheKey_DistinguishesInputs(t *testing.T) {
	base := NewCacheKey("ethereum", "m1", "0xabc", AmountField("amount", "1"))

	tests := []struct {
		name string
		key  CacheKey
	}{
		{"chain", NewCacheKey("arbitrum", "m1", "0xabc", AmountField("amount", "1"))},
		{"market", NewCacheKey("ethereum", "m2", "0xabc", AmountField("amount", "1"))},
		{"account", NewCacheKey("ethereum", "m1", "0xdef", AmountField("amount", "1"))},
		{"disconnected", NewCacheKey("ethereum", "m1", "", AmountField("amount", "1"))},
		{"amount", NewCacheKey("ethereum", "m1", "0xabc", AmountField("amount", "2"))},
		{"field name", NewCacheKey("ethereum", "m1", "0xabc", AmountField("debt", "1"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.key)
		})
	}
}

func TestNewCacheKey_EscapesSeparators(t *testing.T) {
	a := NewCacheKey("ethereum", "m|1", "", Field("x", "y"))
	b := NewCacheKey("ethereum", "m", "1", Field("x", "y"))

	assert.NotEqual(t, a, b)
}

func TestCanonicalAmount(t *testing.T) {
	tests := map[string]string{
		"":        "",
		" 100 ":   "100",
		"100.0":   "100",
		"0100.50": "100.5",
		"1e3":     "1000",
		"abc":     "abc",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalAmount(in), "input %q", in)
	}
}

func TestNormalizeAccount(t *testing.T) {
	assert.Equal(t, "0xd533a949740bb3306d119cc777fa900ba034cd52", NormalizeAccount(" 0xD533a949740bb3306d119CC777fa900bA034cd52 "))
	assert.Equal(t, "not-an-address", NormalizeAccount("Not-An-Address"))
	assert.Empty(t, NormalizeAccount(""))
}

func TestFormStatus(t *testing.T) {
	tests := []struct {
		phase      Phase
		approved   bool
		inProgress bool
		complete   bool
	}{
		{PhaseNotApproved, false, false, false},
		{PhaseApproving, false, true, false},
		{PhaseApproved, true, false, false},
		{PhaseExecuting, true, true, false},
		{PhaseConfirmation, true, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			s := FormStatus{Phase: tt.phase}
			assert.Equal(t, tt.approved, s.IsApproved())
			assert.Equal(t, tt.inProgress, s.IsInProgress())
			assert.Equal(t, tt.complete, s.IsComplete())
		})
	}
}

func TestBandRange_Normalized(t *testing.T) {
	assert.Equal(t, BandRange{N1: 3, N2: 9}, BandRange{N1: 9, N2: 3}.Normalized())
	assert.Equal(t, BandRange{N1: 3, N2: 9}, BandRange{N1: 3, N2: 9}.Normalized())
}

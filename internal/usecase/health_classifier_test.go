package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/lendflow/internal/domain"
)

func intPtr(v int) *int { return &v }

func healthParams(active, n1, n2 int) HealthParams {
	return HealthParams{
		ActiveBand:    intPtr(active),
		Amount:        "1500",
		Bands:         &domain.BandRange{N1: n1, N2: n2},
		FormType:      domain.FormCreateLoan,
		HealthFull:    "35.2",
		HealthNotFull: "12.8",
		IsNew:         true,
		CurrColorKey:  domain.ColorHealthy,
	}
}

func TestBandDistancePolicy(t *testing.T) {
	p := BandDistancePolicy{Distance: 4}

	assert.False(t, p.IsCloseToLiquidation(15, 10))
	assert.True(t, p.IsCloseToLiquidation(14, 10))
	assert.True(t, p.IsCloseToLiquidation(10, 10))
}

func TestGetHealthMode_Boundary(t *testing.T) {
	policy := BandDistancePolicy{Distance: 4}

	healthy := GetHealthMode(healthParams(10, 15, 20), policy)
	assert.Equal(t, domain.ColorHealthy, healthy.ColorKey)
	assert.Equal(t, "35.2", healthy.Percent)
	assert.Empty(t, healthy.Message)

	near := GetHealthMode(healthParams(10, 14, 20), policy)
	assert.Equal(t, domain.ColorCloseToLiquidation, near.ColorKey)
	assert.Equal(t, "12.8", near.Percent)
}

func TestGetHealthMode_Messages(t *testing.T) {
	policy := BandDistancePolicy{Distance: 4}

	tests := []struct {
		name     string
		formType domain.FormType
		curr     domain.ColorKey
		want     string
	}{
		{"create loan", domain.FormCreateLoan, domain.ColorHealthy, "Borrowing 1500 will put you close to soft liquidation."},
		{"collateral decrease", domain.FormCollateralDecrease, domain.ColorHealthy, "Removing 1500 collateral will put you close to soft liquidation."},
		{"borrow more", domain.FormBorrowMore, domain.ColorHealthy, "Increasing your borrowed amount by 1500 will put you close to soft liquidation."},
		{"already close", domain.FormCreateLoan, domain.ColorCloseToLiquidation, "You are still close to soft liquidation."},
		{"already soft", domain.FormRepay, domain.ColorSoftLiquidation, "You are still close to soft liquidation."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := healthParams(10, 12, 20)
			p.FormType = tt.formType
			p.CurrColorKey = tt.curr

			got := GetHealthMode(p, policy)
			assert.Equal(t, domain.ColorCloseToLiquidation, got.ColorKey)
			assert.Equal(t, tt.want, got.Message)
		})
	}
}

func TestGetHealthMode_AmountIsCanonicalized(t *testing.T) {
	p := healthParams(10, 12, 20)
	p.Amount = " 0100.50 "

	got := GetHealthMode(p, BandDistancePolicy{Distance: 4})
	assert.Equal(t, "Borrowing 100.5 will put you close to soft liquidation.", got.Message)
}

func TestGetHealthMode_Unknown(t *testing.T) {
	policy := BandDistancePolicy{Distance: 4}

	tests := []struct {
		name   string
		mutate func(p *HealthParams)
		policy LiquidationPolicy
	}{
		{"empty amount", func(p *HealthParams) { p.Amount = "" }, policy},
		{"no health full", func(p *HealthParams) { p.HealthFull = "" }, policy},
		{"no health not full", func(p *HealthParams) { p.HealthNotFull = " " }, policy},
		{"no active band", func(p *HealthParams) { p.ActiveBand = nil }, policy},
		{"no bands", func(p *HealthParams) { p.Bands = nil }, policy},
		{"no policy", func(p *HealthParams) {}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := healthParams(10, 12, 20)
			tt.mutate(&p)
			assert.Equal(t, domain.HealthMode{}, GetHealthMode(p, tt.policy))
		})
	}
}

func TestGetHealthMode_CurrentPosition(t *testing.T) {
	policy := BandDistancePolicy{Distance: 4}

	tests := []struct {
		name   string
		active int
		want   domain.ColorKey
		msg    string
	}{
		{"healthy", 5, domain.ColorHealthy, ""},
		{"close", 10, domain.ColorCloseToLiquidation, ""},
		{"soft", 14, domain.ColorSoftLiquidation, "Your loan is in soft liquidation mode."},
		{"hard", 21, domain.ColorHardLiquidation, "Your loan is below its liquidation range and can be liquidated."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := healthParams(tt.active, 12, 20)
			p.IsNew = false
			p.Amount = ""

			got := GetHealthMode(p, policy)
			assert.Equal(t, tt.want, got.ColorKey)
			assert.Equal(t, tt.msg, got.Message)
		})
	}
}

func TestGetHealthMode_ProspectiveNeverEscalates(t *testing.T) {
	p := healthParams(21, 12, 20)

	got := GetHealthMode(p, BandDistancePolicy{Distance: 4})
	assert.Equal(t, domain.ColorCloseToLiquidation, got.ColorKey)
}

func TestGetHealthMode_ReversedBands(t *testing.T) {
	got := GetHealthMode(healthParams(10, 20, 15), BandDistancePolicy{Distance: 4})
	assert.Equal(t, domain.ColorHealthy, got.ColorKey)
}

func TestEvaluateHealth(t *testing.T) {
	policy := BandDistancePolicy{Distance: 4}

	current := healthParams(10, 12, 20)
	current.Amount = ""
	prospective := healthParams(10, 11, 20)
	prospective.FormType = domain.FormBorrowMore

	pair := EvaluateHealth(current, prospective, policy)
	assert.Equal(t, domain.ColorCloseToLiquidation, pair.Current.ColorKey)
	assert.Empty(t, pair.Current.Message)
	assert.Equal(t, domain.ColorCloseToLiquidation, pair.Prospective.ColorKey)
	assert.Equal(t, "You are still close to soft liquidation.", pair.Prospective.Message)

	current = healthParams(5, 12, 20)
	pair = EvaluateHealth(current, prospective, policy)
	assert.Equal(t, domain.ColorHealthy, pair.Current.ColorKey)
	assert.Equal(t, "Increasing your borrowed amount by 1500 will put you close to soft liquidation.", pair.Prospective.Message)
}

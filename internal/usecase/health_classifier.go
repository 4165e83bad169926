package usecase

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vitos/lendflow/internal/domain"
)

// LiquidationPolicy decides whether a lower band is close to liquidation.
// Its threshold comes from the lending SDK.
type LiquidationPolicy interface {
	IsCloseToLiquidation(lowerBand, activeBand int) bool
}

// BandDistancePolicy flags positions whose lower band is at most Distance
// bands away from the active band.
type BandDistancePolicy struct {
	Distance int
}

func (p BandDistancePolicy) IsCloseToLiquidation(lowerBand, activeBand int) bool {
	return lowerBand-activeBand <= p.Distance
}

// HealthParams are the inputs of one classification.
type HealthParams struct {
	ActiveBand    *int
	Amount        string
	Bands         *domain.BandRange
	FormType      domain.FormType
	HealthFull    string
	HealthNotFull string
	// IsNew marks a prospective evaluation of a pending form.
	IsNew bool
	// CurrColorKey is the classification of the persisted position.
	CurrColorKey domain.ColorKey
}

const (
	msgStillClose      = "You are still close to soft liquidation."
	msgBorrowClose     = "Borrowing %s will put you close to soft liquidation."
	msgRemoveClose     = "Removing %s collateral will put you close to soft liquidation."
	msgIncreaseClose   = "Increasing your borrowed amount by %s will put you close to soft liquidation."
	msgSoftLiquidation = "Your loan is in soft liquidation mode."
	msgHardLiquidation = "Your loan is below its liquidation range and can be liquidated."
)

// GetHealthMode classifies a loan from band data. Inputs that are not known
// yet produce an unknown HealthMode instead of a misleading percentage.
//
// An empty Amount makes the result unknown only when IsNew is set. The
// persisted position has no pending amount, so its health is still
// classified from the band data alone.
func GetHealthMode(p HealthParams, policy LiquidationPolicy) domain.HealthMode {
	if policy == nil || p.ActiveBand == nil || p.Bands == nil {
		return domain.HealthMode{}
	}
	if strings.TrimSpace(p.HealthFull) == "" || strings.TrimSpace(p.HealthNotFull) == "" {
		return domain.HealthMode{}
	}
	if p.IsNew && strings.TrimSpace(p.Amount) == "" {
		return domain.HealthMode{}
	}

	bands := p.Bands.Normalized()
	active := *p.ActiveBand

	// Prospective evaluations keep the two-state contract; only the persisted
	// position escalates into liquidation states.
	if !p.IsNew {
		switch {
		case active > bands.N2:
			return domain.HealthMode{Percent: p.HealthNotFull, ColorKey: domain.ColorHardLiquidation, Message: msgHardLiquidation}
		case active >= bands.N1:
			return domain.HealthMode{Percent: p.HealthNotFull, ColorKey: domain.ColorSoftLiquidation, Message: msgSoftLiquidation}
		}
	}

	if !policy.IsCloseToLiquidation(bands.N1, active) {
		return domain.HealthMode{Percent: p.HealthFull, ColorKey: domain.ColorHealthy}
	}

	return domain.HealthMode{
		Percent:  p.HealthNotFull,
		ColorKey: domain.ColorCloseToLiquidation,
		Message:  closeMessage(p),
	}
}

func closeMessage(p HealthParams) string {
	if !p.IsNew {
		return ""
	}
	switch p.CurrColorKey {
	case domain.ColorCloseToLiquidation, domain.ColorSoftLiquidation, domain.ColorHardLiquidation:
		return msgStillClose
	}
	amount := formatAmount(p.Amount)
	switch p.FormType {
	case domain.FormCreateLoan:
		return fmt.Sprintf(msgBorrowClose, amount)
	case domain.FormCollateralDecrease:
		return fmt.Sprintf(msgRemoveClose, amount)
	default:
		return fmt.Sprintf(msgIncreaseClose, amount)
	}
}

// HealthPair holds the current and prospective classification of a loan.
type HealthPair struct {
	Current     domain.HealthMode `json:"current"`
	Prospective domain.HealthMode `json:"prospective"`
}

// EvaluateHealth runs the classifier for the persisted position and then for
// the prospective one, feeding the first result into the second.
func EvaluateHealth(current, prospective HealthParams, policy LiquidationPolicy) HealthPair {
	current.IsNew = false
	curr := GetHealthMode(current, policy)

	prospective.IsNew = true
	prospective.CurrColorKey = curr.ColorKey
	return HealthPair{
		Current:     curr,
		Prospective: GetHealthMode(prospective, policy),
	}
}

func formatAmount(amount string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return strings.TrimSpace(amount)
	}
	return d.String()
}

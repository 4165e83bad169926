package domain

type ColorKey string

const (
	ColorUnknown            ColorKey = ""
	ColorHealthy            ColorKey = "healthy"
	ColorCloseToLiquidation ColorKey = "close_to_liquidation"
	ColorSoftLiquidation    ColorKey = "soft_liquidation"
	ColorHardLiquidation    ColorKey = "hard_liquidation"
)

// HealthMode is the user-facing risk classification of a loan.
type HealthMode struct {
	Percent  string   `json:"percent"`
	ColorKey ColorKey `json:"color_key"`
	Message  string   `json:"message,omitempty"`
}

// BandRange is a borrower's [N1, N2] band numbers with N1 <= N2. Higher
// numbers correspond to lower prices, so the active band number grows as
// price falls towards the position. N1 is the user's lower band.
type BandRange struct {
	N1 int `json:"n1"`
	N2 int `json:"n2"`
}

// Normalized returns the range with N1 <= N2.
func (r BandRange) Normalized() BandRange {
	if r.N1 > r.N2 {
		return BandRange{N1: r.N2, N2: r.N1}
	}
	return r
}

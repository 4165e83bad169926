package domain

import "time"

// MarketSummary is one row of a chain's market list.
type MarketSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CollateralToken string `json:"collateral_token"`
	BorrowedToken   string `json:"borrowed_token"`
	Gauge           string `json:"gauge,omitempty"`
}

// Market is the detailed one-way market returned by the SDK.
type Market struct {
	ID              string  `json:"id"`
	Chain           ChainID `json:"chain"`
	Name            string  `json:"name"`
	Controller      string  `json:"controller"`
	Vault           string  `json:"vault"`
	Gauge           string  `json:"gauge"`
	CollateralToken string  `json:"collateral_token"`
	BorrowedToken   string  `json:"borrowed_token"`
	MinBands        int     `json:"min_bands"`
	MaxBands        int     `json:"max_bands"`
}

// LoanDetails is the persisted on-chain state of a user's loan.
type LoanDetails struct {
	Exists        bool      `json:"exists"`
	Collateral    string    `json:"collateral"`
	Debt          string    `json:"debt"`
	Bands         BandRange `json:"bands"`
	ActiveBand    int       `json:"active_band"`
	HealthFull    string    `json:"health_full"`
	HealthNotFull string    `json:"health_not_full"`
}

// LoanPreview is the SDK's estimate of a loan after a pending form is applied.
// ActiveBand is the market's active band at preview time.
type LoanPreview struct {
	Bands         BandRange `json:"bands"`
	ActiveBand    int       `json:"active_band"`
	HealthFull    string    `json:"health_full"`
	HealthNotFull string    `json:"health_not_full"`
	MaxDebt       string    `json:"max_debt,omitempty"`
}

// GasEstimate is the estimated cost of one or more pending transactions.
type GasEstimate struct {
	Gas      uint64 `json:"gas"`
	CostUSD  string `json:"cost_usd,omitempty"`
	Approval uint64 `json:"approval,omitempty"`
}

// PricePoint is one OHLC candle from the prices API.
type PricePoint struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type TimeSeries []PricePoint

// TxRecord is one submitted transaction step, kept for history.
type TxRecord struct {
	ID        string    `json:"id"`
	Chain     ChainID   `json:"chain"`
	Market    string    `json:"market"`
	Account   string    `json:"account"`
	FormType  FormType  `json:"form_type"`
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	TxStatusSucceeded = "succeeded"
	TxStatusFailed    = "failed"
)

package domain

import (
	"context"
	"time"
)

// TxRequest carries the inputs of a read or write call against a market.
type TxRequest struct {
	Chain      ChainID  `json:"chain"`
	Market     string   `json:"market"`
	Account    string   `json:"account"`
	FormType   FormType `json:"form_type"`
	Amount     string   `json:"amount,omitempty"`
	Collateral string   `json:"collateral,omitempty"`
	Debt       string   `json:"debt,omitempty"`
	Bands      int      `json:"bands,omitempty"`
}

// ChainSDK abstracts the on-chain lending/loan SDK. Every method may fail;
// no retry or backoff is assumed.
type ChainSDK interface {
	FetchMarkets(ctx context.Context, chain ChainID) ([]MarketSummary, error)
	GetOneWayMarket(ctx context.Context, chain ChainID, marketID string) (*Market, error)

	WalletBalance(ctx context.Context, chain ChainID, market, account string) (string, error)
	GaugeBalance(ctx context.Context, chain ChainID, market, account string) (string, error)

	UserLoanDetails(ctx context.Context, chain ChainID, market, account string) (*LoanDetails, error)
	PreviewLoan(ctx context.Context, req TxRequest) (*LoanPreview, error)
	// LiquidationBandDistance is the number of bands between a borrower's
	// lower band and the active band under which the position counts as
	// close to liquidation.
	LiquidationBandDistance(ctx context.Context, chain ChainID, market string) (int, error)

	EstimateGas(ctx context.Context, req TxRequest) (*GasEstimate, error)
	IsApproved(ctx context.Context, req TxRequest) (bool, error)
	Approve(ctx context.Context, signer Signer, req TxRequest) (string, error)
	Execute(ctx context.Context, signer Signer, step string, req TxRequest) (string, error)
}

// PricesAPI is the analytics HTTP API.
type PricesAPI interface {
	PriceHistory(ctx context.Context, chain ChainID, address, rng string) (TimeSeries, error)
}

// Signer is a connected wallet.
type Signer interface {
	Address() string
}

// WalletProvider returns the connected signer or nil. A nil signer is an
// expected state that disables transaction steps.
type WalletProvider interface {
	Signer() Signer
}

// TxHistoryRepository stores submitted transaction attempts.
type TxHistoryRepository interface {
	SaveTxRecord(ctx context.Context, rec *TxRecord) error
	ListTxRecords(ctx context.Context, account string, limit int) ([]*TxRecord, error)
}

// SnapshotStore persists opaque cache snapshots across restarts.
type SnapshotStore interface {
	SaveSnapshot(key string, data []byte, at time.Time) error
	LoadSnapshot(key string) ([]byte, time.Time, error)
	Close() error
}

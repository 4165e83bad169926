package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/vitos/lendflow/internal/domain"
	"go.uber.org/zap"
)

// AppDeps are the collaborators shared by every slice.
type AppDeps struct {
	SDK       domain.ChainSDK
	Prices    domain.PricesAPI
	Wallet    domain.WalletProvider
	History   domain.TxHistoryRepository
	Snapshots domain.SnapshotStore
	Observer  Observer
	Logger    *zap.Logger
}

// AppConfig holds poll intervals and step timing. Zero intervals disable the
// corresponding ticker.
type AppConfig struct {
	ConfirmDelay    time.Duration
	FormInterval    time.Duration
	MarketsInterval time.Duration
	LoansInterval   time.Duration
	PricesInterval  time.Duration
	MinTriggerGap   time.Duration
	Chains          []domain.ChainID
}

// AppState owns every slice of one application instance. It is created once
// and passed to the controllers by reference.
type AppState struct {
	Unstake     *UnstakeSlice
	Supply      *SupplySlice
	Loan        *LoanSlice
	LoanDetails *LoanDetailsSlice
	Markets     *MarketsSlice
	Prices      *PriceHistorySlice
	Poller      *Poller
	TxLog       *TxLog

	forms map[string]Form
}

func NewAppState(deps AppDeps, cfg AppConfig) *AppState {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	timing := StepTiming{ConfirmDelay: cfg.ConfirmDelay}
	txLog := NewTxLog(deps.History, deps.Logger)
	details := NewLoanDetailsSlice(deps.SDK, deps.Observer, deps.Logger)

	a := &AppState{
		Unstake:     NewUnstakeSlice(deps.SDK, deps.Wallet, txLog, deps.Observer, timing, deps.Logger),
		Supply:      NewSupplySlice(deps.SDK, deps.Wallet, txLog, deps.Observer, timing, deps.Logger),
		Loan:        NewLoanSlice(deps.SDK, deps.Wallet, details, txLog, deps.Observer, timing, deps.Logger),
		LoanDetails: details,
		Markets:     NewMarketsSlice(deps.SDK, deps.Snapshots, deps.Observer, deps.Logger),
		Prices:      NewPriceHistorySlice(deps.Prices, deps.Observer, deps.Logger),
		Poller:      NewPoller(cfg.MinTriggerGap, deps.Logger),
		TxLog:       txLog,
	}
	a.forms = map[string]Form{
		"unstake": a.Unstake,
		"supply":  a.Supply,
		"loan":    a.Loan,
	}

	if n := a.Markets.Hydrate(cfg.Chains); n > 0 {
		deps.Logger.Info("Loaded market snapshots", zap.Int("chains", n))
	}

	a.Poller.Register("forms", cfg.FormInterval, func(ctx context.Context) {
		for _, name := range a.FormNames() {
			a.forms[name].Refresh(ctx)
		}
	})
	a.Poller.Register("markets", cfg.MarketsInterval, a.Markets.Refresh)
	a.Poller.Register("loans", cfg.LoansInterval, a.LoanDetails.Refresh)
	a.Poller.Register("prices", cfg.PricesInterval, a.Prices.Refresh)
	return a
}

// Form returns the form controller registered under name.
func (a *AppState) Form(name string) (Form, bool) {
	f, ok := a.forms[name]
	return f, ok
}

func (a *AppState) FormNames() []string {
	names := make([]string, 0, len(a.forms))
	for name := range a.forms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

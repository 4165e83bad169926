package usecase

import (
	"context"

	"github.com/vitos/lendflow/internal/domain"
	"go.uber.org/zap"
)

// SupplySlice drives depositing the borrowed token into a lend vault.
// The flow is APPROVE then DEPOSIT; the approval step is skipped when the
// allowance already covers the amount.
type SupplySlice struct {
	sdk      domain.ChainSDK
	wallet   domain.WalletProvider
	txLog    *TxLog
	logger   *zap.Logger
	observer StepObserver
	delay    StepTiming

	balances  *KeyedCache[string]
	approvals *KeyedCache[bool]
	gas       *KeyedCache[*domain.GasEstimate]

	state formState
}

func NewSupplySlice(sdk domain.ChainSDK, wallet domain.WalletProvider, txLog *TxLog, observer Observer, timing StepTiming, logger *zap.Logger) *SupplySlice {
	s := &SupplySlice{
		sdk:       sdk,
		wallet:    wallet,
		txLog:     txLog,
		logger:    logger,
		observer:  observer,
		delay:     timing,
		balances:  NewKeyedCache[string]("supply_wallet_balance", observer),
		approvals: NewKeyedCache[bool]("supply_approval", observer),
		gas:       NewKeyedCache[*domain.GasEstimate]("supply_gas", observer),
	}
	s.state.flow = s.newFlow(domain.CacheKey(""), domain.TxRequest{})
	return s
}

func supplyFields(v map[string]string) []domain.KeyField {
	return []domain.KeyField{domain.AmountField("amount", v["amount"])}
}

func walletBalanceKey(chain domain.ChainID, market, account string) domain.CacheKey {
	return domain.NewCacheKey(chain, market, account, domain.Field("balance", "wallet"))
}

func (s *SupplySlice) request() domain.TxRequest {
	return domain.TxRequest{
		Chain:    s.state.chain,
		Market:   s.state.market,
		Account:  s.state.account,
		FormType: domain.FormDeposit,
		Amount:   s.state.values["amount"],
	}
}

func (s *SupplySlice) newFlow(key domain.CacheKey, req domain.TxRequest) *Flow {
	return NewFlow(FlowConfig{
		Name:         "supply",
		ConfirmDelay: s.delay.ConfirmDelay,
		Observer:     s.observer,
		Steps: []StepDef{
			{
				Key:  domain.StepApprove,
				Type: domain.StepTask,
				Run: func(ctx context.Context) (string, error) {
					signer, err := signerFor(s.wallet, req.Account)
					if err != nil {
						return "", err
					}
					return s.sdk.Approve(ctx, signer, req)
				},
			},
			{
				Key:  domain.StepDeposit,
				Type: domain.StepAction,
				Run: func(ctx context.Context) (string, error) {
					signer, err := signerFor(s.wallet, req.Account)
					if err != nil {
						return "", err
					}
					return s.sdk.Execute(ctx, signer, domain.StepDeposit, req)
				},
			},
		},
		OnStepDone: func(ctx context.Context, step, txHash string, err error) {
			if step == domain.StepApprove && err == nil {
				s.approvals.Set(key, true)
			}
			s.txLog.Record(ctx, req, step, txHash, err)
		},
		Recheck: func(ctx context.Context) int {
			s.refreshBalance(ctx, req)
			if s.checkApproval(ctx, key, req, true) {
				return 1
			}
			return 0
		},
	})
}

func (s *SupplySlice) SetFormValues(ctx context.Context, chain domain.ChainID, _ domain.FormType, account, market string, values map[string]string) {
	s.state.mu.Lock()
	key, changed := s.state.merge(chain, domain.FormDeposit, account, market, values, supplyFields)
	req := s.request()
	if changed {
		s.state.amountError = ""
		s.state.flow = s.newFlow(key, req)
	}
	flow := s.state.flow
	s.state.mu.Unlock()

	if account == "" {
		return
	}

	balance, err := s.balances.FetchOne(ctx, walletBalanceKey(chain, market, account), false, func(ctx context.Context) (string, error) {
		return s.sdk.WalletBalance(ctx, chain, market, account)
	})
	if err != nil {
		s.logger.Warn("Failed to fetch wallet balance", zap.String("market", market), zap.Error(err))
	}

	amountError := validateAmount(req.Amount, balance.Data)
	s.state.mu.Lock()
	if !s.state.isActive(key) {
		s.state.mu.Unlock()
		return
	}
	s.state.amountError = amountError
	s.state.mu.Unlock()

	if amountError != "" || !isPositive(req.Amount) {
		return
	}
	if s.checkApproval(ctx, key, req, false) {
		flow.Satisfy(1)
	}
	s.estimateGas(ctx, key, req, false)
}

// checkApproval reports whether the allowance covers req. Failures count as
// not approved so the APPROVE step stays available.
func (s *SupplySlice) checkApproval(ctx context.Context, key domain.CacheKey, req domain.TxRequest, shouldRefetch bool) bool {
	if req.Account == "" || !isPositive(req.Amount) {
		return false
	}
	entry, err := s.approvals.FetchOne(ctx, key, shouldRefetch, func(ctx context.Context) (bool, error) {
		return s.sdk.IsApproved(ctx, req)
	})
	if err != nil {
		s.logger.Warn("Failed to check supply allowance", zap.String("market", req.Market), zap.Error(err))
		return false
	}
	return entry.Data
}

func (s *SupplySlice) estimateGas(ctx context.Context, key domain.CacheKey, req domain.TxRequest, shouldRefetch bool) {
	if _, err := s.gas.FetchOne(ctx, key, shouldRefetch, func(ctx context.Context) (*domain.GasEstimate, error) {
		return s.sdk.EstimateGas(ctx, req)
	}); err != nil {
		s.logger.Warn("Failed to estimate supply gas", zap.String("market", req.Market), zap.Error(err))
	}
}

func (s *SupplySlice) refreshBalance(ctx context.Context, req domain.TxRequest) {
	if req.Account == "" {
		return
	}
	if _, err := s.balances.FetchOne(ctx, walletBalanceKey(req.Chain, req.Market, req.Account), true, func(ctx context.Context) (string, error) {
		return s.sdk.WalletBalance(ctx, req.Chain, req.Market, req.Account)
	}); err != nil {
		s.logger.Warn("Failed to refresh wallet balance", zap.String("market", req.Market), zap.Error(err))
	}
}

func (s *SupplySlice) RunStep(ctx context.Context, step string) error {
	s.state.mu.Lock()
	flow := s.state.flow
	s.state.mu.Unlock()
	return flow.Run(ctx, step, s.ready())
}

func (s *SupplySlice) ready() bool {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.account == "" {
		return false
	}
	if _, err := signerFor(s.wallet, s.state.account); err != nil {
		return false
	}
	if s.state.amountError != "" || !isPositive(s.state.values["amount"]) {
		return false
	}
	balance, _ := s.balances.Get(walletBalanceKey(s.state.chain, s.state.market, s.state.account))
	return balance.Loaded
}

func (s *SupplySlice) Refresh(ctx context.Context) {
	s.state.mu.Lock()
	key := s.state.key
	req := s.request()
	amountError := s.state.amountError
	flow := s.state.flow
	s.state.mu.Unlock()

	s.refreshBalance(ctx, req)
	if req.Account == "" || amountError != "" || !isPositive(req.Amount) {
		return
	}
	if s.checkApproval(ctx, key, req, true) {
		flow.Satisfy(1)
	}
	s.estimateGas(ctx, key, req, true)
}

func (s *SupplySlice) View() FormView {
	ready := s.ready()

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	view := FormView{
		Form:        "supply",
		ActiveKey:   s.state.key,
		Chain:       s.state.chain,
		FormType:    domain.FormDeposit,
		Market:      s.state.market,
		Account:     s.state.account,
		Values:      s.state.copyValues(),
		AmountError: s.state.amountError,
		Status:      s.state.flow.Status(),
		Steps:       s.state.flow.Steps(ready),
	}
	if s.state.account != "" {
		balance, _ := s.balances.Get(walletBalanceKey(s.state.chain, s.state.market, s.state.account))
		view.Balance = balance.Data
		view.BalanceError = balance.Error
	}
	if gas, ok := s.gas.Get(s.state.key); ok {
		view.Gas = gas.Data
		view.GasError = gas.Error
	}
	return view
}

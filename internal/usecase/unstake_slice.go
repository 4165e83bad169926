package usecase

import (
	"context"

	"github.com/vitos/lendflow/internal/domain"
	"go.uber.org/zap"
)

// UnstakeSlice drives withdrawing staked vault shares from a gauge.
type UnstakeSlice struct {
	sdk      domain.ChainSDK
	wallet   domain.WalletProvider
	txLog    *TxLog
	logger   *zap.Logger
	observer StepObserver
	delay    StepTiming

	balances *KeyedCache[string]
	gas      *KeyedCache[*domain.GasEstimate]

	state formState
}

func NewUnstakeSlice(sdk domain.ChainSDK, wallet domain.WalletProvider, txLog *TxLog, observer Observer, timing StepTiming, logger *zap.Logger) *UnstakeSlice {
	s := &UnstakeSlice{
		sdk:      sdk,
		wallet:   wallet,
		txLog:    txLog,
		logger:   logger,
		observer: observer,
		delay:    timing,
		balances: NewKeyedCache[string]("unstake_gauge_balance", observer),
		gas:      NewKeyedCache[*domain.GasEstimate]("unstake_gas", observer),
	}
	s.state.flow = s.newFlow(domain.TxRequest{})
	return s
}

func unstakeFields(v map[string]string) []domain.KeyField {
	return []domain.KeyField{domain.AmountField("amount", v["amount"])}
}

func (s *UnstakeSlice) balanceKey(chain domain.ChainID, market, account string) domain.CacheKey {
	return domain.NewCacheKey(chain, market, account, domain.Field("balance", "gauge"))
}

func (s *UnstakeSlice) request() domain.TxRequest {
	return domain.TxRequest{
		Chain:    s.state.chain,
		Market:   s.state.market,
		Account:  s.state.account,
		FormType: domain.FormUnstake,
		Amount:   s.state.values["amount"],
	}
}

func (s *UnstakeSlice) newFlow(req domain.TxRequest) *Flow {
	return NewFlow(FlowConfig{
		Name:         "unstake",
		ConfirmDelay: s.delay.ConfirmDelay,
		Observer:     s.observer,
		Steps: []StepDef{{
			Key:  domain.StepUnstake,
			Type: domain.StepAction,
			Run: func(ctx context.Context) (string, error) {
				signer, err := signerFor(s.wallet, req.Account)
				if err != nil {
					return "", err
				}
				return s.sdk.Execute(ctx, signer, domain.StepUnstake, req)
			},
		}},
		OnStepDone: func(ctx context.Context, step, txHash string, err error) {
			s.txLog.Record(ctx, req, step, txHash, err)
		},
		Recheck: func(ctx context.Context) int {
			s.refreshBalance(ctx, req)
			return 0
		},
	})
}

// SetFormValues merges values, re-keys the form and runs validation and gas
// estimation for the captured key.
func (s *UnstakeSlice) SetFormValues(ctx context.Context, chain domain.ChainID, _ domain.FormType, account, market string, values map[string]string) {
	s.state.mu.Lock()
	key, changed := s.state.merge(chain, domain.FormUnstake, account, market, values, unstakeFields)
	req := s.request()
	if changed {
		s.state.amountError = ""
		s.state.flow = s.newFlow(req)
	}
	s.state.mu.Unlock()

	if account == "" {
		return
	}

	balance, err := s.balances.FetchOne(ctx, s.balanceKey(chain, market, account), false, func(ctx context.Context) (string, error) {
		return s.sdk.GaugeBalance(ctx, chain, market, account)
	})
	if err != nil {
		s.logger.Warn("Failed to fetch gauge balance", zap.String("market", market), zap.Error(err))
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
	s.estimateGas(ctx, key, req, false)
}

func (s *UnstakeSlice) estimateGas(ctx context.Context, key domain.CacheKey, req domain.TxRequest, shouldRefetch bool) {
	if _, err := s.gas.FetchOne(ctx, key, shouldRefetch, func(ctx context.Context) (*domain.GasEstimate, error) {
		return s.sdk.EstimateGas(ctx, req)
	}); err != nil {
		s.logger.Warn("Failed to estimate unstake gas", zap.String("market", req.Market), zap.Error(err))
	}
}

func (s *UnstakeSlice) refreshBalance(ctx context.Context, req domain.TxRequest) {
	if req.Account == "" {
		return
	}
	if _, err := s.balances.FetchOne(ctx, s.balanceKey(req.Chain, req.Market, req.Account), true, func(ctx context.Context) (string, error) {
		return s.sdk.GaugeBalance(ctx, req.Chain, req.Market, req.Account)
	}); err != nil {
		s.logger.Warn("Failed to refresh gauge balance", zap.String("market", req.Market), zap.Error(err))
	}
}

// RunStep triggers the unstake transaction.
func (s *UnstakeSlice) RunStep(ctx context.Context, step string) error {
	s.state.mu.Lock()
	flow := s.state.flow
	s.state.mu.Unlock()
	return flow.Run(ctx, step, s.ready())
}

func (s *UnstakeSlice) ready() bool {
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
	balance, _ := s.balances.Get(s.balanceKey(s.state.chain, s.state.market, s.state.account))
	return balance.Loaded
}

// Refresh re-fetches the balance and gas estimate of the active key.
func (s *UnstakeSlice) Refresh(ctx context.Context) {
	s.state.mu.Lock()
	key := s.state.key
	req := s.request()
	amountError := s.state.amountError
	s.state.mu.Unlock()

	s.refreshBalance(ctx, req)
	if req.Account != "" && amountError == "" && isPositive(req.Amount) {
		s.estimateGas(ctx, key, req, true)
	}
}

func (s *UnstakeSlice) View() FormView {
	ready := s.ready()

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	view := FormView{
		Form:        "unstake",
		ActiveKey:   s.state.key,
		Chain:       s.state.chain,
		FormType:    domain.FormUnstake,
		Market:      s.state.market,
		Account:     s.state.account,
		Values:      s.state.copyValues(),
		AmountError: s.state.amountError,
		Status:      s.state.flow.Status(),
		Steps:       s.state.flow.Steps(ready),
	}
	if s.state.account != "" {
		balance, _ := s.balances.Get(s.balanceKey(s.state.chain, s.state.market, s.state.account))
		view.Balance = balance.Data
		view.BalanceError = balance.Error
	}
	if gas, ok := s.gas.Get(s.state.key); ok {
		view.Gas = gas.Data
		view.GasError = gas.Error
	}
	return view
}

package usecase

import (
	"context"
	"strconv"

	"github.com/vitos/lendflow/internal/domain"
	"go.uber.org/zap"
)

// LoanSlice drives the loan forms: create-loan, borrow-more,
// collateral-decrease and repay. The current position comes from the loan
// details slice and the prospective one from an SDK preview of the form.
type LoanSlice struct {
	sdk      domain.ChainSDK
	wallet   domain.WalletProvider
	txLog    *TxLog
	logger   *zap.Logger
	observer StepObserver
	delay    StepTiming
	details  *LoanDetailsSlice

	balances  *KeyedCache[string]
	previews  *KeyedCache[*domain.LoanPreview]
	policies  *KeyedCache[int]
	approvals *KeyedCache[bool]
	gas       *KeyedCache[*domain.GasEstimate]

	state formState
}

func NewLoanSlice(sdk domain.ChainSDK, wallet domain.WalletProvider, details *LoanDetailsSlice, txLog *TxLog, observer Observer, timing StepTiming, logger *zap.Logger) *LoanSlice {
	s := &LoanSlice{
		sdk:       sdk,
		wallet:    wallet,
		txLog:     txLog,
		logger:    logger,
		observer:  observer,
		delay:     timing,
		details:   details,
		balances:  NewKeyedCache[string]("loan_wallet_balance", observer),
		previews:  NewKeyedCache[*domain.LoanPreview]("loan_preview", observer),
		policies:  NewKeyedCache[int]("liquidation_band_distance", observer),
		approvals: NewKeyedCache[bool]("loan_approval", observer),
		gas:       NewKeyedCache[*domain.GasEstimate]("loan_gas", observer),
	}
	s.state.formType = domain.FormCreateLoan
	s.state.flow = s.newFlow(domain.CacheKey(""), domain.TxRequest{FormType: domain.FormCreateLoan})
	return s
}

func loanFields(v map[string]string) []domain.KeyField {
	return []domain.KeyField{
		domain.AmountField("collateral", v["collateral"]),
		domain.AmountField("debt", v["debt"]),
		domain.Field("n", v["n"]),
	}
}

func loanFormType(ft domain.FormType) (domain.FormType, bool) {
	switch ft {
	case domain.FormCreateLoan, domain.FormBorrowMore, domain.FormCollateralDecrease, domain.FormRepay:
		return ft, true
	}
	return domain.FormCreateLoan, false
}

// loanAction maps a form type to the step that submits it.
func loanAction(ft domain.FormType) string {
	switch ft {
	case domain.FormBorrowMore:
		return domain.StepBorrowMore
	case domain.FormCollateralDecrease:
		return domain.StepRemove
	case domain.FormRepay:
		return domain.StepRepay
	default:
		return domain.StepCreateLoan
	}
}

// needsApproval is false for collateral-decrease, which only moves tokens
// out of the controller.
func needsApproval(ft domain.FormType) bool {
	return ft != domain.FormCollateralDecrease
}

// loanAmount is the amount the health message talks about.
func loanAmount(req domain.TxRequest) string {
	if req.FormType == domain.FormCollateralDecrease {
		return req.Collateral
	}
	return req.Debt
}

func hasLoanInput(req domain.TxRequest) bool {
	return isPositive(req.Collateral) || isPositive(req.Debt)
}

func policyKey(chain domain.ChainID, market string) domain.CacheKey {
	return domain.NewCacheKey(chain, market, "", domain.Field("policy", "band_distance"))
}

func (s *LoanSlice) request() domain.TxRequest {
	n, _ := strconv.Atoi(s.state.values["n"])
	return domain.TxRequest{
		Chain:      s.state.chain,
		Market:     s.state.market,
		Account:    s.state.account,
		FormType:   s.state.formType,
		Collateral: s.state.values["collateral"],
		Debt:       s.state.values["debt"],
		Bands:      n,
	}
}

func (s *LoanSlice) ref(req domain.TxRequest) LoanRef {
	return LoanRef{Chain: req.Chain, Market: req.Market, Account: req.Account}
}

func (s *LoanSlice) newFlow(key domain.CacheKey, req domain.TxRequest) *Flow {
	action := loanAction(req.FormType)
	var steps []StepDef
	if needsApproval(req.FormType) {
		steps = append(steps, StepDef{
			Key:  domain.StepApprove,
			Type: domain.StepTask,
			Run: func(ctx context.Context) (string, error) {
				signer, err := signerFor(s.wallet, req.Account)
				if err != nil {
					return "", err
				}
				return s.sdk.Approve(ctx, signer, req)
			},
		})
	}
	steps = append(steps, StepDef{
		Key:  action,
		Type: domain.StepAction,
		Run: func(ctx context.Context) (string, error) {
			signer, err := signerFor(s.wallet, req.Account)
			if err != nil {
				return "", err
			}
			return s.sdk.Execute(ctx, signer, action, req)
		},
	})

	return NewFlow(FlowConfig{
		Name:         "loan_" + string(req.FormType),
		Steps:        steps,
		ConfirmDelay: s.delay.ConfirmDelay,
		Observer:     s.observer,
		OnStepDone: func(ctx context.Context, step, txHash string, err error) {
			if step == domain.StepApprove && err == nil {
				s.approvals.Set(key, true)
			}
			s.txLog.Record(ctx, req, step, txHash, err)
		},
		Recheck: func(ctx context.Context) int {
			if req.Account != "" {
				s.details.FetchLoanDetails(ctx, []LoanRef{s.ref(req)}, true)
				s.refreshBalance(ctx, req)
			}
			if needsApproval(req.FormType) && s.checkApproval(ctx, key, req, true) {
				return 1
			}
			return 0
		},
	})
}

// SetFormValues merges the loan inputs. formType selects the loan action;
// an unknown value falls back to create-loan.
func (s *LoanSlice) SetFormValues(ctx context.Context, chain domain.ChainID, formType domain.FormType, account, market string, values map[string]string) {
	ft, ok := loanFormType(formType)
	if !ok && formType != "" {
		s.logger.Warn("Unknown loan form type, using create-loan", zap.String("form_type", string(formType)))
	}

	s.state.mu.Lock()
	key, changed := s.state.merge(chain, ft, account, market, values, loanFields)
	req := s.request()
	if changed {
		s.state.amountError = ""
		s.state.flow = s.newFlow(key, req)
	}
	flow := s.state.flow
	s.state.mu.Unlock()

	s.fetchPolicy(ctx, chain, market)

	var amountError string
	if account != "" {
		amountError = s.validate(ctx, req, false)
	} else {
		amountError = validateAmountWith(req.Collateral, "", "")
		if amountError == "" {
			amountError = validateAmountWith(req.Debt, "", "")
		}
	}

	s.state.mu.Lock()
	if !s.state.isActive(key) {
		s.state.mu.Unlock()
		return
	}
	s.state.amountError = amountError
	s.state.mu.Unlock()

	if amountError != "" || !hasLoanInput(req) {
		return
	}
	s.preview(ctx, key, req, false)
	if account == "" {
		return
	}
	if needsApproval(req.FormType) && s.checkApproval(ctx, key, req, false) {
		flow.Satisfy(1)
	}
	s.estimateGas(ctx, key, req, false)
}

// validate loads the balances the form type is checked against and returns
// the field error, if any.
func (s *LoanSlice) validate(ctx context.Context, req domain.TxRequest, shouldRefetch bool) string {
	entries, _ := s.details.FetchLoanDetails(ctx, []LoanRef{s.ref(req)}, shouldRefetch)
	details := entries[s.ref(req).Key()].Data

	switch req.FormType {
	case domain.FormCreateLoan, domain.FormBorrowMore:
		balance := s.fetchBalance(ctx, req, shouldRefetch)
		if msg := validateAmount(req.Collateral, balance); msg != "" {
			return msg
		}
		return validateAmountWith(req.Debt, "", "")
	case domain.FormCollateralDecrease:
		var locked string
		if details != nil {
			locked = details.Collateral
		}
		return validateAmountWith(req.Collateral, locked, domain.AmountErrorTooMuchCollateral)
	case domain.FormRepay:
		var debt string
		if details != nil {
			debt = details.Debt
		}
		return validateAmountWith(req.Debt, debt, domain.AmountErrorTooMuchDebt)
	}
	return ""
}

func (s *LoanSlice) fetchBalance(ctx context.Context, req domain.TxRequest, shouldRefetch bool) string {
	entry, err := s.balances.FetchOne(ctx, walletBalanceKey(req.Chain, req.Market, req.Account), shouldRefetch, func(ctx context.Context) (string, error) {
		return s.sdk.WalletBalance(ctx, req.Chain, req.Market, req.Account)
	})
	if err != nil {
		s.logger.Warn("Failed to fetch collateral balance", zap.String("market", req.Market), zap.Error(err))
	}
	return entry.Data
}

func (s *LoanSlice) refreshBalance(ctx context.Context, req domain.TxRequest) {
	if req.FormType == domain.FormCreateLoan || req.FormType == domain.FormBorrowMore {
		s.fetchBalance(ctx, req, true)
	}
}

func (s *LoanSlice) fetchPolicy(ctx context.Context, chain domain.ChainID, market string) {
	if market == "" {
		return
	}
	if _, err := s.policies.FetchOne(ctx, policyKey(chain, market), false, func(ctx context.Context) (int, error) {
		return s.sdk.LiquidationBandDistance(ctx, chain, market)
	}); err != nil {
		s.logger.Warn("Failed to fetch liquidation band distance", zap.String("market", market), zap.Error(err))
	}
}

func (s *LoanSlice) preview(ctx context.Context, key domain.CacheKey, req domain.TxRequest, shouldRefetch bool) {
	if _, err := s.previews.FetchOne(ctx, key, shouldRefetch, func(ctx context.Context) (*domain.LoanPreview, error) {
		return s.sdk.PreviewLoan(ctx, req)
	}); err != nil {
		s.logger.Warn("Failed to preview loan", zap.String("market", req.Market), zap.String("form", string(req.FormType)), zap.Error(err))
	}
}

func (s *LoanSlice) checkApproval(ctx context.Context, key domain.CacheKey, req domain.TxRequest, shouldRefetch bool) bool {
	if req.Account == "" || !hasLoanInput(req) {
		return false
	}
	entry, err := s.approvals.FetchOne(ctx, key, shouldRefetch, func(ctx context.Context) (bool, error) {
		return s.sdk.IsApproved(ctx, req)
	})
	if err != nil {
		s.logger.Warn("Failed to check loan allowance", zap.String("market", req.Market), zap.Error(err))
		return false
	}
	return entry.Data
}

func (s *LoanSlice) estimateGas(ctx context.Context, key domain.CacheKey, req domain.TxRequest, shouldRefetch bool) {
	if _, err := s.gas.FetchOne(ctx, key, shouldRefetch, func(ctx context.Context) (*domain.GasEstimate, error) {
		return s.sdk.EstimateGas(ctx, req)
	}); err != nil {
		s.logger.Warn("Failed to estimate loan gas", zap.String("market", req.Market), zap.Error(err))
	}
}

func (s *LoanSlice) RunStep(ctx context.Context, step string) error {
	s.state.mu.Lock()
	flow := s.state.flow
	s.state.mu.Unlock()
	return flow.Run(ctx, step, s.ready())
}

func (s *LoanSlice) ready() bool {
	s.state.mu.Lock()
	req := s.request()
	amountError := s.state.amountError
	s.state.mu.Unlock()

	if req.Account == "" {
		return false
	}
	if _, err := signerFor(s.wallet, req.Account); err != nil {
		return false
	}
	if amountError != "" || !hasLoanInput(req) {
		return false
	}
	details, _ := s.details.Get(s.ref(req))
	if req.FormType == domain.FormCreateLoan {
		if details.Data != nil && details.Data.Exists {
			return false
		}
		balance, _ := s.balances.Get(walletBalanceKey(req.Chain, req.Market, req.Account))
		return balance.Loaded
	}
	return details.Loaded && details.Data != nil && details.Data.Exists
}

func (s *LoanSlice) Refresh(ctx context.Context) {
	s.state.mu.Lock()
	key := s.state.key
	req := s.request()
	flow := s.state.flow
	s.state.mu.Unlock()

	if req.Market == "" {
		return
	}
	s.fetchPolicy(ctx, req.Chain, req.Market)

	amountError := ""
	if req.Account != "" {
		amountError = s.validate(ctx, req, true)
		s.state.mu.Lock()
		if s.state.isActive(key) {
			s.state.amountError = amountError
		}
		s.state.mu.Unlock()
	}
	if amountError != "" || !hasLoanInput(req) {
		return
	}
	s.preview(ctx, key, req, true)
	if req.Account == "" {
		return
	}
	if needsApproval(req.FormType) && s.checkApproval(ctx, key, req, true) {
		flow.Satisfy(1)
	}
	s.estimateGas(ctx, key, req, true)
}

// health evaluates the current and prospective positions with one policy.
func (s *LoanSlice) health(key domain.CacheKey, req domain.TxRequest) *HealthPair {
	pol, ok := s.policies.Get(policyKey(req.Chain, req.Market))
	if !ok || !pol.Loaded {
		return nil
	}
	policy := BandDistancePolicy{Distance: pol.Data}

	var current HealthParams
	current.FormType = req.FormType
	if req.Account != "" {
		if e, ok := s.details.Get(s.ref(req)); ok && e.Data != nil && e.Data.Exists {
			d := e.Data
			activeBand := d.ActiveBand
			bands := d.Bands
			current.ActiveBand = &activeBand
			current.Bands = &bands
			current.HealthFull = d.HealthFull
			current.HealthNotFull = d.HealthNotFull
		}
	}

	prospective := HealthParams{FormType: req.FormType, Amount: loanAmount(req)}
	if e, ok := s.previews.Get(key); ok && e.Data != nil {
		p := e.Data
		activeBand := p.ActiveBand
		bands := p.Bands
		prospective.ActiveBand = &activeBand
		prospective.Bands = &bands
		prospective.HealthFull = p.HealthFull
		prospective.HealthNotFull = p.HealthNotFull
	}

	pair := EvaluateHealth(current, prospective, policy)
	return &pair
}

func (s *LoanSlice) View() FormView {
	ready := s.ready()

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	req := s.request()
	view := FormView{
		Form:        "loan",
		ActiveKey:   s.state.key,
		Chain:       s.state.chain,
		FormType:    s.state.formType,
		Market:      s.state.market,
		Account:     s.state.account,
		Values:      s.state.copyValues(),
		AmountError: s.state.amountError,
		Status:      s.state.flow.Status(),
		Steps:       s.state.flow.Steps(ready),
		Health:      s.health(s.state.key, req),
	}
	if req.Account != "" {
		balance, _ := s.balances.Get(walletBalanceKey(req.Chain, req.Market, req.Account))
		view.Balance = balance.Data
		view.BalanceError = balance.Error
	}
	if p, ok := s.previews.Get(s.state.key); ok {
		view.Preview = p.Data
		view.PreviewError = p.Error
	}
	if gas, ok := s.gas.Get(s.state.key); ok {
		view.Gas = gas.Data
		view.GasError = gas.Error
	}
	return view
}

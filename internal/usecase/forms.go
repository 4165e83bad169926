package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/lendflow/internal/domain"
)

// Form is the surface a page controller drives.
type Form interface {
	SetFormValues(ctx context.Context, chain domain.ChainID, formType domain.FormType, account, market string, values map[string]string)
	RunStep(ctx context.Context, step string) error
	View() FormView
	Refresh(ctx context.Context)
}

// FormView is everything a controller renders for one form.
type FormView struct {
	Form         string              `json:"form"`
	ActiveKey    domain.CacheKey     `json:"active_key"`
	Chain        domain.ChainID      `json:"chain"`
	FormType     domain.FormType     `json:"form_type"`
	Market       string              `json:"market"`
	Account      string              `json:"account"`
	Values       map[string]string   `json:"values"`
	AmountError  string              `json:"amount_error"`
	Balance      string              `json:"balance,omitempty"`
	BalanceError string              `json:"balance_error,omitempty"`
	Gas          *domain.GasEstimate `json:"gas,omitempty"`
	GasError     string              `json:"gas_error,omitempty"`
	Status       domain.FormStatus   `json:"status"`
	Steps        []domain.Step       `json:"steps"`
	Preview      *domain.LoanPreview `json:"preview,omitempty"`
	PreviewError string              `json:"preview_error,omitempty"`
	Health       *HealthPair         `json:"health,omitempty"`
}

// StepTiming carries the confirmation delay shared by all form slices.
type StepTiming struct {
	ConfirmDelay time.Duration
}

// formState is the mutable input half of a form slice.
type formState struct {
	mu          sync.Mutex
	chain       domain.ChainID
	formType    domain.FormType
	account     string
	market      string
	values      map[string]string
	key         domain.CacheKey
	amountError string
	flow        *Flow
}

// merge applies partial values and reports the new key and whether it
// differs from the previous one. Must be called with s.mu held.
func (s *formState) merge(chain domain.ChainID, formType domain.FormType, account, market string, partial map[string]string, fields func(map[string]string) []domain.KeyField) (domain.CacheKey, bool) {
	if s.values == nil || s.chain != chain || s.market != market || s.formType != formType {
		s.values = make(map[string]string)
	}
	for k, v := range partial {
		s.values[k] = strings.TrimSpace(v)
	}
	s.chain = chain
	s.formType = formType
	s.account = account
	s.market = market

	kf := append([]domain.KeyField{domain.Field("form", string(formType))}, fields(s.values)...)
	key := domain.NewCacheKey(chain, market, account, kf...)
	changed := key != s.key
	s.key = key
	return key, changed
}

// isActive must be called with s.mu held.
func (s *formState) isActive(key domain.CacheKey) bool {
	return s.key == key
}

func (s *formState) copyValues() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func signerOf(w domain.WalletProvider) domain.Signer {
	if w == nil {
		return nil
	}
	return w.Signer()
}

// signerFor returns the connected signer only when it owns account.
func signerFor(w domain.WalletProvider, account string) (domain.Signer, error) {
	signer := signerOf(w)
	if signer == nil {
		return nil, domain.ErrNoSigner
	}
	if domain.NormalizeAccount(signer.Address()) != domain.NormalizeAccount(account) {
		return nil, domain.ErrSignerMismatch
	}
	return signer, nil
}

// validateAmount checks amount against an available wallet balance.
func validateAmount(amount, available string) string {
	return validateAmountWith(amount, available, domain.AmountErrorTooMuchWallet)
}

func validateAmountWith(amount, available, tooMuch string) string {
	if strings.TrimSpace(amount) == "" {
		return ""
	}
	a, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil || a.IsNegative() {
		return domain.AmountErrorInvalid
	}
	if strings.TrimSpace(available) == "" {
		return ""
	}
	b, err := decimal.NewFromString(strings.TrimSpace(available))
	if err != nil {
		return ""
	}
	if a.GreaterThan(b) {
		return tooMuch
	}
	return ""
}

func isPositive(amount string) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	return err == nil && d.IsPositive()
}

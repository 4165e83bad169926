package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vitos/lendflow/internal/domain"
)

// MockSDK records calls. Gates block the matching calls until closed.
type MockSDK struct {
	mu sync.Mutex

	Markets      []domain.MarketSummary
	Market       *domain.Market
	Wallet       map[string]string // account -> balance
	Gauge        map[string]string
	Loans        map[string]*domain.LoanDetails // market -> details
	Preview      func(req domain.TxRequest) *domain.LoanPreview
	BandDistance int
	Gas          *domain.GasEstimate
	Approved     bool
	ApproveErr   error
	ExecuteErr   error
	LoanErr      error
	BalanceErr   error

	BalanceGate chan struct{}            // when set, balance calls wait on it
	ExecuteGate chan struct{}            // when set, Execute waits on it
	GasGates    map[string]chan struct{} // amount -> gate for EstimateGas
	GasByAmount map[string]*domain.GasEstimate

	Calls    map[string]int
	Requests []domain.TxRequest
}

func NewMockSDK() *MockSDK {
	return &MockSDK{
		Wallet: map[string]string{},
		Gauge:  map[string]string{},
		Loans:  map[string]*domain.LoanDetails{},
		Gas:    &domain.GasEstimate{Gas: 21000, CostUSD: "0.42"},
		Calls:  map[string]int{},
	}
}

func (m *MockSDK) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
}

func (m *MockSDK) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

func (m *MockSDK) waitGate(ctx context.Context) error {
	m.mu.Lock()
	gate := m.BalanceGate
	m.mu.Unlock()
	return wait(ctx, gate)
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockSDK) FetchMarkets(ctx context.Context, chain domain.ChainID) ([]domain.MarketSummary, error) {
	m.record("FetchMarkets")
	return m.Markets, nil
}

func (m *MockSDK) GetOneWayMarket(ctx context.Context, chain domain.ChainID, marketID string) (*domain.Market, error) {
	m.record("GetOneWayMarket")
	return m.Market, nil
}

func (m *MockSDK) WalletBalance(ctx context.Context, chain domain.ChainID, market, account string) (string, error) {
	m.record("WalletBalance")
	if err := m.waitGate(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BalanceErr != nil {
		return "", m.BalanceErr
	}
	return m.Wallet[account], nil
}

func (m *MockSDK) GaugeBalance(ctx context.Context, chain domain.ChainID, market, account string) (string, error) {
	m.record("GaugeBalance")
	if err := m.waitGate(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BalanceErr != nil {
		return "", m.BalanceErr
	}
	return m.Gauge[account], nil
}

func (m *MockSDK) UserLoanDetails(ctx context.Context, chain domain.ChainID, market, account string) (*domain.LoanDetails, error) {
	m.record("UserLoanDetails")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoanErr != nil {
		return nil, m.LoanErr
	}
	if d, ok := m.Loans[market]; ok {
		cp := *d
		return &cp, nil
	}
	return &domain.LoanDetails{}, nil
}

func (m *MockSDK) PreviewLoan(ctx context.Context, req domain.TxRequest) (*domain.LoanPreview, error) {
	m.record("PreviewLoan")
	if m.Preview == nil {
		return nil, errors.New("no preview")
	}
	return m.Preview(req), nil
}

func (m *MockSDK) LiquidationBandDistance(ctx context.Context, chain domain.ChainID, market string) (int, error) {
	m.record("LiquidationBandDistance")
	return m.BandDistance, nil
}

func (m *MockSDK) EstimateGas(ctx context.Context, req domain.TxRequest) (*domain.GasEstimate, error) {
	m.record("EstimateGas")
	m.mu.Lock()
	gate := m.GasGates[req.Amount]
	m.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.GasByAmount[req.Amount]; ok {
		return g, nil
	}
	return m.Gas, nil
}

func (m *MockSDK) IsApproved(ctx context.Context, req domain.TxRequest) (bool, error) {
	m.record("IsApproved")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Approved, nil
}

func (m *MockSDK) Approve(ctx context.Context, signer domain.Signer, req domain.TxRequest) (string, error) {
	m.record("Approve")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.ApproveErr != nil {
		return "", m.ApproveErr
	}
	m.Approved = true
	return "0xapprove", nil
}

func (m *MockSDK) Execute(ctx context.Context, signer domain.Signer, step string, req domain.TxRequest) (string, error) {
	m.record("Execute:" + step)
	m.mu.Lock()
	gate := m.ExecuteGate
	m.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.ExecuteErr != nil {
		return "", m.ExecuteErr
	}
	return "0xexecute", nil
}

type mockSigner string

func (s mockSigner) Address() string { return string(s) }

type MockWallet struct {
	Addr string
}

func (w *MockWallet) Signer() domain.Signer {
	if w == nil || w.Addr == "" {
		return nil
	}
	return mockSigner(w.Addr)
}

type MockHistoryRepo struct {
	mu      sync.Mutex
	Records []*domain.TxRecord
}

func (r *MockHistoryRepo) SaveTxRecord(ctx context.Context, rec *domain.TxRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Records = append(r.Records, rec)
	return nil
}

func (r *MockHistoryRepo) ListTxRecords(ctx context.Context, account string, limit int) ([]*domain.TxRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.TxRecord
	for i := len(r.Records) - 1; i >= 0 && len(out) < limit; i-- {
		if account == "" || r.Records[i].Account == account {
			out = append(out, r.Records[i])
		}
	}
	return out, nil
}

func (r *MockHistoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Records)
}

type MockSnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
	at   map[string]time.Time
}

func NewMockSnapshots() *MockSnapshots {
	return &MockSnapshots{data: map[string][]byte{}, at: map[string]time.Time{}}
}

func (s *MockSnapshots) SaveSnapshot(key string, data []byte, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	s.at[key] = at
	return nil
}

func (s *MockSnapshots) LoadSnapshot(key string) ([]byte, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[key]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	return d, s.at[key], nil
}

func (s *MockSnapshots) Close() error { return nil }

// manualAfter replaces time.After in flows so tests end confirmation
// explicitly.
type manualAfter struct {
	ch chan time.Time
}

func newManualAfter() *manualAfter {
	return &manualAfter{ch: make(chan time.Time, 1)}
}

func (a *manualAfter) After(time.Duration) <-chan time.Time { return a.ch }

func (a *manualAfter) Fire() { a.ch <- time.Now() }

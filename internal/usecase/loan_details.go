package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/vitos/lendflow/internal/domain"
	"go.uber.org/zap"
)

// LoanRef identifies one user's loan in one market.
type LoanRef struct {
	Chain   domain.ChainID `json:"chain"`
	Market  string         `json:"market"`
	Account string         `json:"account"`
}

func (r LoanRef) Key() domain.CacheKey {
	return domain.NewCacheKey(r.Chain, r.Market, r.Account, domain.Field("loan", "details"))
}

// LoanDetailsSlice caches persisted loan state per (chain, market, account).
// Refs passed to FetchLoanDetails are remembered for a while so the poller
// can refresh them.
type LoanDetailsSlice struct {
	sdk     domain.ChainSDK
	logger  *zap.Logger
	cache   *KeyedCache[*domain.LoanDetails]
	tracked *refTracker[LoanRef]
}

func NewLoanDetailsSlice(sdk domain.ChainSDK, observer CacheObserver, logger *zap.Logger) *LoanDetailsSlice {
	return &LoanDetailsSlice{
		sdk:     sdk,
		logger:  logger,
		cache:   NewKeyedCache[*domain.LoanDetails]("loan_details", observer),
		tracked: newRefTracker[LoanRef](defaultTrackTTL, defaultMaxTracked),
	}
}

// FetchLoanDetails loads every ref in one batch. Refs already cached are
// skipped unless shouldRefetch is set. A failing ref does not stop the rest
// of the batch.
func (s *LoanDetailsSlice) FetchLoanDetails(ctx context.Context, refs []LoanRef, shouldRefetch bool) (map[domain.CacheKey]domain.CacheEntry[*domain.LoanDetails], error) {
	for _, r := range refs {
		if r.Account != "" {
			s.tracked.Touch(r.Key(), r)
		}
	}
	return s.fetch(ctx, refs, shouldRefetch)
}

func (s *LoanDetailsSlice) fetch(ctx context.Context, refs []LoanRef, shouldRefetch bool) (map[domain.CacheKey]domain.CacheEntry[*domain.LoanDetails], error) {
	byKey := make(map[domain.CacheKey]LoanRef, len(refs))
	keys := make([]domain.CacheKey, 0, len(refs))
	for _, r := range refs {
		if r.Account == "" {
			continue
		}
		k := r.Key()
		byKey[k] = r
		keys = append(keys, k)
	}

	if len(keys) == 0 {
		return map[domain.CacheKey]domain.CacheEntry[*domain.LoanDetails]{}, nil
	}

	entries, err := s.cache.Fetch(ctx, keys, shouldRefetch, func(ctx context.Context, missing []domain.CacheKey) (map[domain.CacheKey]*domain.LoanDetails, error) {
		out := make(map[domain.CacheKey]*domain.LoanDetails, len(missing))
		var errs []error
		for _, k := range missing {
			r := byKey[k]
			details, err := s.sdk.UserLoanDetails(ctx, r.Chain, r.Market, r.Account)
			if err != nil {
				errs = append(errs, fmt.Errorf("loan details %s/%s: %w", r.Chain, r.Market, err))
				continue
			}
			out[k] = details
		}
		return out, errors.Join(errs...)
	})
	if err != nil {
		s.logger.Warn("Failed to fetch loan details", zap.Int("refs", len(keys)), zap.Error(err))
	}
	return entries, err
}

// Get returns the cached entry for ref.
func (s *LoanDetailsSlice) Get(ref LoanRef) (domain.CacheEntry[*domain.LoanDetails], bool) {
	return s.cache.Get(ref.Key())
}

// Tracked returns the refs requested recently, ordered by key.
func (s *LoanDetailsSlice) Tracked() []LoanRef {
	return s.tracked.Active()
}

// LoanView is one rendered row of the loans list.
type LoanView struct {
	LoanRef
	Details *domain.LoanDetails `json:"details,omitempty"`
	Loading bool                `json:"loading"`
	Error   string              `json:"error,omitempty"`
}

func (s *LoanDetailsSlice) List() []LoanView {
	refs := s.Tracked()
	out := make([]LoanView, 0, len(refs))
	for _, r := range refs {
		e, _ := s.Get(r)
		out = append(out, LoanView{LoanRef: r, Details: e.Data, Loading: e.Loading, Error: e.Error})
	}
	return out
}

// Refresh re-fetches every tracked loan without extending its lifetime.
func (s *LoanDetailsSlice) Refresh(ctx context.Context) {
	refs := s.Tracked()
	if len(refs) == 0 {
		return
	}
	s.fetch(ctx, refs, true)
}

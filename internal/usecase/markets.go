package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/vitos/lendflow/internal/domain"
	"go.uber.org/zap"
)

// MarketsSlice caches market lists per chain and one-way market details per
// id. Market lists are written to the snapshot store so a restart can serve
// them before the first network round-trip.
type MarketsSlice struct {
	sdk       domain.ChainSDK
	snapshots domain.SnapshotStore
	logger    *zap.Logger

	lists   *KeyedCache[[]domain.MarketSummary]
	markets *KeyedCache[*domain.Market]

	mu     sync.Mutex
	chains map[domain.ChainID]bool
}

func NewMarketsSlice(sdk domain.ChainSDK, snapshots domain.SnapshotStore, observer CacheObserver, logger *zap.Logger) *MarketsSlice {
	return &MarketsSlice{
		sdk:       sdk,
		snapshots: snapshots,
		logger:    logger,
		lists:     NewKeyedCache[[]domain.MarketSummary]("markets", observer),
		markets:   NewKeyedCache[*domain.Market]("one_way_market", observer),
		chains:    make(map[domain.ChainID]bool),
	}
}

func marketsKey(chain domain.ChainID) domain.CacheKey {
	return domain.NewCacheKey(chain, "", "", domain.Field("list", "markets"))
}

func marketKey(chain domain.ChainID, id string) domain.CacheKey {
	return domain.NewCacheKey(chain, id, "", domain.Field("market", "one_way"))
}

func snapshotName(chain domain.ChainID) string {
	return "markets/" + string(chain)
}

// FetchMarkets returns the market list of chain.
func (s *MarketsSlice) FetchMarkets(ctx context.Context, chain domain.ChainID, shouldRefetch bool) ([]domain.MarketSummary, error) {
	s.mu.Lock()
	s.chains[chain] = true
	s.mu.Unlock()

	fetched := false
	entry, err := s.lists.FetchOne(ctx, marketsKey(chain), shouldRefetch, func(ctx context.Context) ([]domain.MarketSummary, error) {
		fetched = true
		return s.sdk.FetchMarkets(ctx, chain)
	})
	if err != nil {
		s.logger.Warn("Failed to fetch markets", zap.String("chain", string(chain)), zap.Error(err))
		return entry.Data, err
	}
	if fetched {
		s.saveSnapshot(chain, entry)
	}
	return entry.Data, nil
}

// GetOneWayMarket returns the detailed market id on chain.
func (s *MarketsSlice) GetOneWayMarket(ctx context.Context, chain domain.ChainID, id string, shouldRefetch bool) (*domain.Market, error) {
	entry, err := s.markets.FetchOne(ctx, marketKey(chain, id), shouldRefetch, func(ctx context.Context) (*domain.Market, error) {
		m, err := s.sdk.GetOneWayMarket(ctx, chain, id)
		if err == nil && m == nil {
			return nil, domain.ErrNotFound
		}
		return m, err
	})
	if err != nil {
		s.logger.Warn("Failed to fetch market", zap.String("chain", string(chain)), zap.String("market", id), zap.Error(err))
		return entry.Data, err
	}
	return entry.Data, nil
}

func (s *MarketsSlice) saveSnapshot(chain domain.ChainID, entry domain.CacheEntry[[]domain.MarketSummary]) {
	if s.snapshots == nil {
		return
	}
	data, err := json.Marshal(entry.Data)
	if err != nil {
		s.logger.Warn("Failed to encode markets snapshot", zap.String("chain", string(chain)), zap.Error(err))
		return
	}
	if err := s.snapshots.SaveSnapshot(snapshotName(chain), data, entry.FetchedAt); err != nil {
		s.logger.Warn("Failed to save markets snapshot", zap.String("chain", string(chain)), zap.Error(err))
	}
}

// Hydrate loads persisted market lists for chains. Missing snapshots are
// not an error.
func (s *MarketsSlice) Hydrate(chains []domain.ChainID) int {
	if s.snapshots == nil {
		return 0
	}
	loaded := 0
	for _, chain := range chains {
		data, at, err := s.snapshots.LoadSnapshot(snapshotName(chain))
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("Failed to load markets snapshot", zap.String("chain", string(chain)), zap.Error(err))
			continue
		}
		var list []domain.MarketSummary
		if err := json.Unmarshal(data, &list); err != nil {
			s.logger.Warn("Corrupt markets snapshot", zap.String("chain", string(chain)), zap.Error(err))
			continue
		}
		s.lists.Hydrate(marketsKey(chain), list, at)
		s.mu.Lock()
		s.chains[chain] = true
		s.mu.Unlock()
		loaded++
	}
	return loaded
}

// MarketsView is the rendered market list of one chain.
type MarketsView struct {
	Chain   domain.ChainID         `json:"chain"`
	Markets []domain.MarketSummary `json:"markets"`
	Loading bool                   `json:"loading"`
	Error   string                 `json:"error,omitempty"`
}

func (s *MarketsSlice) View(chain domain.ChainID) MarketsView {
	e, _ := s.lists.Get(marketsKey(chain))
	return MarketsView{Chain: chain, Markets: e.Data, Loading: e.Loading, Error: e.Error}
}

func (s *MarketsSlice) trackedChains() []domain.ChainID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChainID, 0, len(s.chains))
	for c := range s.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Refresh re-fetches the market list of every chain seen so far.
func (s *MarketsSlice) Refresh(ctx context.Context) {
	for _, chain := range s.trackedChains() {
		s.FetchMarkets(ctx, chain, true)
	}
}

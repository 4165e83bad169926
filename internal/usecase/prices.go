package usecase

import (
	"context"

	"github.com/vitos/lendflow/internal/domain"
	"go.uber.org/zap"
)

// DefaultPriceRange is used when a caller does not name a range.
const DefaultPriceRange = "1d"

type priceRef struct {
	chain   domain.ChainID
	address string
	rng     string
}

// PriceHistorySlice caches candles from the prices API per
// (chain, token address, range).
type PriceHistorySlice struct {
	api    domain.PricesAPI
	logger *zap.Logger
	cache  *KeyedCache[domain.TimeSeries]

	tracked *refTracker[priceRef]
}

func NewPriceHistorySlice(api domain.PricesAPI, observer CacheObserver, logger *zap.Logger) *PriceHistorySlice {
	return &PriceHistorySlice{
		api:     api,
		logger:  logger,
		cache:   NewKeyedCache[domain.TimeSeries]("price_history", observer),
		tracked: newRefTracker[priceRef](defaultTrackTTL, defaultMaxTracked),
	}
}

func priceKey(chain domain.ChainID, address, rng string) domain.CacheKey {
	return domain.NewCacheKey(chain, domain.NormalizeAccount(address), "", domain.Field("range", rng))
}

func (s *PriceHistorySlice) FetchPriceHistory(ctx context.Context, chain domain.ChainID, address, rng string, shouldRefetch bool) (domain.TimeSeries, error) {
	if rng == "" {
		rng = DefaultPriceRange
	}
	s.tracked.Touch(priceKey(chain, address, rng), priceRef{chain: chain, address: address, rng: rng})
	return s.fetch(ctx, chain, address, rng, shouldRefetch)
}

func (s *PriceHistorySlice) fetch(ctx context.Context, chain domain.ChainID, address, rng string, shouldRefetch bool) (domain.TimeSeries, error) {
	key := priceKey(chain, address, rng)
	entry, err := s.cache.FetchOne(ctx, key, shouldRefetch, func(ctx context.Context) (domain.TimeSeries, error) {
		return s.api.PriceHistory(ctx, chain, address, rng)
	})
	if err != nil {
		s.logger.Warn("Failed to fetch price history",
			zap.String("chain", string(chain)),
			zap.String("address", address),
			zap.String("range", rng),
			zap.Error(err))
	}
	return entry.Data, err
}

func (s *PriceHistorySlice) Get(chain domain.ChainID, address, rng string) (domain.CacheEntry[domain.TimeSeries], bool) {
	if rng == "" {
		rng = DefaultPriceRange
	}
	return s.cache.Get(priceKey(chain, address, rng))
}

// Refresh re-fetches the series requested recently.
func (s *PriceHistorySlice) Refresh(ctx context.Context) {
	for _, r := range s.tracked.Active() {
		s.fetch(ctx, r.chain, r.address, r.rng, true)
	}
}

package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/lendflow/internal/domain"
)

// Fetcher loads data for a batch of keys. It may return a partial result
// together with an error; keys present in the map are still stored.
type Fetcher[T any] func(ctx context.Context, keys []domain.CacheKey) (map[domain.CacheKey]T, error)

type inflightCall struct {
	done chan struct{}
	err  error
}

// KeyedCache stores results by CacheKey and guarantees at most one
// in-flight fetch per key.
type KeyedCache[T any] struct {
	name     string
	observer CacheObserver

	mu       sync.Mutex
	entries  map[domain.CacheKey]*domain.CacheEntry[T]
	inflight map[domain.CacheKey]*inflightCall

	timeNow func() time.Time // For testing
}

func NewKeyedCache[T any](name string, observer CacheObserver) *KeyedCache[T] {
	if observer == nil {
		observer = NopObserver{}
	}
	return &KeyedCache[T]{
		name:     name,
		observer: observer,
		entries:  make(map[domain.CacheKey]*domain.CacheEntry[T]),
		inflight: make(map[domain.CacheKey]*inflightCall),
		timeNow:  time.Now,
	}
}

func (c *KeyedCache[T]) Name() string {
	return c.name
}

// Get returns a copy of the entry for key. ok is false when the slot has
// never been touched.
func (c *KeyedCache[T]) Get(key domain.CacheKey) (domain.CacheEntry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return domain.CacheEntry[T]{}, false
	}
	return *e, true
}

// Set stores data for key as freshly fetched.
func (c *KeyedCache[T]) Set(key domain.CacheKey, data T) {
	c.Hydrate(key, data, c.timeNow())
}

// Hydrate stores data with an explicit fetch time, e.g. from a snapshot.
func (c *KeyedCache[T]) Hydrate(key domain.CacheKey, data T, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.slot(key)
	e.Data = data
	e.Loaded = true
	e.Error = ""
	e.FetchedAt = fetchedAt
}

// SetError records a failure for key without discarding previous data.
func (c *KeyedCache[T]) SetError(key domain.CacheKey, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot(key).Error = msg
}

func (c *KeyedCache[T]) Delete(key domain.CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *KeyedCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns every key that holds loaded data.
func (c *KeyedCache[T]) Keys() []domain.CacheKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]domain.CacheKey, 0, len(c.entries))
	for k, e := range c.entries {
		if e.Loaded {
			keys = append(keys, k)
		}
	}
	return keys
}

// Missing filters keys down to the ones that need a network call.
func (c *KeyedCache[T]) Missing(keys []domain.CacheKey, shouldRefetch bool) []domain.CacheKey {
	keys = uniqueKeys(keys)
	if shouldRefetch {
		return keys
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var missing []domain.CacheKey
	for _, k := range keys {
		if e, ok := c.entries[k]; ok && e.Loaded {
			continue
		}
		missing = append(missing, k)
	}
	return missing
}

// Fetch returns entries for every requested key. Keys that are already
// loaded are skipped unless shouldRefetch is set; keys with a fetch in
// flight join that fetch instead of starting a second one. Results are
// written to the slots captured when the request started.
func (c *KeyedCache[T]) Fetch(ctx context.Context, keys []domain.CacheKey, shouldRefetch bool, fetch Fetcher[T]) (map[domain.CacheKey]domain.CacheEntry[T], error) {
	keys = uniqueKeys(keys)

	c.mu.Lock()
	var (
		toFetch []domain.CacheKey
		waitOn  []*inflightCall
		hits    int
	)
	for _, k := range keys {
		if call, ok := c.inflight[k]; ok {
			waitOn = append(waitOn, call)
			continue
		}
		if e, ok := c.entries[k]; ok && e.Loaded && !shouldRefetch {
			hits++
			continue
		}
		toFetch = append(toFetch, k)
	}

	var call *inflightCall
	if len(toFetch) > 0 {
		call = &inflightCall{done: make(chan struct{})}
		for _, k := range toFetch {
			c.slot(k).Loading = true
			c.inflight[k] = call
		}
	}
	c.mu.Unlock()

	if hits > 0 {
		c.observer.CacheHit(c.name, hits)
	}
	if len(waitOn) > 0 {
		c.observer.CacheJoined(c.name, len(waitOn))
	}

	var fetchErr error
	if call != nil {
		c.observer.CacheMiss(c.name, len(toFetch))
		fetchErr = c.run(ctx, call, toFetch, fetch)
	}

	for _, w := range waitOn {
		select {
		case <-w.done:
			if w.err != nil && fetchErr == nil {
				fetchErr = w.err
			}
		case <-ctx.Done():
			return c.snapshot(keys), ctx.Err()
		}
	}

	return c.snapshot(keys), fetchErr
}

// FetchOne is Fetch for a single key.
func (c *KeyedCache[T]) FetchOne(ctx context.Context, key domain.CacheKey, shouldRefetch bool, fn func(ctx context.Context) (T, error)) (domain.CacheEntry[T], error) {
	entries, err := c.Fetch(ctx, []domain.CacheKey{key}, shouldRefetch, func(ctx context.Context, _ []domain.CacheKey) (map[domain.CacheKey]T, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return map[domain.CacheKey]T{key: v}, nil
	})
	return entries[key], err
}

// run calls fetch for keys and releases their in-flight slots. The slots are
// released even when fetch panics, so joiners never wait forever.
func (c *KeyedCache[T]) run(ctx context.Context, call *inflightCall, keys []domain.CacheKey, fetch Fetcher[T]) (err error) {
	var (
		results  map[domain.CacheKey]T
		returned bool
	)
	defer func() {
		if !returned {
			err = domain.ErrFetchAborted
		}
		c.store(keys, results, err)
		call.err = err
		close(call.done)
	}()

	start := c.timeNow()
	results, err = fetch(ctx, keys)
	returned = true
	c.observer.FetchDone(c.name, c.timeNow().Sub(start), err)
	return err
}

func (c *KeyedCache[T]) store(keys []domain.CacheKey, results map[domain.CacheKey]T, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.timeNow()
	for _, k := range keys {
		e := c.slot(k)
		e.Loading = false
		delete(c.inflight, k)

		if v, ok := results[k]; ok {
			e.Data = v
			e.Loaded = true
			e.Error = ""
			e.FetchedAt = now
			continue
		}
		if err != nil {
			e.Error = err.Error()
		} else {
			e.Error = domain.ErrNoData.Error()
		}
	}
}

func (c *KeyedCache[T]) snapshot(keys []domain.CacheKey) map[domain.CacheKey]domain.CacheEntry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.CacheKey]domain.CacheEntry[T], len(keys))
	for _, k := range keys {
		if e, ok := c.entries[k]; ok {
			out[k] = *e
		}
	}
	return out
}

// slot must be called with c.mu held.
func (c *KeyedCache[T]) slot(key domain.CacheKey) *domain.CacheEntry[T] {
	e, ok := c.entries[key]
	if !ok {
		e = &domain.CacheEntry[T]{}
		c.entries[key] = e
	}
	return e
}

func uniqueKeys(keys []domain.CacheKey) []domain.CacheKey {
	seen := make(map[domain.CacheKey]bool, len(keys))
	out := make([]domain.CacheKey, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

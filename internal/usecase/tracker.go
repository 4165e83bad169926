package usecase

import (
	"sort"
	"sync"
	"time"

	"github.com/vitos/lendflow/internal/domain"
)

const (
	defaultTrackTTL   = 15 * time.Minute
	defaultMaxTracked = 256
)

type trackedRef[R any] struct {
	ref      R
	lastSeen time.Time
}

// refTracker remembers the refs callers asked for so the poller can refresh
// them. Refs not requested within ttl are dropped, and the oldest ref is
// evicted once max is reached. Poll refreshes must not call Touch, or
// nothing would ever expire.
type refTracker[R any] struct {
	ttl time.Duration
	max int

	mu   sync.Mutex
	refs map[domain.CacheKey]*trackedRef[R]

	timeNow func() time.Time // For testing
}

func newRefTracker[R any](ttl time.Duration, max int) *refTracker[R] {
	return &refTracker[R]{
		ttl:     ttl,
		max:     max,
		refs:    make(map[domain.CacheKey]*trackedRef[R]),
		timeNow: time.Now,
	}
}

func (t *refTracker[R]) Touch(key domain.CacheKey, ref R) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.timeNow()
	if e, ok := t.refs[key]; ok {
		e.ref = ref
		e.lastSeen = now
		return
	}
	t.expire(now)
	if t.max > 0 && len(t.refs) >= t.max {
		t.evictOldest()
	}
	t.refs[key] = &trackedRef[R]{ref: ref, lastSeen: now}
}

// Active returns the live refs ordered by key.
func (t *refTracker[R]) Active() []R {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expire(t.timeNow())
	keys := make([]string, 0, len(t.refs))
	for k := range t.refs {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	out := make([]R, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.refs[domain.CacheKey(k)].ref)
	}
	return out
}

func (t *refTracker[R]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.refs)
}

// expire must be called with t.mu held.
func (t *refTracker[R]) expire(now time.Time) {
	if t.ttl <= 0 {
		return
	}
	for k, e := range t.refs {
		if now.Sub(e.lastSeen) > t.ttl {
			delete(t.refs, k)
		}
	}
}

// evictOldest must be called with t.mu held.
func (t *refTracker[R]) evictOldest() {
	var (
		oldest domain.CacheKey
		at     time.Time
		found  bool
	)
	for k, e := range t.refs {
		if !found || e.lastSeen.Before(at) {
			oldest, at, found = k, e.lastSeen, true
		}
	}
	if found {
		delete(t.refs, oldest)
	}
}

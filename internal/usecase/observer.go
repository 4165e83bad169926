package usecase

import "time"

// CacheObserver receives keyed cache activity.
type CacheObserver interface {
	CacheHit(cache string, n int)
	CacheMiss(cache string, n int)
	CacheJoined(cache string, n int)
	FetchDone(cache string, took time.Duration, err error)
}

// StepObserver receives step engine outcomes.
type StepObserver interface {
	StepDone(flow, step string, took time.Duration, err error)
}

// Observer is implemented by metrics adapters that watch both.
type Observer interface {
	CacheObserver
	StepObserver
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) CacheHit(string, int)                          {}
func (NopObserver) CacheMiss(string, int)                         {}
func (NopObserver) CacheJoined(string, int)                       {}
func (NopObserver) FetchDone(string, time.Duration, error)        {}
func (NopObserver) StepDone(string, string, time.Duration, error) {}

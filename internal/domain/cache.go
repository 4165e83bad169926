package domain

import "time"

// CacheEntry is one slot of a keyed cache.
type CacheEntry[T any] struct {
	Data      T         `json:"data"`
	Loaded    bool      `json:"loaded"`
	Loading   bool      `json:"loading"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

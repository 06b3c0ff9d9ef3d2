// Package metacache holds scraped video metadata keyed by canonical watch
// URL. The store is size-bounded and persisted wholesale as a single JSON
// blob alongside the user preference scalars.
package metacache

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultBound is the maximum entry count used when no bound is configured.
const DefaultBound = 250

// Metadata is one cached scrape result. Seconds == 0 means the duration is
// unknown unless IsLive is set; live broadcasts have no fixed duration.
type Metadata struct {
	Seconds     int     `json:"seconds"`
	Title       string  `json:"title"`
	ChannelName string  `json:"channel_name,omitempty"`
	CurrentTime float64 `json:"current_time,omitempty"`
	IsLive      bool    `json:"is_live,omitempty"`
	Timestamp   int64   `json:"timestamp"` // epoch millis of last write
}

// Prefs holds the user preference scalars persisted in the same blob as the
// cache entries.
type Prefs struct {
	SortOrder        string   `json:"sort_order,omitempty"`
	LayoutMode       string   `json:"layout_mode,omitempty"`
	GroupingMode     string   `json:"grouping_mode,omitempty"`
	ThumbnailQuality string   `json:"thumbnail_quality,omitempty"`
	SmartSync        bool     `json:"smart_sync"`
	ExcludedURLs     []string `json:"excluded_urls,omitempty"`
}

// Store is the process-wide metadata cache. All mutation goes through Merge,
// Clear, and SetPrefs; the mutex serializes every read-modify-write so
// concurrent merges never interleave.
type Store struct {
	mu      sync.Mutex
	path    string // empty means in-memory only
	bound   int
	entries map[string]Metadata
	prefs   Prefs

	now func() time.Time
}

// Open loads the cache blob from path. A missing or unreadable blob starts
// the store empty rather than failing; cache data is always reconstructible.
// An empty path keeps the store purely in memory.
func Open(path string, bound int) *Store {
	if bound <= 0 {
		bound = DefaultBound
	}
	s := &Store{
		path:    path,
		bound:   bound,
		entries: make(map[string]Metadata),
		now:     time.Now,
	}
	if path != "" {
		s.loadLocked()
	}
	return s
}

// Get returns the cached entry for key, if present.
func (s *Store) Get(key string) (Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.entries[key]
	return m, ok
}

// Merge folds incoming scraped metadata into the entry for key and returns
// the merged result. A zero incoming duration never overwrites a known good
// one: transient probes of half-loaded pages routinely report 0 seconds, and
// a single bad read must not corrupt the cache. A confirmed live broadcast
// is the exception: live videos have no fixed duration, so IsLive resets
// Seconds. All other incoming fields overwrite unconditionally.
func (s *Store) Merge(key string, incoming Metadata) Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.entries[key]

	merged := incoming
	keepDuration := incoming.Seconds <= 0 && exists && !incoming.IsLive
	if keepDuration {
		merged.Seconds = existing.Seconds
	}
	merged.Timestamp = s.now().UnixMilli()

	s.entries[key] = merged
	if !exists {
		s.evictOldestLocked()
	}
	s.saveLocked()
	return merged
}

// evictOldestLocked removes the single entry with the smallest timestamp
// whenever an insert pushed the store past its bound. Writes and evictions
// are 1:1, so one removal always restores the invariant.
func (s *Store) evictOldestLocked() {
	if len(s.entries) <= s.bound {
		return
	}

	var oldestKey string
	var oldestTS int64
	first := true
	for k, m := range s.entries {
		if first || m.Timestamp < oldestTS {
			oldestKey, oldestTS, first = k, m.Timestamp, false
		}
	}
	delete(s.entries, oldestKey)
	slog.Debug("metacache evicted oldest entry", "key", oldestKey, "timestamp", oldestTS)
}

// Clear drops every cached entry. Preferences survive; clearing the cache is
// an explicit user action aimed at scraped data only.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Metadata)
	s.saveLocked()
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot returns a copy of all entries for read-only consumers.
func (s *Store) Snapshot() map[string]Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Metadata, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Close writes the blob out one final time. Every mutation already persists,
// so this only matters if an earlier save failed transiently.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked()
}

// Prefs returns the persisted user preferences.
func (s *Store) Prefs() Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// SetPrefs replaces the persisted user preferences.
func (s *Store) SetPrefs(p Prefs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = p
	s.saveLocked()
}

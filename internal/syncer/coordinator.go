package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tubetally/tubetally/internal/metacache"
	"github.com/tubetally/tubetally/internal/probe"
	"github.com/tubetally/tubetally/internal/scrape"
	"github.com/tubetally/tubetally/internal/urlkey"
)

// Metadata is re-exported so listeners and API payloads do not need to
// import the cache package directly.
type Metadata = metacache.Metadata

// Prober is the live-tab extraction collaborator.
type Prober interface {
	ListVideoTabs(ctx context.Context) ([]probe.TabInfo, error)
	ProbeTab(ctx context.Context, tabID string) (scrape.Result, error)
	ProbePlayback(ctx context.Context, tabID string) (probe.Playback, error)
}

// Fetcher is the tab-independent slow-path collaborator.
type Fetcher interface {
	FetchWatchPage(ctx context.Context, canonicalURL string) (scrape.Result, error)
}

// Notifier pushes a user-visible message when a batch aborts on upstream
// rate limiting. A nil Notifier disables notifications.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Config carries the tunables whose values have no derivation beyond "what
// the upstream tolerates"; they stay configurable rather than hardcoded.
type Config struct {
	// FreshnessWindow is the maximum cache entry age served without refetching.
	FreshnessWindow time.Duration
	// FetchDelay is the pause between sequential slow-path fetches.
	FetchDelay time.Duration
	// SPARetryBackoff is the wait before the single re-probe after an SPA
	// navigation is detected.
	SPARetryBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = 10 * time.Minute
	}
	if c.FetchDelay <= 0 {
		c.FetchDelay = 2 * time.Second
	}
	if c.SPARetryBackoff <= 0 {
		c.SPARetryBackoff = 500 * time.Millisecond
	}
}

// SyncRequest names one tab whose video should be resolved via the slow path.
type SyncRequest struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
}

// Status describes the coordinator for the API surface.
type Status struct {
	LastSyncAt time.Time `json:"last_sync_at,omitzero"`
	InFlight   int       `json:"in_flight"`
	LastError  string    `json:"last_error,omitempty"`
}

// Coordinator owns the process-wide sync state: the in-flight fetch set, the
// fetch throttle, and the listener set. It is constructed once at startup
// and passed to every caller; the cache store it wraps serializes all merges.
type Coordinator struct {
	store    *metacache.Store
	fetcher  Fetcher
	prober   Prober
	notifier Notifier
	cfg      Config

	limiter *rate.Limiter

	mu         sync.Mutex
	inFlight   map[string]struct{}
	lastSyncAt time.Time
	lastError  string

	listeners listenerSet

	now func() time.Time
}

func New(store *metacache.Store, fetcher Fetcher, prober Prober, notifier Notifier, cfg Config) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		store:    store,
		fetcher:  fetcher,
		prober:   prober,
		notifier: notifier,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(cfg.FetchDelay), 1),
		inFlight: make(map[string]struct{}),
		now:      time.Now,
	}
}

// AddListener registers l for all future sync events.
func (c *Coordinator) AddListener(l Listener) {
	c.listeners.add(l)
}

// Status returns a snapshot of the coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{LastSyncAt: c.lastSyncAt, InFlight: len(c.inFlight), LastError: c.lastError}
}

// CacheSnapshot returns a copy of every cached entry keyed by canonical URL.
func (c *Coordinator) CacheSnapshot() map[string]Metadata {
	return c.store.Snapshot()
}

// ClearCache drops all cached metadata. Preferences survive.
func (c *Coordinator) ClearCache() {
	c.store.Clear()
}

// Prefs returns the current user preferences.
func (c *Coordinator) Prefs() metacache.Prefs {
	return c.store.Prefs()
}

// SetPrefs replaces the user preferences.
func (c *Coordinator) SetPrefs(p metacache.Prefs) {
	c.store.SetPrefs(p)
}

// RequestMetadataUpdate is the write-path entry point used by probes to push
// freshly scraped data into the cache merge.
func (c *Coordinator) RequestMetadataUpdate(rawURL string, res scrape.Result) Metadata {
	key := urlkey.Canonicalize(rawURL)
	return c.store.Merge(key, toMetadata(res))
}

// RequestSync resolves a batch of background tabs through the slow path.
// Requests satisfied by a fresh cache entry never touch the network; the
// rest are fetched strictly sequentially with the configured delay between
// them. An upstream rate-limit signal aborts the remainder of the batch:
// continuing would only amplify the block.
func (c *Coordinator) RequestSync(ctx context.Context, reqs []SyncRequest) error {
	batchID := uuid.NewString()
	slog.Info("sync batch start", "batch_id", batchID, "requests", len(reqs))

	for _, req := range reqs {
		key := urlkey.Canonicalize(req.URL)

		if meta, ok := c.store.Get(key); ok && c.isFresh(meta) {
			c.listeners.tabSynced(batchID, req.TabID, meta)
			continue
		}

		if !c.markInFlight(key) {
			slog.Debug("sync request already in flight, skipping", "batch_id", batchID, "url", key)
			continue
		}

		meta, err := c.fetchAndMerge(ctx, key)
		if err != nil {
			switch {
			case scrape.IsConsentWall(err):
				slog.Debug("sync request hit consent wall, skipping", "batch_id", batchID, "url", key)
				continue
			case scrape.IsRateLimited(err):
				c.recordError(err.Error())
				c.listeners.syncError(batchID, err.Error())
				c.notifyRateLimited(ctx, err)
				return err
			default:
				slog.Warn("sync fetch failed", "batch_id", batchID, "url", key, "error", err)
				continue
			}
		}
		if meta == nil {
			// Scrape miss: nothing usable to cache, nothing to emit.
			continue
		}
		c.listeners.tabSynced(batchID, req.TabID, *meta)
	}

	c.mu.Lock()
	c.lastSyncAt = c.now()
	c.lastError = ""
	c.mu.Unlock()

	c.listeners.syncComplete(batchID)
	return nil
}

// fetchAndMerge performs one throttled slow-path fetch and merges the result
// into the cache. The in-flight entry is cleared on every exit path.
func (c *Coordinator) fetchAndMerge(ctx context.Context, key string) (*Metadata, error) {
	defer c.clearInFlight(key)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := c.fetcher.FetchWatchPage(ctx, key)
	if err != nil {
		return nil, err
	}
	if res.Empty() {
		return nil, nil
	}

	merged := c.store.Merge(key, toMetadata(res))
	return &merged, nil
}

func (c *Coordinator) markInFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.inFlight[key]; exists {
		return false
	}
	c.inFlight[key] = struct{}{}
	return true
}

func (c *Coordinator) clearInFlight(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, key)
}

// isFresh reports whether a cached entry can satisfy a sync request without
// refetching: it must carry a real duration (or be live), a title, and be
// younger than the freshness window.
func (c *Coordinator) isFresh(meta Metadata) bool {
	if meta.Seconds <= 0 && !meta.IsLive {
		return false
	}
	if meta.Title == "" {
		return false
	}
	age := c.now().Sub(time.UnixMilli(meta.Timestamp))
	return age < c.cfg.FreshnessWindow
}

func (c *Coordinator) recordError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = msg
}

func (c *Coordinator) notifyRateLimited(ctx context.Context, cause error) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Send(ctx, "tubetally: background sync halted, upstream rate limit: "+cause.Error()); err != nil {
		slog.Debug("rate-limit notification failed", "error", err)
	}
}

func toMetadata(res scrape.Result) Metadata {
	return Metadata{
		Seconds:     res.Seconds,
		Title:       res.Title,
		ChannelName: res.ChannelName,
		CurrentTime: res.CurrentTime,
		IsLive:      res.IsLive,
	}
}

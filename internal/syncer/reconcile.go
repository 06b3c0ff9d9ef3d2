package syncer

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tubetally/tubetally/internal/probe"
	"github.com/tubetally/tubetally/internal/urlkey"
)

// TabState tracks where a video tab ended up within one refresh cycle.
type TabState string

const (
	StateNoData         TabState = "no-data"
	StateHasCached      TabState = "has-cached"
	StateProbing        TabState = "probing"
	StateProbedFresh    TabState = "probed-fresh"
	StateProbedStaleSPA TabState = "probed-stale-spa"
	StateFetchPending   TabState = "fetch-pending"
	StateFetchFailed    TabState = "fetch-failed"
)

// TabSnapshot ties a live tab to its canonical URL and best-known metadata
// for one refresh cycle. Snapshots are rebuilt every cycle, never persisted.
type TabSnapshot struct {
	Tab      probe.TabInfo `json:"tab"`
	Key      string        `json:"key"`
	Metadata Metadata      `json:"metadata"`
	State    TabState      `json:"state"`
}

// RefreshResult is one full reconciliation pass over the live tab set.
type RefreshResult struct {
	Tabs        []TabSnapshot `json:"tabs"`
	Totals      Totals        `json:"totals"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Refresh runs a full cycle: enumerate video tabs, probe them in parallel,
// push any tab the probe could not resolve through the sequential slow path,
// and recompute the aggregate.
func (c *Coordinator) Refresh(ctx context.Context) (*RefreshResult, error) {
	tabs, err := c.prober.ListVideoTabs(ctx)
	if err != nil {
		return nil, err
	}

	prefs := c.store.Prefs()
	snapshots := make([]TabSnapshot, 0, len(tabs))
	for _, tab := range tabs {
		if isExcluded(urlkey.Canonicalize(tab.URL), prefs.ExcludedURLs) {
			continue
		}
		snapshots = append(snapshots, TabSnapshot{Tab: tab, Key: urlkey.Canonicalize(tab.URL), State: StateProbing})
	}

	// Probes run in parallel per tab; only the cache merge is serialized.
	var wg sync.WaitGroup
	for i := range snapshots {
		wg.Add(1)
		go func(snap *TabSnapshot) {
			defer wg.Done()
			*snap = c.reconcileTab(ctx, *snap, prefs.SmartSync)
		}(&snapshots[i])
	}
	wg.Wait()

	// Tabs the probe could not reach fall through to the slow path.
	var pending []SyncRequest
	for _, snap := range snapshots {
		if snap.State == StateFetchPending {
			pending = append(pending, SyncRequest{TabID: snap.Tab.TabID, URL: snap.Tab.URL})
		}
	}
	if len(pending) > 0 {
		if err := c.RequestSync(ctx, pending); err != nil {
			slog.Warn("slow-path batch aborted", "error", err)
		}
		for i := range snapshots {
			if snapshots[i].State != StateFetchPending {
				continue
			}
			if meta, ok := c.store.Get(snapshots[i].Key); ok {
				snapshots[i].Metadata = meta
				snapshots[i].State = StateHasCached
			} else {
				snapshots[i].State = StateFetchFailed
			}
		}
	}

	return &RefreshResult{
		Tabs:        snapshots,
		Totals:      aggregate(snapshots),
		GeneratedAt: c.now(),
	}, nil
}

// reconcileTab resolves one tab. When smart sync is on and the cache already
// holds believable metadata, only playback position is probed. If the page
// reports a different video id than the tab URL implies, an SPA navigation
// happened without a reload and the cached identity is stale.
func (c *Coordinator) reconcileTab(ctx context.Context, snap TabSnapshot, smartSync bool) TabSnapshot {
	expectedID := urlkey.VideoID(snap.Tab.URL)
	cached, hasCached := c.store.Get(snap.Key)
	if hasCached {
		snap.Metadata = cached
		snap.State = StateHasCached
	} else {
		snap.State = StateNoData
	}

	if smartSync && hasCached && looksReal(cached) {
		pb, err := c.prober.ProbePlayback(ctx, snap.Tab.TabID)
		if err == nil {
			if pb.VideoID == "" || pb.VideoID == expectedID {
				incoming := cached
				incoming.CurrentTime = pb.CurrentTime
				if pb.Seconds > 0 {
					incoming.Seconds = pb.Seconds
				}
				snap.Metadata = c.store.Merge(snap.Key, incoming)
				snap.State = StateProbedFresh
				return snap
			}
			// The page moved on to a different video; the optimistic skip
			// is invalid and a full probe is required.
			slog.Debug("spa navigation detected",
				"tab_id", snap.Tab.TabID, "expected", expectedID, "reported", pb.VideoID)
			snap.State = StateProbedStaleSPA
		}
	}

	return c.fullProbe(ctx, snap, expectedID)
}

// fullProbe runs the complete in-page extraction. After an SPA transition
// the re-scrape can race the new page's own update cycle, so an identity
// mismatch is retried once after a short backoff before the tab is left
// unresolved for this cycle.
func (c *Coordinator) fullProbe(ctx context.Context, snap TabSnapshot, expectedID string) TabSnapshot {
	res, err := c.prober.ProbeTab(ctx, snap.Tab.TabID)
	if err != nil {
		// Unreachable tab (closed, restricted, discarded): defer to the
		// slow path rather than surfacing the error.
		slog.Debug("probe unavailable, deferring to fetch",
			"tab_id", snap.Tab.TabID, "error", err)
		snap.State = StateFetchPending
		return snap
	}

	if res.VideoID != "" && expectedID != "" && res.VideoID != expectedID {
		select {
		case <-time.After(c.cfg.SPARetryBackoff):
		case <-ctx.Done():
			snap.State = StateProbedStaleSPA
			return snap
		}
		res, err = c.prober.ProbeTab(ctx, snap.Tab.TabID)
		if err != nil {
			snap.State = StateFetchPending
			return snap
		}
		if res.VideoID != "" && res.VideoID != expectedID {
			// Still racing the page; give up until the next refresh.
			snap.State = StateProbedStaleSPA
			return snap
		}
	}

	if res.Empty() {
		if snap.State == StateNoData {
			snap.State = StateFetchPending
		}
		return snap
	}

	merged := c.store.Merge(snap.Key, toMetadata(res))
	snap.Metadata = merged
	snap.State = StateProbedFresh
	return snap
}

// looksReal reports whether cached metadata is believable enough to skip a
// full re-scrape: a known duration (or live flag) plus a non-empty title.
func looksReal(meta Metadata) bool {
	return (meta.Seconds > 0 || meta.IsLive) && meta.Title != ""
}

func isExcluded(key string, excluded []string) bool {
	return slices.ContainsFunc(excluded, func(u string) bool {
		return urlkey.Canonicalize(u) == key
	})
}

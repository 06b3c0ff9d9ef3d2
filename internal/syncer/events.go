// Package syncer coordinates metadata synchronization across the live tab
// set: probe fan-out, the deduplicated and throttled slow-path fetch batch,
// reconciliation against the cache, and the aggregate totals.
package syncer

import (
	"log/slog"
	"sync"
)

// Listener receives asynchronous sync events. TabSynced fires once per
// request that resolved (from cache or from a fetch); SyncComplete and
// SyncError terminate a batch.
type Listener interface {
	TabSynced(batchID, tabID string, meta Metadata)
	SyncComplete(batchID string)
	SyncError(batchID, message string)
}

type listenerSet struct {
	mu        sync.Mutex
	listeners []Listener
}

func (ls *listenerSet) add(l Listener) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.listeners = append(ls.listeners, l)
}

func (ls *listenerSet) snapshot() []Listener {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]Listener, len(ls.listeners))
	copy(out, ls.listeners)
	return out
}

func (ls *listenerSet) tabSynced(batchID, tabID string, meta Metadata) {
	for _, l := range ls.snapshot() {
		l.TabSynced(batchID, tabID, meta)
	}
}

func (ls *listenerSet) syncComplete(batchID string) {
	slog.Debug("sync batch complete", "batch_id", batchID)
	for _, l := range ls.snapshot() {
		l.SyncComplete(batchID)
	}
}

func (ls *listenerSet) syncError(batchID, message string) {
	slog.Warn("sync batch error", "batch_id", batchID, "message", message)
	for _, l := range ls.snapshot() {
		l.SyncError(batchID, message)
	}
}

package syncer

// Totals is the aggregate over the live tab set. Duplicate tabs showing the
// same video each count: the total answers "how much is open", not "how much
// is unique".
type Totals struct {
	TabCount         int     `json:"tab_count"`
	KnownCount       int     `json:"known_count"`
	LiveCount        int     `json:"live_count"`
	TotalSeconds     int     `json:"total_seconds"`
	WatchedSeconds   float64 `json:"watched_seconds"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

func aggregate(snapshots []TabSnapshot) Totals {
	var t Totals
	t.TabCount = len(snapshots)

	for _, snap := range snapshots {
		meta := snap.Metadata
		if meta.IsLive {
			t.LiveCount++
			continue
		}
		if meta.Seconds <= 0 {
			continue
		}

		t.KnownCount++
		t.TotalSeconds += meta.Seconds

		watched := meta.CurrentTime
		// A reported position past the end is clock noise; clamp it.
		if watched > float64(meta.Seconds) {
			watched = float64(meta.Seconds)
		}
		t.WatchedSeconds += watched
		t.RemainingSeconds += float64(meta.Seconds) - watched
	}
	return t
}

// Package scrape extracts video metadata from YouTube watch pages, either
// from a fetched document (slow path) or from probe payloads produced inside
// a live tab. Extraction misses are routine: every extractor degrades to a
// zero Result instead of failing.
package scrape

// Result is the common shape produced by both extraction strategies. The
// confidence flags make the reconciler's precedence rules explicit: data
// decoded from the embedded player-response JSON outranks values recovered
// by regex or DOM heuristics.
type Result struct {
	VideoID     string  `json:"video_id,omitempty"`
	Title       string  `json:"title,omitempty"`
	ChannelName string  `json:"channel_name,omitempty"`
	Seconds     int     `json:"seconds"`
	CurrentTime float64 `json:"current_time,omitempty"`
	IsLive      bool    `json:"is_live,omitempty"`

	// HasStructuredData is set when fields were decoded from the embedded
	// player-response blob rather than scraped out of markup.
	HasStructuredData bool `json:"has_structured_data,omitempty"`
	// Fallback is set when any field came from a heuristic extractor.
	Fallback bool `json:"fallback,omitempty"`
}

// Empty reports whether the result carries no usable data.
func (r Result) Empty() bool {
	return r.Seconds == 0 && r.Title == "" && r.ChannelName == "" && !r.IsLive
}

// ResolveLive applies the live-status precedence: a non-zero confirmed
// length wins outright (a finished broadcast has a fixed duration and is not
// live), then the explicit structured flag, then a broadcast start without
// an end, then the visible badge as last resort.
func ResolveLive(seconds int, explicit, startedWithoutEnd, badgeVisible bool) bool {
	if seconds > 0 {
		return false
	}
	if explicit {
		return true
	}
	if startedWithoutEnd {
		return true
	}
	return badgeVisible
}

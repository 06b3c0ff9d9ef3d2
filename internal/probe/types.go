// Package probe evaluates metadata-extraction JS inside live YouTube tabs
// over the Chrome DevTools protocol. It talks to the browser-level WebSocket
// endpoint directly with flat sessions; the heavier auto-attach session
// bootstrap destabilizes some browser builds.
package probe

import (
	"fmt"
	"strings"
)

const (
	CodeValidation     = "VALIDATION"
	CodeTabNotFound    = "TAB_NOT_FOUND"
	CodeEvalFailure    = "EVAL_FAILURE"
	CodeEvalTimeout    = "EVAL_TIMEOUT"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
}

func isTransientCause(err error) bool {
	if err == nil {
		return false
	}
	cause := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(cause, hint) {
			return true
		}
	}
	return false
}

// TabInfo describes one video tab mapped from a browser target.
type TabInfo struct {
	TabID    string `json:"tab_id"`
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Attached bool   `json:"attached,omitempty"`
}

// Playback is the cheap playback-only probe payload used when cached
// metadata is assumed still valid. VideoID is what the page itself reports
// and is compared against the tab URL to catch SPA navigations.
type Playback struct {
	VideoID     string  `json:"video_id"`
	CurrentTime float64 `json:"current_time"`
	Seconds     int     `json:"seconds"`
}

// shortTabID derives the stable short id used in API payloads and logs from
// a CDP target id.
func shortTabID(targetID string) string {
	id := strings.ToUpper(targetID)
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}

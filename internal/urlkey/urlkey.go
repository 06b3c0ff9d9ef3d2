// Package urlkey canonicalizes YouTube video URLs so every URL form that
// refers to the same video maps to one cache key.
package urlkey

import (
	"net/url"
	"strings"
)

const watchPrefix = "https://www.youtube.com/watch?v="

// Canonicalize maps any recognized YouTube video URL form to the canonical
// watch form. URLs for other hosts, or YouTube URLs without an extractable
// video id, pass through unchanged. Canonicalize never fails and is
// idempotent.
func Canonicalize(raw string) string {
	if id := VideoID(raw); id != "" {
		return watchPrefix + id
	}
	return raw
}

// VideoID extracts the video id from a watch, short-link, shorts, or embed
// URL. Returns "" when the URL is not a recognized video URL.
func VideoID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	switch host {
	case "youtu.be":
		return firstPathSegment(u.Path)
	case "youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com":
	default:
		return ""
	}

	if strings.HasPrefix(u.Path, "/watch") {
		return u.Query().Get("v")
	}
	for _, prefix := range []string{"/shorts/", "/embed/", "/live/"} {
		if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
			return firstPathSegment(rest)
		}
	}
	return ""
}

// IsVideoURL reports whether the URL refers to a playable video. Used to
// filter browser tabs down to the ones worth probing.
func IsVideoURL(raw string) bool {
	return VideoID(raw) != ""
}

func firstPathSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexAny(p, "/?#"); i >= 0 {
		p = p[:i]
	}
	return p
}

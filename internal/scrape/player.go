package scrape

import (
	"encoding/json"
	"html"
	"regexp"
	"strconv"
	"strings"
)

const playerResponseMarker = "ytInitialPlayerResponse"

var (
	approxDurationRe = regexp.MustCompile(`"approxDurationMs"\s*:\s*"(\d+)"`)
	titleTagRe       = regexp.MustCompile(`(?s)<title>(.*?)</title>`)
	authorRe         = regexp.MustCompile(`"(?:author|ownerChannelName)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// playerResponse mirrors the slice of the embedded player-response blob the
// extractor cares about. lengthSeconds arrives as a quoted number.
type playerResponse struct {
	VideoDetails struct {
		VideoID       string `json:"videoId"`
		Title         string `json:"title"`
		Author        string `json:"author"`
		LengthSeconds string `json:"lengthSeconds"`
		IsLive        bool   `json:"isLive"`
	} `json:"videoDetails"`
	Microformat struct {
		PlayerMicroformatRenderer struct {
			LiveBroadcastDetails struct {
				IsLiveNow      bool   `json:"isLiveNow"`
				StartTimestamp string `json:"startTimestamp"`
				EndTimestamp   string `json:"endTimestamp"`
			} `json:"liveBroadcastDetails"`
		} `json:"playerMicroformatRenderer"`
	} `json:"microformat"`
}

// ParsePlayerResponse decodes an extracted player-response blob. Malformed
// or partial JSON yields ok=false rather than an error; the caller falls
// through to the heuristic extractors.
func ParsePlayerResponse(data []byte) (Result, bool) {
	var pr playerResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return Result{}, false
	}

	d := pr.VideoDetails
	if d.VideoID == "" && d.Title == "" && d.LengthSeconds == "" {
		return Result{}, false
	}

	seconds, _ := strconv.Atoi(d.LengthSeconds)
	if seconds < 0 {
		seconds = 0
	}

	lb := pr.Microformat.PlayerMicroformatRenderer.LiveBroadcastDetails
	startedWithoutEnd := lb.StartTimestamp != "" && lb.EndTimestamp == ""

	return Result{
		VideoID:           d.VideoID,
		Title:             d.Title,
		ChannelName:       d.Author,
		Seconds:           seconds,
		IsLive:            ResolveLive(seconds, d.IsLive || lb.IsLiveNow, startedWithoutEnd, false),
		HasStructuredData: true,
	}, true
}

// ExtractFromDocument pulls metadata out of a raw watch-page document. The
// embedded player-response blob is tried first; whatever fields it cannot
// provide are recovered by the ordered heuristic extractors.
func ExtractFromDocument(doc string) Result {
	if blob, ok := extractPlayerResponse(doc); ok {
		if res, ok := ParsePlayerResponse(blob); ok {
			return res
		}
	}

	var res Result
	res.Fallback = true
	if ms, ok := extractApproxDuration(doc); ok {
		res.Seconds = ms / 1000
	}
	if title, ok := extractTitleTag(doc); ok {
		res.Title = title
	}
	if author, ok := extractAuthor(doc); ok {
		res.ChannelName = author
	}
	if res.Empty() {
		return Result{}
	}
	return res
}

// extractPlayerResponse locates the player-response assignment and returns
// the balanced JSON object that follows it. A brace scan is used instead of
// a regex because the blob nests arbitrarily and contains braces inside
// string values.
func extractPlayerResponse(doc string) ([]byte, bool) {
	idx := strings.Index(doc, playerResponseMarker)
	if idx < 0 {
		return nil, false
	}
	rest := doc[idx+len(playerResponseMarker):]

	eq := strings.IndexByte(rest, '=')
	if eq < 0 {
		return nil, false
	}
	rest = strings.TrimLeft(rest[eq+1:], " \t\r\n")
	if len(rest) == 0 || rest[0] != '{' {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(rest[:i+1]), true
			}
		}
	}
	return nil, false
}

func extractApproxDuration(doc string) (int, bool) {
	m := approxDurationRe.FindStringSubmatch(doc)
	if m == nil {
		return 0, false
	}
	ms, err := strconv.Atoi(m[1])
	if err != nil || ms <= 0 {
		return 0, false
	}
	return ms, true
}

func extractTitleTag(doc string) (string, bool) {
	m := titleTagRe.FindStringSubmatch(doc)
	if m == nil {
		return "", false
	}
	title := html.UnescapeString(strings.TrimSpace(m[1]))
	title = strings.TrimSuffix(title, " - YouTube")
	if title == "" || title == "YouTube" {
		return "", false
	}
	return title, true
}

func extractAuthor(doc string) (string, bool) {
	m := authorRe.FindStringSubmatch(doc)
	if m == nil {
		return "", false
	}
	var author string
	if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &author); err != nil {
		return "", false
	}
	author = strings.TrimSpace(author)
	if author == "" {
		return "", false
	}
	return author, true
}

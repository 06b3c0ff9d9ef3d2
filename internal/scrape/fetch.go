package scrape

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultUserAgent is a realistic desktop browser UA. YouTube serves a
// stripped document without the embedded player response to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// maxDocumentBytes caps how much of a watch page is read. The player
// response sits in the first few hundred KB; 4 MB leaves generous slack.
const maxDocumentBytes = 4 << 20

// Fetcher retrieves watch pages over plain HTTP without any tab context.
type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// NewFetcher builds a Fetcher with a per-request timeout. The timeout is
// what keeps a hung request from pinning its in-flight dedup entry forever.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{},
		userAgent: DefaultUserAgent,
		timeout:   timeout,
	}
}

// FetchWatchPage GETs the canonical watch URL and extracts metadata from the
// returned document. A page that yields no usable data returns a zero Result
// and nil error; only transport failures and interstitials are errors.
func (f *Fetcher) FetchWatchPage(ctx context.Context, canonicalURL string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, canonicalURL, nil)
	if err != nil {
		return Result{}, newError(CodeFetchFailure, "build request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, newError(CodeFetchFailure, "fetch watch page", err)
	}
	defer func() { _ = resp.Body.Close() }()

	finalURL := resp.Request.URL
	if isConsentHost(finalURL.Hostname()) {
		return Result{}, newError(CodeConsentWall, "redirected to consent wall", nil)
	}
	if isSorryInterstitial(finalURL.Hostname(), finalURL.Path) {
		return Result{}, newError(CodeRateLimited, "redirected to rate-limit interstitial", nil)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return Result{}, newError(CodeRateLimited, "rate-limited status "+resp.Status, nil)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, newError(CodeFetchFailure, "unexpected status "+resp.Status, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return Result{}, newError(CodeFetchFailure, "read watch page", err)
	}

	res := ExtractFromDocument(string(body))
	if res.Empty() {
		slog.Debug("scrape fetch yielded no usable data", "url", canonicalURL, "bytes", len(body))
	}
	return res, nil
}

func isConsentHost(host string) bool {
	return strings.EqualFold(host, "consent.youtube.com") || strings.EqualFold(host, "consent.google.com")
}

func isSorryInterstitial(host, path string) bool {
	if strings.Contains(strings.ToLower(host), "sorry.google") {
		return true
	}
	return strings.Contains(path, "/sorry")
}

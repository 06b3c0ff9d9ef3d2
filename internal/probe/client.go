package probe

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"

	"github.com/tubetally/tubetally/internal/scrape"
	"github.com/tubetally/tubetally/internal/urlkey"
)

type tabSession struct {
	info      TabInfo
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
}

// Client tracks the browser's YouTube video tabs and evaluates extraction JS
// on them over flat CDP sessions.
type Client struct {
	cdpURL      string
	evalTimeout time.Duration

	mu          sync.Mutex
	cdp         *rawCDP
	tabs        map[target.ID]*tabSession
	tabToTarget map[string]target.ID

	tabLocksMu sync.Mutex
	tabLocks   map[string]*sync.Mutex
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// metadataPayload is the raw probe payload before precedence resolution.
type metadataPayload struct {
	VideoID           string  `json:"video_id"`
	Title             string  `json:"title"`
	Author            string  `json:"author"`
	LengthSeconds     int     `json:"length_seconds"`
	MediaDuration     float64 `json:"media_duration"`
	CurrentTime       float64 `json:"current_time"`
	IsLiveFlag        bool    `json:"is_live_flag"`
	StartedWithoutEnd bool    `json:"started_without_end"`
	BadgeVisible      bool    `json:"badge_visible"`
	DurationLabel     string  `json:"duration_label"`
	HasStructuredData bool    `json:"has_structured_data"`
}

func NewClient(cdpURL string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:      cdpURL,
		evalTimeout: evalTimeout,
		tabs:        make(map[target.ID]*tabSession),
		tabToTarget: make(map[string]target.ID),
		tabLocks:    make(map[string]*sync.Mutex),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("probe connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("probe initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("probe connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for _, session := range c.tabs {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_ = c.cdp.detachFromTarget(ctx, session.sessionID)
				cancel()
				session.sessionID = ""
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
	c.tabToTarget = make(map[string]target.ID)
}

// ListVideoTabs refreshes the tab set from the browser and returns every tab
// currently showing a video URL.
func (c *Client) ListVideoTabs(ctx context.Context) ([]TabInfo, error) {
	if err := c.refreshTabs(ctx); err != nil {
		slog.Warn("probe list tabs failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	tabs := make([]TabInfo, 0, len(c.tabs))
	for _, s := range c.tabs {
		if s != nil {
			tabs = append(tabs, s.info)
		}
	}
	c.mu.Unlock()

	sort.Slice(tabs, func(i, j int) bool { return tabs[i].TabID < tabs[j].TabID })
	slog.Debug("probe list tabs", "count", len(tabs))
	return tabs, nil
}

// ProbeTab runs the full metadata extraction inside the given tab. A tab
// whose page carries no usable data yields a zero Result, not an error.
func (c *Client) ProbeTab(ctx context.Context, tabID string) (scrape.Result, error) {
	var payload metadataPayload
	if err := c.evalOnTab(ctx, tabID, jsGetVideoMetadata(), &payload); err != nil {
		return scrape.Result{}, err
	}
	return resolvePayload(payload), nil
}

// ProbePlayback runs the cheap playback-only probe used when cached metadata
// is assumed valid.
func (c *Client) ProbePlayback(ctx context.Context, tabID string) (Playback, error) {
	var out Playback
	if err := c.evalOnTab(ctx, tabID, jsGetPlayback(), &out); err != nil {
		return Playback{}, err
	}
	return out, nil
}

// resolvePayload applies the duration and live-status precedence to a raw
// probe payload: structured length first, then the media element, then the
// rendered duration label.
func resolvePayload(p metadataPayload) scrape.Result {
	res := scrape.Result{
		VideoID:           p.VideoID,
		Title:             strings.TrimSpace(p.Title),
		ChannelName:       strings.TrimSpace(p.Author),
		CurrentTime:       p.CurrentTime,
		HasStructuredData: p.HasStructuredData,
	}

	switch {
	case p.LengthSeconds > 0:
		res.Seconds = p.LengthSeconds
	case p.MediaDuration > 0:
		res.Seconds = int(p.MediaDuration)
		res.Fallback = true
	default:
		if secs, ok := scrape.ParseDurationLabel(p.DurationLabel); ok {
			res.Seconds = secs
			res.Fallback = true
		}
	}
	if !p.HasStructuredData {
		res.Fallback = true
	}

	res.IsLive = scrape.ResolveLive(res.Seconds, p.IsLiveFlag, p.StartedWithoutEnd, p.BadgeVisible)
	return res
}

func (c *Client) evalOnTab(ctx context.Context, tabID, js string, out any) error {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return newError(CodeTabNotFound, "tab id is required", nil)
	}

	lock := c.tabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	// First attempt.
	slog.Debug("probe eval on tab", "tab_id", tabID)
	session, info, err := c.resolveTabSession(ctx, tabID)
	if err != nil {
		slog.Warn("probe tab resolve failed", "tab_id", tabID, "error", err)
	} else {
		err = c.evalOnSession(ctx, session, info.TargetID, js, out)
	}
	if err == nil {
		return nil
	}
	if !c.shouldRetry(err) {
		return err
	}

	// Retry after recovery.
	slog.Warn("probe eval retry after transient failure", "tab_id", tabID, "error", err)
	if c.asCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("probe reconnect failed during retry", "tab_id", tabID, "error", recErr)
			return recErr
		}
	} else {
		if syncErr := c.refreshTabs(ctx); syncErr != nil {
			slog.Warn("probe tab refresh failed during retry", "tab_id", tabID, "error", syncErr)
		}
	}

	session, info, err = c.resolveTabSession(ctx, tabID)
	if err != nil {
		return err
	}
	return c.evalOnSession(ctx, session, info.TargetID, js, out)
}

func (c *Client) resolveTabSession(ctx context.Context, tabID string) (*tabSession, TabInfo, error) {
	session, info, found := c.lookupTabSession(tabID)
	if found {
		return session, info, nil
	}

	if err := c.refreshTabs(ctx); err != nil {
		return nil, TabInfo{}, err
	}

	session, info, found = c.lookupTabSession(tabID)
	if found {
		return session, info, nil
	}
	return nil, TabInfo{}, newError(CodeTabNotFound, "tab not found: "+tabID, nil)
}

func (c *Client) lookupTabSession(tabID string) (*tabSession, TabInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	targetID, ok := c.tabToTarget[tabID]
	if !ok {
		return nil, TabInfo{}, false
	}
	session := c.tabs[targetID]
	if session == nil {
		return nil, TabInfo{}, false
	}
	return session, session.info, true
}

func (c *Client) evalOnSession(ctx context.Context, session *tabSession, targetID, js string, out any) error {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session, targetID)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("probe eval failed", "target_id", targetID, "error", err)
		// Reset session so a fresh attach happens on retry.
		session.mu.Lock()
		session.sessionID = ""
		session.mu.Unlock()

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession, targetID string) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sessionID, err := cdp.attachToTarget(ctx, targetID)
	if err != nil {
		if isTransientCause(err) {
			return "", newError(CodeCDPUnavailable, "attach to target failed", err)
		}
		return "", newError(CodeEvalFailure, "attach to target failed", err)
	}
	session.sessionID = sessionID
	return sessionID, nil
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncTabsLocked(ctx)
	c.mu.Unlock()
	if err == nil {
		return nil
	}
	return newError(CodeCDPUnavailable, "failed to list targets", err)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return err
	}

	expected := make(map[target.ID]TabInfo)
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if !urlkey.IsVideoURL(t.URL) {
			continue
		}
		expected[t.TargetID] = TabInfo{
			TabID:    shortTabID(string(t.TargetID)),
			TargetID: string(t.TargetID),
			URL:      t.URL,
			Title:    t.Title,
			Attached: t.Attached,
		}
	}

	for targetID := range c.tabs {
		if _, ok := expected[targetID]; ok {
			continue
		}
		delete(c.tabs, targetID)
	}

	for targetID, info := range expected {
		session := c.tabs[targetID]
		if session != nil {
			session.info = info
			continue
		}
		c.tabs[targetID] = &tabSession{info: info}
	}

	c.tabToTarget = make(map[string]target.ID, len(c.tabs))
	for targetID, session := range c.tabs {
		if session == nil {
			continue
		}
		c.tabToTarget[session.info.TabID] = targetID
	}

	// Prune tab locks for tabs no longer present.
	c.tabLocksMu.Lock()
	for id := range c.tabLocks {
		if _, ok := c.tabToTarget[id]; !ok {
			delete(c.tabLocks, id)
		}
	}
	c.tabLocksMu.Unlock()

	slog.Debug("probe tab sync", "targets", len(targets), "video_tabs", len(c.tabToTarget))
	return nil
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) tabLock(tabID string) *sync.Mutex {
	c.tabLocksMu.Lock()
	defer c.tabLocksMu.Unlock()
	m, ok := c.tabLocks[tabID]
	if !ok {
		m = &sync.Mutex{}
		c.tabLocks[tabID] = m
	}
	return m
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeTabNotFound:
		return false
	case CodeEvalFailure:
		return isTransientCause(coded.Cause)
	}
	return false
}

func (c *Client) asCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

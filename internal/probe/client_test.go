package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type fakeTab struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// newFakeCDP serves the minimal CDP surface the probe client uses:
// /json/version, /json/list, and a browser-level WebSocket that answers
// Target.attachToTarget and Runtime.evaluate. evalValue is returned as the
// string result of every evaluation.
func newFakeCDP(t *testing.T, tabs []fakeTab, evalValue string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/browser/fake",
		})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tabs)
	})
	mux.HandleFunc("/devtools/browser/fake", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			t.Errorf("ws.UpgradeHTTP() failed: %v", err)
			return
		}
		go func() {
			defer conn.Close()
			for {
				data, err := wsutil.ReadClientText(conn)
				if err != nil {
					return
				}
				var req struct {
					ID     int64  `json:"id"`
					Method string `json:"method"`
				}
				if json.Unmarshal(data, &req) != nil {
					continue
				}

				var resp string
				switch req.Method {
				case "Target.attachToTarget":
					resp = fmt.Sprintf(`{"id":%d,"result":{"sessionId":"sess-1"}}`, req.ID)
				case "Runtime.evaluate":
					value, _ := json.Marshal(evalValue)
					resp = fmt.Sprintf(`{"id":%d,"result":{"result":{"value":%s}}}`, req.ID, value)
				default:
					resp = fmt.Sprintf(`{"id":%d,"result":{}}`, req.ID)
				}
				if err := wsutil.WriteServerText(conn, []byte(resp)); err != nil {
					return
				}
			}
		}()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestListVideoTabsFiltersNonVideoTargets(t *testing.T) {
	tabs := []fakeTab{
		{ID: "aaaa1111bbbb", Type: "page", Title: "Video A", URL: "https://www.youtube.com/watch?v=abc12345678"},
		{ID: "cccc2222dddd", Type: "page", Title: "Home", URL: "https://www.youtube.com/"},
		{ID: "eeee3333ffff", Type: "page", Title: "News", URL: "https://example.com/article"},
		{ID: "9999aaaa0000", Type: "iframe", Title: "Embed", URL: "https://www.youtube.com/watch?v=def12345678"},
		{ID: "1111bbbb2222", Type: "page", Title: "Short", URL: "https://www.youtube.com/shorts/ghi12345678"},
	}
	srv := newFakeCDP(t, tabs, "")

	c := NewClient(srv.URL, time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	got, err := c.ListVideoTabs(context.Background())
	if err != nil {
		t.Fatalf("ListVideoTabs() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListVideoTabs() returned %d tabs; want 2", len(got))
	}
	for _, tab := range got {
		if tab.TabID == "" || tab.TargetID == "" {
			t.Fatalf("tab missing ids: %+v", tab)
		}
	}
}

func TestProbeTabResolvesMetadata(t *testing.T) {
	payload := `{"ok":true,"data":{"video_id":"abc12345678","title":"Video A","author":"Channel A","length_seconds":600,"media_duration":600.2,"current_time":42.5,"has_structured_data":true}}`
	tabs := []fakeTab{
		{ID: "aaaa1111bbbb", Type: "page", Title: "Video A", URL: "https://www.youtube.com/watch?v=abc12345678"},
	}
	srv := newFakeCDP(t, tabs, payload)

	c := NewClient(srv.URL, time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	res, err := c.ProbeTab(context.Background(), shortTabID("aaaa1111bbbb"))
	if err != nil {
		t.Fatalf("ProbeTab() failed: %v", err)
	}
	if res.VideoID != "abc12345678" || res.Seconds != 600 || res.CurrentTime != 42.5 {
		t.Fatalf("ProbeTab() = %+v", res)
	}
	if !res.HasStructuredData || res.Fallback {
		t.Fatalf("confidence flags wrong: %+v", res)
	}
}

func TestProbeTabUnknownTab(t *testing.T) {
	srv := newFakeCDP(t, nil, "")

	c := NewClient(srv.URL, time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	_, err := c.ProbeTab(context.Background(), "DEADBEEF")
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeTabNotFound {
		t.Fatalf("ProbeTab() error = %v; want %s", err, CodeTabNotFound)
	}
}

func TestProbeTabSurfacesPageError(t *testing.T) {
	envelope := `{"ok":false,"error_code":"EVAL_FAILURE","error_message":"boom"}`
	tabs := []fakeTab{
		{ID: "aaaa1111bbbb", Type: "page", Title: "Video A", URL: "https://www.youtube.com/watch?v=abc12345678"},
	}
	srv := newFakeCDP(t, tabs, envelope)

	c := NewClient(srv.URL, time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	_, err := c.ProbeTab(context.Background(), shortTabID("aaaa1111bbbb"))
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeEvalFailure {
		t.Fatalf("ProbeTab() error = %v; want %s", err, CodeEvalFailure)
	}
}

func TestResolvePayloadPrecedence(t *testing.T) {
	cases := []struct {
		name         string
		payload      metadataPayload
		wantSeconds  int
		wantLive     bool
		wantFallback bool
	}{
		{
			"structured length wins",
			metadataPayload{LengthSeconds: 600, MediaDuration: 598.7, DurationLabel: "9:58", HasStructuredData: true},
			600, false, false,
		},
		{
			"media element second",
			metadataPayload{MediaDuration: 245.3, DurationLabel: "4:05", HasStructuredData: true},
			245, false, true,
		},
		{
			"duration label last",
			metadataPayload{DurationLabel: "4:05"},
			245, false, true,
		},
		{
			"live badge only",
			metadataPayload{BadgeVisible: true},
			0, true, true,
		},
		{
			"length overrides live flag",
			metadataPayload{LengthSeconds: 3600, IsLiveFlag: true, HasStructuredData: true},
			3600, false, false,
		},
		{
			"no data at all",
			metadataPayload{},
			0, false, true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := resolvePayload(tc.payload)
			if res.Seconds != tc.wantSeconds || res.IsLive != tc.wantLive || res.Fallback != tc.wantFallback {
				t.Fatalf("resolvePayload() = %+v; want seconds=%d live=%v fallback=%v",
					res, tc.wantSeconds, tc.wantLive, tc.wantFallback)
			}
		})
	}
}

func TestShortTabID(t *testing.T) {
	if got := shortTabID("b0d5a8e8f00d"); got != "B0D5A8E8" {
		t.Fatalf("shortTabID() = %q; want B0D5A8E8", got)
	}
	if got := shortTabID("ab"); got != "AB" {
		t.Fatalf("shortTabID() = %q; want AB", got)
	}
}

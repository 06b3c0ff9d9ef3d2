package scrape

import "testing"

const watchPageDoc = `<!DOCTYPE html><html><head>
<title>Test Video &amp; More - YouTube</title>
</head><body>
<script>var ytInitialPlayerResponse = {"videoDetails":{"videoId":"abc12345678","title":"Test Video & More","author":"Some Channel","lengthSeconds":"600","isLive":false},"microformat":{"playerMicroformatRenderer":{"liveBroadcastDetails":{}}}};</script>
</body></html>`

func TestExtractFromDocumentStructured(t *testing.T) {
	res := ExtractFromDocument(watchPageDoc)

	if !res.HasStructuredData {
		t.Fatal("HasStructuredData = false; want true")
	}
	if res.Fallback {
		t.Fatal("Fallback = true for structured extraction")
	}
	if res.VideoID != "abc12345678" {
		t.Fatalf("VideoID = %q", res.VideoID)
	}
	if res.Seconds != 600 {
		t.Fatalf("Seconds = %d; want 600", res.Seconds)
	}
	if res.Title != "Test Video & More" {
		t.Fatalf("Title = %q", res.Title)
	}
	if res.ChannelName != "Some Channel" {
		t.Fatalf("ChannelName = %q", res.ChannelName)
	}
	if res.IsLive {
		t.Fatal("IsLive = true; want false")
	}
}

func TestExtractFromDocumentBlobWithNestedBraces(t *testing.T) {
	doc := `<script>var ytInitialPlayerResponse = {"videoDetails":{"videoId":"abc12345678","title":"brace } in \" string {","lengthSeconds":"42"},"extra":{"deep":{"deeper":[{"x":1}]}}};var other = {};</script>`

	res := ExtractFromDocument(doc)
	if res.Seconds != 42 {
		t.Fatalf("Seconds = %d; want 42", res.Seconds)
	}
	if res.Title != `brace } in " string {` {
		t.Fatalf("Title = %q", res.Title)
	}
}

func TestExtractFromDocumentFallbacks(t *testing.T) {
	doc := `<html><head><title>Fallback Video - YouTube</title></head>
<body><script>var cfg = {"approxDurationMs":"183000","ownerChannelName":"Fallback Channel"};</script></body></html>`

	res := ExtractFromDocument(doc)
	if res.HasStructuredData {
		t.Fatal("HasStructuredData = true for heuristic extraction")
	}
	if !res.Fallback {
		t.Fatal("Fallback = false; want true")
	}
	if res.Seconds != 183 {
		t.Fatalf("Seconds = %d; want 183", res.Seconds)
	}
	if res.Title != "Fallback Video" {
		t.Fatalf("Title = %q", res.Title)
	}
	if res.ChannelName != "Fallback Channel" {
		t.Fatalf("ChannelName = %q", res.ChannelName)
	}
}

func TestExtractFromDocumentNoData(t *testing.T) {
	res := ExtractFromDocument("<html><body>nothing here</body></html>")
	if !res.Empty() {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestParsePlayerResponseMalformed(t *testing.T) {
	if _, ok := ParsePlayerResponse([]byte(`{"videoDetails":`)); ok {
		t.Fatal("ParsePlayerResponse accepted truncated JSON")
	}
	if _, ok := ParsePlayerResponse([]byte(`{}`)); ok {
		t.Fatal("ParsePlayerResponse accepted an empty object")
	}
}

func TestLiveStatusPrecedence(t *testing.T) {
	cases := []struct {
		name string
		blob string
		want bool
	}{
		{
			"explicit isLive",
			`{"videoDetails":{"videoId":"v","title":"t","lengthSeconds":"0","isLive":true}}`,
			true,
		},
		{
			"broadcast started without end",
			`{"videoDetails":{"videoId":"v","title":"t","lengthSeconds":"0"},"microformat":{"playerMicroformatRenderer":{"liveBroadcastDetails":{"startTimestamp":"2026-01-01T00:00:00+00:00"}}}}`,
			true,
		},
		{
			"finished broadcast has fixed length",
			`{"videoDetails":{"videoId":"v","title":"t","lengthSeconds":"3600","isLive":true},"microformat":{"playerMicroformatRenderer":{"liveBroadcastDetails":{"startTimestamp":"2026-01-01T00:00:00+00:00"}}}}`,
			false,
		},
		{
			"ended broadcast",
			`{"videoDetails":{"videoId":"v","title":"t","lengthSeconds":"0"},"microformat":{"playerMicroformatRenderer":{"liveBroadcastDetails":{"startTimestamp":"2026-01-01T00:00:00+00:00","endTimestamp":"2026-01-01T01:00:00+00:00"}}}}`,
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, ok := ParsePlayerResponse([]byte(tc.blob))
			if !ok {
				t.Fatal("ParsePlayerResponse failed")
			}
			if res.IsLive != tc.want {
				t.Fatalf("IsLive = %v; want %v", res.IsLive, tc.want)
			}
		})
	}
}

func TestResolveLiveBadgeLastResort(t *testing.T) {
	if !ResolveLive(0, false, false, true) {
		t.Fatal("badge alone should mark live when nothing else is known")
	}
	if ResolveLive(120, false, false, true) {
		t.Fatal("known duration must override the badge")
	}
}

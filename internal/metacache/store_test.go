package metacache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(bound int) *Store {
	s := Open("", bound)
	base := time.UnixMilli(1_700_000_000_000)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func TestMergeKeepsKnownDurationOnZeroRead(t *testing.T) {
	s := newTestStore(10)
	key := "https://www.youtube.com/watch?v=abc12345678"

	s.Merge(key, Metadata{Seconds: 600, Title: "A"})
	got := s.Merge(key, Metadata{Seconds: 0, Title: "A"})

	if got.Seconds != 600 {
		t.Fatalf("Seconds = %d after zero-duration merge; want 600", got.Seconds)
	}
}

func TestMergeLiveResetsDuration(t *testing.T) {
	s := newTestStore(10)
	key := "https://www.youtube.com/watch?v=abc12345678"

	s.Merge(key, Metadata{Seconds: 600, Title: "A"})
	got := s.Merge(key, Metadata{Seconds: 0, Title: "A", IsLive: true})

	if got.Seconds != 0 || !got.IsLive {
		t.Fatalf("merge = {Seconds:%d IsLive:%v}; want {Seconds:0 IsLive:true}", got.Seconds, got.IsLive)
	}
}

func TestMergeOverwritesOtherFieldsUnconditionally(t *testing.T) {
	s := newTestStore(10)
	key := "https://www.youtube.com/watch?v=abc12345678"

	s.Merge(key, Metadata{Seconds: 600, Title: "old", ChannelName: "old channel", CurrentTime: 10})
	got := s.Merge(key, Metadata{Seconds: 0, Title: "new", ChannelName: "new channel", CurrentTime: 90})

	if got.Title != "new" || got.ChannelName != "new channel" || got.CurrentTime != 90 {
		t.Fatalf("merge kept stale fields: %+v", got)
	}
	if got.Seconds != 600 {
		t.Fatalf("Seconds = %d; want preserved 600", got.Seconds)
	}
}

func TestMergeNewEntryAcceptsZeroDuration(t *testing.T) {
	s := newTestStore(10)
	got := s.Merge("https://www.youtube.com/watch?v=abc12345678", Metadata{Title: "A"})
	if got.Seconds != 0 || got.Title != "A" {
		t.Fatalf("first merge = %+v; want zero seconds and title kept", got)
	}
	if got.Timestamp == 0 {
		t.Fatal("merge did not stamp the entry")
	}
}

func TestEvictionBoundAndOldestVictim(t *testing.T) {
	const bound = 5
	s := newTestStore(bound)

	for i := 0; i < bound+1; i++ {
		key := fmt.Sprintf("https://www.youtube.com/watch?v=video%05d", i)
		s.Merge(key, Metadata{Seconds: 100 + i, Title: "t"})
	}

	if s.Len() != bound {
		t.Fatalf("Len() = %d after overflow insert; want %d", s.Len(), bound)
	}
	// The first write carries the smallest timestamp, so it is the victim.
	if _, ok := s.Get("https://www.youtube.com/watch?v=video00000"); ok {
		t.Fatal("oldest entry survived eviction")
	}
	if _, ok := s.Get("https://www.youtube.com/watch?v=video00005"); !ok {
		t.Fatal("newest entry missing after eviction")
	}
}

func TestMergeExistingKeyDoesNotEvict(t *testing.T) {
	const bound = 3
	s := newTestStore(bound)

	for i := 0; i < bound; i++ {
		s.Merge(fmt.Sprintf("https://www.youtube.com/watch?v=video%05d", i), Metadata{Seconds: 10})
	}
	s.Merge("https://www.youtube.com/watch?v=video00000", Metadata{Seconds: 20})

	if s.Len() != bound {
		t.Fatalf("Len() = %d after in-place update; want %d", s.Len(), bound)
	}
}

func TestClearDropsEntriesKeepsPrefs(t *testing.T) {
	s := newTestStore(10)
	s.Merge("https://www.youtube.com/watch?v=abc12345678", Metadata{Seconds: 600})
	s.SetPrefs(Prefs{SortOrder: "duration", SmartSync: true})

	s.Clear()

	if s.Len() != 0 {
		t.Fatalf("Len() = %d after Clear; want 0", s.Len())
	}
	if p := s.Prefs(); p.SortOrder != "duration" || !p.SmartSync {
		t.Fatalf("Prefs() = %+v; want preserved across Clear", p)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	s := Open(path, 10)
	s.Merge("https://www.youtube.com/watch?v=abc12345678", Metadata{Seconds: 600, Title: "A", ChannelName: "Ch"})
	s.SetPrefs(Prefs{LayoutMode: "grid", ExcludedURLs: []string{"https://example.com"}})

	reopened := Open(path, 10)
	got, ok := reopened.Get("https://www.youtube.com/watch?v=abc12345678")
	if !ok {
		t.Fatal("entry missing after reopen")
	}
	if got.Seconds != 600 || got.Title != "A" || got.ChannelName != "Ch" {
		t.Fatalf("reopened entry = %+v", got)
	}
	if p := reopened.Prefs(); p.LayoutMode != "grid" || len(p.ExcludedURLs) != 1 {
		t.Fatalf("reopened prefs = %+v", p)
	}
}

func TestCorruptBlobStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}

	s := Open(path, 10)
	if s.Len() != 0 {
		t.Fatalf("Len() = %d for corrupt blob; want 0", s.Len())
	}

	// The store must still be writable afterwards.
	s.Merge("https://www.youtube.com/watch?v=abc12345678", Metadata{Seconds: 1})
	if s.Len() != 1 {
		t.Fatal("store not writable after corrupt load")
	}
}

func TestShrunkBoundEnforcedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	s := Open(path, 10)
	for i := 0; i < 6; i++ {
		s.Merge(fmt.Sprintf("https://www.youtube.com/watch?v=video%05d", i), Metadata{Seconds: 10})
	}

	reopened := Open(path, 3)
	if reopened.Len() != 3 {
		t.Fatalf("Len() = %d after reopening with bound 3; want 3", reopened.Len())
	}
}

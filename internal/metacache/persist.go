package metacache

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// blob is the on-disk shape: the full entry map plus preference scalars,
// read and written wholesale. The storage substrate offers no partial-field
// transaction, so the whole document is the unit of persistence.
type blob struct {
	Entries map[string]Metadata `json:"entries"`
	Prefs   Prefs               `json:"prefs"`
}

func (s *Store) loadLocked() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("metacache load failed, starting empty", "path", s.path, "error", err)
		}
		return
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		slog.Warn("metacache blob corrupt, starting empty", "path", s.path, "error", err)
		return
	}

	if b.Entries != nil {
		s.entries = b.Entries
	}
	s.prefs = b.Prefs

	// Enforce the bound in case it shrank between runs.
	for len(s.entries) > s.bound {
		over := len(s.entries)
		s.evictOldestLocked()
		if len(s.entries) == over {
			break
		}
	}
	slog.Debug("metacache loaded", "path", s.path, "entries", len(s.entries))
}

// saveLocked writes the blob out after every mutation. Persistence failures
// degrade to an in-memory cache rather than surfacing to callers.
func (s *Store) saveLocked() {
	if s.path == "" {
		return
	}

	data, err := json.MarshalIndent(blob{Entries: s.entries, Prefs: s.prefs}, "", "  ")
	if err != nil {
		slog.Warn("metacache marshal failed", "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		slog.Warn("metacache mkdir failed", "path", s.path, "error", err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Warn("metacache write failed", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		slog.Warn("metacache rename failed", "path", s.path, "error", err)
	}
}

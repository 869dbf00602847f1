// Package snapshot manages per-project scene file snapshots. Snapshots
// live next to the project in .harness_blender/snapshots together with a
// manifest of entries and a cursor file tracking the undo/redo position.
//
// The manifest is shared by every project in the same directory; entries
// are scoped to one project by comparing resolved, case-folded source
// paths. All methods serialize through one mutex, which makes concurrent
// in-process mutation safe; concurrent writers from separate processes
// are not coordinated.
package snapshot

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

// Entry is one manifest record.
type Entry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Snapshot    string `json:"snapshot"`
	CreatedAt   string `json:"createdAt"`
}

// Created describes a snapshot that was just taken.
type Created struct {
	Entry    Entry
	Snapshot string // path as written, before symlink resolution
	Manifest string
}

type Store struct {
	mu sync.Mutex
}

func NewStore() *Store {
	return &Store{}
}

// Snapshot copies project into the snapshot directory, appends a manifest
// entry and moves the cursor to it.
func (s *Store) Snapshot(project, description string) (Created, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(project); err != nil {
		return Created{}, protocol.NewError(protocol.CodeNotFound, "File not found: %s", project)
	}
	dir, err := snapshotDir(project)
	if err != nil {
		return Created{}, err
	}

	id := newSnapshotID()
	base := filepath.Base(project)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	snapFile := filepath.Join(dir, stem+"."+id+".blend")
	if err := copyFile(project, snapFile); err != nil {
		return Created{}, err
	}

	entry := Entry{
		ID:          id,
		Description: description,
		Source:      resolvePath(project),
		Snapshot:    resolvePath(snapFile),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}

	manifest := manifestPath(dir)
	raw := loadRawManifest(manifest)
	encoded, err := json.Marshal(entry)
	if err != nil {
		return Created{}, err
	}
	raw = append(raw, json.RawMessage(encoded))
	if err := writeJSON(manifest, raw); err != nil {
		return Created{}, err
	}

	scoped := filterEntries(raw, project)
	if err := s.saveCursor(dir, len(scoped)-1); err != nil {
		return Created{}, err
	}
	return Created{Entry: entry, Snapshot: snapFile, Manifest: manifest}, nil
}

// Undo restores an earlier snapshot. With snapshotID empty the entry
// before the cursor is used; with an explicit id any entry may be
// restored regardless of cursor position.
func (s *Store) Undo(project, snapshotID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, cursor, err := s.load(project)
	if err != nil {
		return Entry{}, err
	}
	target := cursor - 1
	if snapshotID != "" {
		target = -1
		for i, e := range entries {
			if e.ID == snapshotID {
				target = i
				break
			}
		}
		if target < 0 {
			return Entry{}, protocol.NewError(protocol.CodeInvalidInput, "Snapshot not found: %s", snapshotID)
		}
	}
	if target < 0 {
		return Entry{}, protocol.NewError(protocol.CodeInvalidInput, "No earlier snapshot available")
	}
	return s.restore(project, entries, target)
}

// Redo restores the snapshot after the cursor.
func (s *Store) Redo(project string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, cursor, err := s.load(project)
	if err != nil {
		return Entry{}, err
	}
	target := cursor + 1
	if target >= len(entries) {
		return Entry{}, protocol.NewError(protocol.CodeInvalidInput, "No later snapshot available")
	}
	return s.restore(project, entries, target)
}

// List returns the project's entries oldest-first along with the cursor
// index (-1 when before the first entry).
func (s *Store) List(project string) ([]Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(project); err != nil {
		return nil, -1, protocol.NewError(protocol.CodeNotFound, "File not found: %s", project)
	}
	dir, err := snapshotDir(project)
	if err != nil {
		return nil, -1, err
	}
	entries := filterEntries(loadRawManifest(manifestPath(dir)), project)
	return entries, loadCursor(dir, len(entries)), nil
}

func (s *Store) load(project string) ([]Entry, int, error) {
	if _, err := os.Stat(project); err != nil {
		return nil, -1, protocol.NewError(protocol.CodeNotFound, "File not found: %s", project)
	}
	dir, err := snapshotDir(project)
	if err != nil {
		return nil, -1, err
	}
	entries := filterEntries(loadRawManifest(manifestPath(dir)), project)
	if len(entries) == 0 {
		return nil, -1, protocol.NewError(protocol.CodeNotFound, "No snapshots found for this project")
	}
	return entries, loadCursor(dir, len(entries)), nil
}

func (s *Store) restore(project string, entries []Entry, target int) (Entry, error) {
	entry := entries[target]
	if _, err := os.Stat(entry.Snapshot); err != nil {
		return Entry{}, protocol.NewError(protocol.CodeNotFound, "Snapshot file missing: %s", entry.Snapshot)
	}
	if err := copyFile(entry.Snapshot, project); err != nil {
		return Entry{}, err
	}
	dir, err := snapshotDir(project)
	if err != nil {
		return Entry{}, err
	}
	if err := s.saveCursor(dir, target); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (s *Store) saveCursor(dir string, index int) error {
	return writeJSON(statePath(dir), map[string]int{"currentIndex": index})
}

func snapshotDir(project string) (string, error) {
	dir := filepath.Join(filepath.Dir(project), ".harness_blender", "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func manifestPath(dir string) string { return filepath.Join(dir, "manifest.json") }
func statePath(dir string) string    { return filepath.Join(dir, "state.json") }

// resolvePath makes a path absolute and follows symlinks where possible,
// keeping the original spelling when resolution fails.
func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// normalizePath is the comparison form used for manifest scoping.
// Case folding keeps entries matched across case-insensitive filesystems.
func normalizePath(path string) string {
	return strings.ToLower(resolvePath(path))
}

// loadRawManifest reads the manifest as raw elements so that entries
// belonging to other projects, and even malformed ones, survive a
// read-modify-write untouched. A missing or unreadable manifest is an
// empty one.
func loadRawManifest(path string) []json.RawMessage {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	return raw
}

func filterEntries(raw []json.RawMessage, project string) []Entry {
	wanted := normalizePath(project)
	var out []Entry
	for _, msg := range raw {
		var entry Entry
		if err := json.Unmarshal(msg, &entry); err != nil {
			continue
		}
		if entry.Source == "" {
			continue
		}
		if normalizePath(entry.Source) == wanted {
			out = append(out, entry)
		}
	}
	return out
}

// loadCursor reads the undo position, clamped to [-1, count-1]. Missing
// or unreadable state means the cursor sits on the newest entry.
func loadCursor(dir string, count int) int {
	if count <= 0 {
		return -1
	}
	data, err := os.ReadFile(statePath(dir))
	if err != nil {
		return count - 1
	}
	var state struct {
		CurrentIndex *int `json:"currentIndex"`
	}
	if err := json.Unmarshal(data, &state); err != nil || state.CurrentIndex == nil {
		return count - 1
	}
	idx := *state.CurrentIndex
	if idx < -1 {
		return -1
	}
	if idx > count-1 {
		return count - 1
	}
	return idx
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func newSnapshotID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:12]
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Package checkpoint keeps the content a file had before a run overwrote it, so the
// write can be undone.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kvit-s/kvit-patch/internal/files"
)

// Dir is the checkpoint directory inside the workspace root.
const Dir = ".kvit-patch/checkpoints"

// DefaultKeep is how many checkpoints are kept when the config does not say.
const DefaultKeep = 20

var (
	ErrNoCheckpoint = errors.New("no checkpoint to restore")
	ErrBadRunID     = errors.New("invalid run id")
)

// Manager stores one checkpoint per written run under <root>/.kvit-patch/checkpoints.
type Manager struct {
	mu   sync.Mutex
	root string
	dir  string
	keep int
}

// Entry describes one checkpoint.
type Entry struct {
	RunID     string    `json:"run_id"`
	Path      string    `json:"path"`    // relative to the workspace root
	Existed   bool      `json:"existed"` // false when the run created the file
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
}

// NewManager creates a manager for the workspace at root. keep limits how many
// checkpoints survive; older ones are removed on Save.
func NewManager(root string, keep int) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Manager{
		root: absRoot,
		dir:  filepath.Join(absRoot, filepath.FromSlash(Dir)),
		keep: keep,
	}, nil
}

// Save records the content rel had before run runID wrote it. existed is false
// when the run creates the file.
func (m *Manager) Save(runID, rel, before string, existed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkRunID(runID); err != nil {
		return err
	}

	entryDir := filepath.Join(m.dir, runID)
	if err := os.MkdirAll(entryDir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(entryDir, "content"), []byte(before), 0644); err != nil {
		return fmt.Errorf("failed to save checkpoint content: %w", err)
	}

	entry := Entry{
		RunID:     runID,
		Path:      filepath.ToSlash(rel),
		Existed:   existed,
		CreatedAt: time.Now(),
		Size:      len(before),
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(entryDir, "meta.json"), data, 0644); err != nil {
		return fmt.Errorf("failed to save checkpoint metadata: %w", err)
	}

	return m.prune()
}

// List returns all checkpoints, newest first.
func (m *Manager) List() ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list()
}

func (m *Manager) list() ([]Entry, error) {
	dirEntries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		entry, err := m.load(de.Name())
		if err != nil {
			// Half-written checkpoint from an interrupted run
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].RunID > entries[j].RunID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

func (m *Manager) load(runID string) (Entry, error) {
	var entry Entry
	data, err := os.ReadFile(filepath.Join(m.dir, runID, "meta.json"))
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, err
	}
	// The directory name is authoritative
	entry.RunID = runID
	return entry, nil
}

// checkRunID accepts a single path element, so a run id never leaves the
// checkpoint directory.
func checkRunID(runID string) error {
	if runID == "" || runID == "." || runID == ".." || strings.ContainsAny(runID, `/\`) || filepath.Base(runID) != runID {
		return fmt.Errorf("%w: %q", ErrBadRunID, runID)
	}
	return nil
}

// target resolves the file an entry was saved for inside the workspace.
func (m *Manager) target(entry Entry) (string, error) {
	path, err := files.Resolve(m.root, filepath.FromSlash(entry.Path))
	if err != nil {
		return "", fmt.Errorf("checkpoint %s: %w", entry.RunID, err)
	}
	return path, nil
}

// find returns the checkpoint for runID, or the newest one when runID is empty.
func (m *Manager) find(runID string) (Entry, error) {
	if runID != "" {
		if err := checkRunID(runID); err != nil {
			return Entry{}, err
		}
		entry, err := m.load(runID)
		if errors.Is(err, fs.ErrNotExist) {
			return entry, fmt.Errorf("%w: unknown run %s", ErrNoCheckpoint, runID)
		}
		return entry, err
	}
	entries, err := m.list()
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNoCheckpoint
	}
	return entries[0], nil
}

// Restore puts back the content saved for runID (the newest checkpoint when runID
// is empty) and drops the checkpoint. A file the run created is removed.
func (m *Manager) Restore(runID string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.find(runID)
	if err != nil {
		return entry, err
	}

	target, err := m.target(entry)
	if err != nil {
		return entry, err
	}
	if entry.Existed {
		content, err := os.ReadFile(filepath.Join(m.dir, entry.RunID, "content"))
		if err != nil {
			return entry, fmt.Errorf("failed to read checkpoint content: %w", err)
		}
		if err := files.WriteFileAtomic(target, string(content)); err != nil {
			return entry, fmt.Errorf("failed to restore %s: %w", entry.Path, err)
		}
	} else if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return entry, fmt.Errorf("failed to remove %s: %w", entry.Path, err)
	}

	if err := os.RemoveAll(filepath.Join(m.dir, entry.RunID)); err != nil {
		return entry, fmt.Errorf("restored %s but could not drop the checkpoint: %w", entry.Path, err)
	}
	return entry, nil
}

// Diff returns the unified diff from the file's current content back to the
// checkpoint, i.e. what Restore would change.
func (m *Manager) Diff(runID string, contextLines int) (Entry, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.find(runID)
	if err != nil {
		return entry, "", err
	}

	saved := ""
	if entry.Existed {
		data, err := os.ReadFile(filepath.Join(m.dir, entry.RunID, "content"))
		if err != nil {
			return entry, "", fmt.Errorf("failed to read checkpoint content: %w", err)
		}
		saved = string(data)
	}

	target, err := m.target(entry)
	if err != nil {
		return entry, "", err
	}
	current, err := os.ReadFile(target)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return entry, "", err
	}

	diff, err := files.UnifiedDiff(string(current), saved, entry.Path, contextLines)
	return entry, diff, err
}

// prune removes the oldest checkpoints beyond the keep limit.
func (m *Manager) prune() error {
	entries, err := m.list()
	if err != nil {
		return err
	}
	for i := m.keep; i < len(entries); i++ {
		if err := os.RemoveAll(filepath.Join(m.dir, entries[i].RunID)); err != nil {
			return fmt.Errorf("failed to prune checkpoint %s: %w", entries[i].RunID, err)
		}
	}
	return nil
}

// Cleanup removes every checkpoint.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return os.RemoveAll(m.dir)
}

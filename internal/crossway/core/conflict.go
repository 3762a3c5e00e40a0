package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/autopeer-io/crossway/pkg/log"
)

// ConflictChecker answers whether two lanes cross.
type ConflictChecker interface {
	Conflicts(a, b LaneSpec) bool
}

// ConflictTable is a symmetric relation over lanes. A lane always conflicts
// with itself. It is safe for concurrent use and can be swapped in place.
type ConflictTable struct {
	mu    sync.RWMutex
	pairs map[[2]LaneSpec]struct{}
}

var _ ConflictChecker = (*ConflictTable)(nil)

// NewConflictTable builds a table from an adjacency list. Entries need only
// be listed in one direction.
func NewConflictTable(conflicts map[LaneSpec][]LaneSpec) *ConflictTable {
	t := &ConflictTable{}
	t.pairs = buildPairs(conflicts)
	return t
}

func buildPairs(conflicts map[LaneSpec][]LaneSpec) map[[2]LaneSpec]struct{} {
	pairs := make(map[[2]LaneSpec]struct{}, len(conflicts)*4)
	for a, bs := range conflicts {
		for _, b := range bs {
			pairs[[2]LaneSpec{a, b}] = struct{}{}
			pairs[[2]LaneSpec{b, a}] = struct{}{}
		}
	}
	return pairs
}

func (t *ConflictTable) Conflicts(a, b LaneSpec) bool {
	if a == b {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.pairs[[2]LaneSpec{a, b}]
	return ok
}

// Len returns the number of unordered conflicting pairs.
func (t *ConflictTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pairs) / 2
}

// Replace swaps in the relation held by other.
func (t *ConflictTable) Replace(other *ConflictTable) {
	other.mu.RLock()
	pairs := other.pairs
	other.mu.RUnlock()

	t.mu.Lock()
	t.pairs = pairs
	t.mu.Unlock()
}

type conflictFile struct {
	Conflicts []struct {
		Lane LaneSpec   `yaml:"lane"`
		With []LaneSpec `yaml:"with"`
	} `yaml:"conflicts"`
}

// ParseConflictTable decodes the YAML form:
//
//	conflicts:
//	  - lane: {entry: 0, exit: 0}
//	    with:
//	      - {entry: 1, exit: 1}
func ParseConflictTable(data []byte) (*ConflictTable, error) {
	var f conflictFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode conflict table: %w", err)
	}
	adj := make(map[LaneSpec][]LaneSpec, len(f.Conflicts))
	for _, c := range f.Conflicts {
		adj[c.Lane] = append(adj[c.Lane], c.With...)
	}
	return NewConflictTable(adj), nil
}

// LoadConflictTable reads a table from path, or returns the built-in
// four-way table when path is empty.
func LoadConflictTable(path string) (*ConflictTable, error) {
	if path == "" {
		return FourWayConflictTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conflict table: %w", err)
	}
	return ParseConflictTable(data)
}

// WatchConflictFile reloads t whenever the file at path changes, until ctx is
// done. A file that fails to parse leaves t untouched.
func WatchConflictFile(ctx context.Context, path string, t *ConflictTable, logger log.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors and config management replace files by rename.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			next, err := LoadConflictTable(path)
			if err != nil {
				logger.Error(err, "Keeping previous conflict table", "path", path)
				continue
			}
			t.Replace(next)
			logger.Info("Conflict table reloaded", "path", path, "pairs", t.Len())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error(err, "Conflict table watcher error", "path", path)
		}
	}
}

package documents

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/aditya/vertview/pkg/watcher"
)

// TrackedDocument is one open document. Path is the table key and changes on re-key;
// Handle stays the same for the document's whole lifetime.
type TrackedDocument struct {
	Path          string
	Handle        Document
	Label         string
	Fingerprint   watcher.Fingerprint
	LastActivated int64
}

// Snapshot is a read-only copy of a TrackedDocument for callers outside the owning loop.
type Snapshot struct {
	Path          string `json:"path"`
	Label         string `json:"label"`
	PageCount     int    `json:"page_count"`
	LastActivated int64  `json:"last_activated"`
}

// Table owns the tracked documents and their handles. Every handle is closed exactly
// once, when its entry is removed.
//
// Table is not safe for concurrent use; it is owned by the reconciliation loop.
type Table struct {
	docs map[string]*TrackedDocument
	seq  int64
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{docs: make(map[string]*TrackedDocument)}
}

// Add tracks handle under path and marks it most recently activated.
func (t *Table) Add(path string, handle Document) (*TrackedDocument, error) {
	path = filepath.Clean(path)
	if _, exists := t.docs[path]; exists {
		return nil, fmt.Errorf("adding %s: %w", path, ErrAlreadyTracked)
	}

	td := &TrackedDocument{
		Path:          path,
		Handle:        handle,
		Label:         Label(handle, path),
		LastActivated: t.nextSequence(),
	}
	if fp, ok := watcher.Compute(path); ok {
		td.Fingerprint = fp
	}
	t.docs[path] = td
	return td, nil
}

// Get returns the document tracked under path.
func (t *Table) Get(path string) (*TrackedDocument, bool) {
	td, ok := t.docs[filepath.Clean(path)]
	return td, ok
}

// Has reports whether path is tracked.
func (t *Table) Has(path string) bool {
	_, ok := t.docs[filepath.Clean(path)]
	return ok
}

// Remove untracks path and closes its handle.
func (t *Table) Remove(path string) error {
	path = filepath.Clean(path)
	td, ok := t.docs[path]
	if !ok {
		return fmt.Errorf("removing %s: %w", path, ErrNotTracked)
	}
	delete(t.docs, path)

	if td.Handle == nil {
		return nil
	}
	if err := td.Handle.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

// Rekey moves a tracked document from oldPath to newPath without touching its handle.
func (t *Table) Rekey(oldPath, newPath string) (*TrackedDocument, error) {
	oldPath, newPath = filepath.Clean(oldPath), filepath.Clean(newPath)
	td, ok := t.docs[oldPath]
	if !ok {
		return nil, fmt.Errorf("rekeying %s: %w", oldPath, ErrNotTracked)
	}
	if oldPath == newPath {
		return td, nil
	}
	if _, exists := t.docs[newPath]; exists {
		return nil, fmt.Errorf("rekeying to %s: %w", newPath, ErrAlreadyTracked)
	}

	delete(t.docs, oldPath)
	td.Path = newPath
	td.Label = Label(td.Handle, newPath)
	t.docs[newPath] = td
	return td, nil
}

// Activate marks path as the most recently used document.
func (t *Table) Activate(path string) bool {
	td, ok := t.docs[filepath.Clean(path)]
	if !ok {
		return false
	}
	td.LastActivated = t.nextSequence()
	return true
}

// InDirectory returns the tracked paths whose parent is dir, sorted.
func (t *Table) InDirectory(dir string) []string {
	dir = filepath.Clean(dir)
	var paths []string
	for path := range t.docs {
		if filepath.Dir(path) == dir {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Paths returns all tracked paths, sorted.
func (t *Table) Paths() []string {
	paths := make([]string, 0, len(t.docs))
	for path := range t.docs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Snapshot returns copies of all entries, most recently activated first.
func (t *Table) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(t.docs))
	for _, td := range t.docs {
		pages := 0
		if td.Handle != nil {
			pages = td.Handle.PageCount()
		}
		out = append(out, Snapshot{
			Path:          td.Path,
			Label:         td.Label,
			PageCount:     pages,
			LastActivated: td.LastActivated,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivated > out[j].LastActivated
	})
	return out
}

// Len returns the number of tracked documents.
func (t *Table) Len() int {
	return len(t.docs)
}

func (t *Table) nextSequence() int64 {
	t.seq++
	return t.seq
}

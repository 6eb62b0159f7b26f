package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const defaultEventBuffer = 64

// EventKind distinguishes a change on a watched file from a change inside a watched directory.
type EventKind int

const (
	// FileChanged reports that a watched file was written, removed, or renamed.
	FileChanged EventKind = iota
	// DirectoryChanged reports that an entry of a watched directory changed.
	DirectoryChanged
)

// String returns a human-readable representation of the kind.
func (k EventKind) String() string {
	switch k {
	case FileChanged:
		return "file"
	case DirectoryChanged:
		return "directory"
	default:
		return "unknown"
	}
}

// Event is a path-changed notification. For DirectoryChanged, Path is the directory.
type Event struct {
	Path string
	Kind EventKind
}

// Config holds configuration for the FileWatcher.
type Config struct {
	Logger      *logrus.Logger
	EventBuffer int
}

// FileWatcher is the fsnotify-backed Native implementation. It remembers whether each
// registered path is a file or a directory so raw events can be classified.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	logger  *logrus.Logger

	mu    sync.RWMutex
	files map[string]struct{}
	dirs  map[string]struct{}

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	runMu   sync.Mutex
	running bool
	stopped bool
}

// NewFileWatcher creates a new file system watcher. Start must be called before events flow.
func NewFileWatcher(cfg Config) (*FileWatcher, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &FileWatcher{
		watcher: w,
		logger:  cfg.Logger,
		files:   make(map[string]struct{}),
		dirs:    make(map[string]struct{}),
		events:  make(chan Event, cfg.EventBuffer),
		errors:  make(chan error, 8),
		done:    make(chan struct{}),
	}, nil
}

// AddPath registers a native watch on a file or directory.
func (fw *FileWatcher) AddPath(path string) error {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	if err := fw.watcher.Add(path); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if info.IsDir() {
		fw.dirs[path] = struct{}{}
	} else {
		fw.files[path] = struct{}{}
	}
	return nil
}

// RemovePath drops a native watch. The kernel may already have dropped it for a deleted file.
func (fw *FileWatcher) RemovePath(path string) error {
	path = filepath.Clean(path)

	fw.mu.Lock()
	delete(fw.files, path)
	delete(fw.dirs, path)
	fw.mu.Unlock()

	if err := fw.watcher.Remove(path); err != nil {
		return fmt.Errorf("unwatching %s: %w", path, err)
	}
	return nil
}

// Start begins translating fsnotify events.
func (fw *FileWatcher) Start() error {
	fw.runMu.Lock()
	defer fw.runMu.Unlock()
	if fw.running || fw.stopped {
		return fmt.Errorf("watcher already started")
	}
	fw.running = true

	fw.wg.Add(1)
	go fw.processEvents()

	fw.logger.Debug("🔍 File watcher started")
	return nil
}

// Stop closes the underlying watcher and waits for the event loop. Events and Errors are closed afterwards.
func (fw *FileWatcher) Stop() error {
	fw.runMu.Lock()
	if fw.stopped {
		fw.runMu.Unlock()
		return nil
	}
	fw.stopped = true
	wasRunning := fw.running
	fw.running = false
	fw.runMu.Unlock()

	close(fw.done)
	err := fw.watcher.Close()
	if wasRunning {
		fw.wg.Wait()
	}
	close(fw.events)
	close(fw.errors)

	if err != nil {
		return fmt.Errorf("closing file watcher: %w", err)
	}
	return nil
}

// Events returns the classified change notifications.
func (fw *FileWatcher) Events() <-chan Event {
	return fw.events
}

// Errors returns errors reported by the native facility.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			for _, ev := range fw.classify(event) {
				select {
				case fw.events <- ev:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			default:
				fw.logger.WithError(err).Warn("File watcher error dropped")
			}
		}
	}
}

// classify maps one fsnotify event onto file- and directory-level notifications.
// A single event can yield both when the file and its parent are watched.
func (fw *FileWatcher) classify(event fsnotify.Event) []Event {
	if event.Op == fsnotify.Chmod {
		return nil
	}

	name := filepath.Clean(event.Name)
	parent := filepath.Dir(name)

	fw.mu.RLock()
	defer fw.mu.RUnlock()

	var out []Event
	if _, ok := fw.files[name]; ok {
		out = append(out, Event{Path: name, Kind: FileChanged})
	}
	if _, ok := fw.dirs[parent]; ok {
		out = append(out, Event{Path: parent, Kind: DirectoryChanged})
	}
	if _, ok := fw.dirs[name]; ok {
		out = append(out, Event{Path: name, Kind: DirectoryChanged})
	}
	return out
}

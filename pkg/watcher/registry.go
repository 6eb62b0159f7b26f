package watcher

import (
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
)

// Native is the OS-level watch facility. Implementations may fail; Registry never propagates those failures.
type Native interface {
	AddPath(path string) error
	RemovePath(path string) error
}

// FailureRecorder is notified when a native watch cannot be registered.
type FailureRecorder interface {
	IncrementWatchFailures()
}

// Registry is reference-counted bookkeeping over file and directory watches, so that
// several documents living in one directory register that directory exactly once.
//
// Registry is not safe for concurrent use; it is owned by the reconciliation loop.
type Registry struct {
	native   Native
	files    map[string]struct{}
	dirs     map[string]int
	logger   *logrus.Logger
	failures FailureRecorder
}

// NewRegistry creates a registry over the given native watcher.
func NewRegistry(native Native, logger *logrus.Logger, failures FailureRecorder) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		native:   native,
		files:    make(map[string]struct{}),
		dirs:     make(map[string]int),
		logger:   logger,
		failures: failures,
	}
}

// AddWatch watches path and its parent directory. Adding an already-watched path is a no-op.
func (r *Registry) AddWatch(path string) {
	path = filepath.Clean(path)
	if _, ok := r.files[path]; ok {
		return
	}
	r.addNative(path)
	r.files[path] = struct{}{}

	dir := filepath.Dir(path)
	count := r.dirs[dir]
	if count == 0 {
		r.addNative(dir)
	}
	r.dirs[dir] = count + 1
}

// RemoveWatch is the inverse of AddWatch. Removing an unwatched path is a no-op.
func (r *Registry) RemoveWatch(path string) {
	path = filepath.Clean(path)
	if _, ok := r.files[path]; !ok {
		return
	}
	r.removeNative(path)
	delete(r.files, path)

	dir := filepath.Dir(path)
	count, ok := r.dirs[dir]
	if !ok {
		return
	}
	if count <= 1 {
		delete(r.dirs, dir)
		r.removeNative(dir)
		return
	}
	r.dirs[dir] = count - 1
}

// Refresh re-registers the native file watch for an already-watched path. Editors that
// save by replacing the file leave the old inode watch dangling.
func (r *Registry) Refresh(path string) {
	path = filepath.Clean(path)
	if _, ok := r.files[path]; !ok {
		return
	}
	r.addNative(path)
}

// IsWatched reports whether path has a file-level watch.
func (r *Registry) IsWatched(path string) bool {
	_, ok := r.files[filepath.Clean(path)]
	return ok
}

// DirRefCount returns how many watched files live in dir.
func (r *Registry) DirRefCount(dir string) int {
	return r.dirs[filepath.Clean(dir)]
}

// Counts returns the number of watched files and directories.
func (r *Registry) Counts() (files, dirs int) {
	return len(r.files), len(r.dirs)
}

// WatchedDirs returns the watched directories in sorted order.
func (r *Registry) WatchedDirs() []string {
	dirs := make([]string, 0, len(r.dirs))
	for dir := range r.dirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

func (r *Registry) addNative(path string) {
	if r.native == nil {
		return
	}
	if err := r.native.AddPath(path); err != nil {
		r.logger.WithError(err).WithField("path", path).Warn("Native watch unavailable, rename recovery disabled for path")
		if r.failures != nil {
			r.failures.IncrementWatchFailures()
		}
	}
}

func (r *Registry) removeNative(path string) {
	if r.native == nil {
		return
	}
	if err := r.native.RemovePath(path); err != nil {
		r.logger.WithError(err).WithField("path", path).Debug("Failed to remove native watch")
	}
}

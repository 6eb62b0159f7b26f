// Package documents tracks open document handles keyed by their normalized on-disk path.
package documents

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrAlreadyTracked is returned when a path already has a tracked document.
	ErrAlreadyTracked = errors.New("document already tracked")
	// ErrNotTracked is returned when no document is tracked under a path.
	ErrNotTracked = errors.New("document not tracked")
	// ErrNotDocument is returned by an Opener when the file is not a supported document.
	ErrNotDocument = errors.New("not a supported document")
)

// Document is an opened document handle. The table never inspects content.
type Document interface {
	PageCount() int
	Title() string
	Close() error
}

// Opener opens a document at path.
type Opener interface {
	Open(path string) (Document, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Document, error)

// Open calls f(path).
func (f OpenerFunc) Open(path string) (Document, error) {
	return f(path)
}

// Label returns the document's title when it has one, otherwise the file's base name.
func Label(doc Document, path string) string {
	if doc != nil {
		if title := strings.TrimSpace(doc.Title()); title != "" {
			return title
		}
	}
	return filepath.Base(path)
}

// NormalizePath returns an absolute, clean path with symlinks resolved when the path exists.
func NormalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	// A missing file can still live in a symlinked directory.
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs))
	}
	return abs
}

// ExpandUser replaces a leading "~" with the current user's home directory.
func ExpandUser(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

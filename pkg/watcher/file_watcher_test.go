package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "file", FileChanged.String())
	assert.Equal(t, "directory", DirectoryChanged.String())
	assert.Equal(t, "unknown", EventKind(9).String())
}

func newStartedWatcher(t *testing.T) *FileWatcher {
	t.Helper()
	fw, err := NewFileWatcher(Config{Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, fw.Start())
	t.Cleanup(func() { fw.Stop() })
	return fw
}

// waitFor drains events until one matches or the deadline passes.
func waitFor(t *testing.T, fw *FileWatcher, want Event) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-fw.Events():
			require.True(t, ok, "events channel closed")
			if ev == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v event on %s", want.Kind, want.Path)
		}
	}
}

func TestFileWatcher_DirectoryEventOnRename(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(a, []byte("x"), 0644))

	fw := newStartedWatcher(t)
	require.NoError(t, fw.AddPath(dir))

	require.NoError(t, os.Rename(a, filepath.Join(dir, "b.pdf")))
	waitFor(t, fw, Event{Path: filepath.Clean(dir), Kind: DirectoryChanged})
}

func TestFileWatcher_FileEventOnWrite(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(a, []byte("x"), 0644))

	fw := newStartedWatcher(t)
	require.NoError(t, fw.AddPath(a))

	require.NoError(t, os.WriteFile(a, []byte("changed"), 0644))
	waitFor(t, fw, Event{Path: filepath.Clean(a), Kind: FileChanged})
}

func TestFileWatcher_AddMissingPathFails(t *testing.T) {
	fw := newStartedWatcher(t)
	err := fw.AddPath(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestFileWatcher_RemovePath(t *testing.T) {
	dir := t.TempDir()
	fw := newStartedWatcher(t)
	require.NoError(t, fw.AddPath(dir))
	require.NoError(t, fw.RemovePath(dir))
	assert.Error(t, fw.RemovePath(dir), "removing twice reports the native error")
}

func TestFileWatcher_StartStop(t *testing.T) {
	fw, err := NewFileWatcher(Config{})
	require.NoError(t, err)

	require.NoError(t, fw.Start())
	assert.Error(t, fw.Start())

	require.NoError(t, fw.Stop())
	require.NoError(t, fw.Stop())

	_, ok := <-fw.Events()
	assert.False(t, ok)
	_, ok = <-fw.Errors()
	assert.False(t, ok)
}

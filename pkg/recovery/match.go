package recovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aditya/vertview/pkg/watcher"
)

// FindMatch searches dir for a file that is likely the renamed target.
//
// Only files sharing exclude's extension (case-insensitive) are considered. The first
// inode+device match wins immediately. Otherwise the size+mtime candidate with the
// smallest mtime difference wins, ties going to the earlier name in listing order.
// An empty result with a nil error means no candidate qualified.
func FindMatch(dir string, target watcher.Fingerprint, exclude string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", dir, err)
	}

	ext := strings.ToLower(filepath.Ext(exclude))
	exclude = filepath.Clean(exclude)

	var (
		fallback      string
		fallbackDelta time.Duration
	)
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ext {
			continue
		}
		candidate := filepath.Join(dir, entry.Name())
		if candidate == exclude {
			continue
		}

		fp, ok := watcher.Compute(candidate)
		if !ok {
			continue
		}
		if target.StrongMatch(fp) {
			return candidate, nil
		}
		if target.WeakMatch(fp) {
			delta := target.MtimeDelta(fp)
			if fallback == "" || delta < fallbackDelta {
				fallback, fallbackDelta = candidate, delta
			}
		}
	}
	return fallback, nil
}

//go:build !(linux || darwin || freebsd || netbsd || openbsd || windows)

package watcher

import (
	"fmt"
	"os"
)

func statFingerprint(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	if info.IsDir() {
		return Fingerprint{}, fmt.Errorf("stat %s: is a directory", path)
	}
	return fromFileInfo(info), nil
}

//go:build linux || darwin || freebsd || netbsd || openbsd

package watcher

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func statFingerprint(path string) (Fingerprint, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		return Fingerprint{}, fmt.Errorf("stat %s: is a directory", path)
	}

	return Fingerprint{
		Device:     uint64(st.Dev),
		Inode:      uint64(st.Ino),
		Size:       int64(st.Size),
		MtimeNanos: st.Mtim.Nano(),
	}, nil
}

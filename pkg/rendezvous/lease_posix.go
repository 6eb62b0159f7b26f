//go:build linux || darwin || freebsd || netbsd || openbsd

package rendezvous

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lease is an advisory lock held by the primary for as long as it runs. The kernel drops
// it when the process dies, which is what marks a leftover socket as stale.
type lease struct {
	f *os.File
}

func acquireLease(path string) (*lease, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lease %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, ErrPrimaryRunning
	}
	return &lease{f: f}, nil
}

func (l *lease) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

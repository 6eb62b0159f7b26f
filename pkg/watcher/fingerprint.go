// Package watcher provides file identity and change-notification bookkeeping for open documents.
package watcher

import (
	"os"
	"time"
)

// MtimeTolerance absorbs timestamp truncation when a file is copied or moved across filesystems.
const MtimeTolerance = time.Millisecond

// Fingerprint is the stat-derived identity of a file, used to recognize it after a rename.
type Fingerprint struct {
	Device     uint64
	Inode      uint64 // zero when the platform does not expose one
	Size       int64
	MtimeNanos int64
}

// Compute stats path and returns its fingerprint. The second result is false when the
// path cannot be stat'ed or is a directory; absence is an expected outcome, not a fault.
func Compute(path string) (Fingerprint, bool) {
	fp, err := statFingerprint(path)
	if err != nil {
		return Fingerprint{}, false
	}
	return fp, true
}

// IsZero reports whether f carries no identity at all.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// StrongMatch reports whether both fingerprints name the same inode on the same device.
func (f Fingerprint) StrongMatch(other Fingerprint) bool {
	if f.Inode == 0 || other.Inode == 0 || f.Device == 0 || other.Device == 0 {
		return false
	}
	return f.Inode == other.Inode && f.Device == other.Device
}

// WeakMatch reports whether sizes are equal and modification times agree within MtimeTolerance.
func (f Fingerprint) WeakMatch(other Fingerprint) bool {
	if f.Size != other.Size {
		return false
	}
	return f.MtimeDelta(other) <= MtimeTolerance
}

// Matches applies the strong rule first and falls back to the weak one.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f.StrongMatch(other) || f.WeakMatch(other)
}

// MtimeDelta returns the absolute modification-time difference.
func (f Fingerprint) MtimeDelta(other Fingerprint) time.Duration {
	d := f.MtimeNanos - other.MtimeNanos
	if d < 0 {
		d = -d
	}
	return time.Duration(d)
}

// fromFileInfo fills the portable fields; identity fields are left for the platform code.
func fromFileInfo(info os.FileInfo) Fingerprint {
	return Fingerprint{
		Size:       info.Size(),
		MtimeNanos: info.ModTime().UnixNano(),
	}
}

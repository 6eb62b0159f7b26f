//go:build windows

package watcher

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// statFingerprint uses the NTFS file index as the inode and the volume serial as the device.
// When the handle cannot be opened the identity fields stay zero and only size+mtime remain.
func statFingerprint(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	if info.IsDir() {
		return Fingerprint{}, fmt.Errorf("stat %s: is a directory", path)
	}
	fp := fromFileInfo(info)

	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return fp, nil
	}
	handle, err := windows.CreateFile(
		pathPtr,
		0, // query only
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return fp, nil
	}
	defer windows.CloseHandle(handle)

	var data windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(handle, &data); err != nil {
		return fp, nil
	}

	fp.Inode = uint64(data.FileIndexHigh)<<32 | uint64(data.FileIndexLow)
	fp.Device = uint64(data.VolumeSerialNumber)
	return fp, nil
}

//go:build linux

package engine

import (
	"time"

	"golang.org/x/sys/unix"
)

// setFileTimes sets mtime on an open file descriptor, leaving atime
// untouched.
func setFileTimes(rawFd int, fdPath string, modTime time.Time) error {
	times := []unix.Timespec{
		{Nsec: unix.UTIME_OMIT},
		unix.NsecToTimespec(modTime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(rawFd, "", times, unix.AT_EMPTY_PATH); err != nil {
		// Fallback: some systems don't support AT_EMPTY_PATH.
		return unix.UtimesNanoAt(unix.AT_FDCWD, fdPath, times, 0)
	}
	return nil
}

//go:build darwin

package engine

import (
	"time"

	"golang.org/x/sys/unix"
)

// setFileTimes sets mtime on a file by path. Darwin lacks UTIME_OMIT and
// AT_EMPTY_PATH, so atime is set alongside mtime via path-based utimensat.
func setFileTimes(_ int, fdPath string, modTime time.Time) error {
	ts := unix.NsecToTimespec(modTime.UnixNano())
	times := []unix.Timespec{ts, ts}
	return unix.UtimesNanoAt(unix.AT_FDCWD, fdPath, times, 0)
}

//go:build linux

package fileutil

import (
	"time"

	"golang.org/x/sys/unix"
)

// CreatedTime returns the birth time of path. Filesystems without btime
// support report the inode change time instead.
func CreatedTime(path string) (time.Time, error) {
	var stx unix.Statx_t
	mask := uint32(unix.STATX_BTIME | unix.STATX_CTIME)
	if err := unix.Statx(unix.AT_FDCWD, path, unix.AT_STATX_SYNC_AS_STAT, int(mask), &stx); err != nil {
		return time.Time{}, err
	}
	if stx.Mask&unix.STATX_BTIME != 0 && stx.Btime.Sec != 0 {
		return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), nil
	}
	return time.Unix(stx.Ctime.Sec, int64(stx.Ctime.Nsec)), nil
}

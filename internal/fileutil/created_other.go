//go:build !linux

package fileutil

import (
	"os"
	"time"
)

// CreatedTime falls back to the modification time where statx is unavailable.
func CreatedTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

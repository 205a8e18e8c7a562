// Package fileutil holds the small filesystem primitives shared by the frame
// sink, render orchestrator and sweeper: atomic publication and directory
// metadata.
package fileutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// syncFile is replaced in tests.
var syncFile = func(f *os.File) error { return f.Sync() }

// WriteFileAtomic streams r into dir/name through a temp file in the same
// directory, fsyncing it before the rename. Readers observe either the
// previous file or the complete new one.
func WriteFileAtomic(dir, name string, r io.Reader, mode os.FileMode) (int64, error) {
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	written, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return written, err
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return written, err
	}
	if err := syncFile(tmp); err != nil {
		cleanup()
		return written, fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return written, err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmpPath)
		return written, err
	}
	return written, nil
}

// Publish fsyncs src and renames it to dst, then syncs the parent directory so
// the rename survives a crash.
func Publish(src, dst string) error {
	f, err := os.OpenFile(src, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %s: %w", src, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", src, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(src), err)
	}
	return syncDir(filepath.Dir(dst))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}

// DirSize sums the sizes of regular files below path, ignoring entries that
// vanish mid-walk.
func DirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}

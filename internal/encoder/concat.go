package encoder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// writeConcatList writes an ffconcat script listing frames with a fixed
// per-frame duration. The last frame is repeated because the demuxer ignores
// the final duration directive otherwise.
func writeConcatList(path string, frames []string, fps float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	duration := strconv.FormatFloat(1/fps, 'f', 6, 64)

	fmt.Fprintln(w, "ffconcat version 1.0")
	for _, frame := range frames {
		fmt.Fprintf(w, "file %s\nduration %s\n", quoteConcatPath(frame), duration)
	}
	fmt.Fprintf(w, "file %s\n", quoteConcatPath(frames[len(frames)-1]))

	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func quoteConcatPath(name string) string {
	name = filepath.ToSlash(name)
	return "'" + strings.ReplaceAll(name, "'", `'\''`) + "'"
}

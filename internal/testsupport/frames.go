package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// PNGSignature prefixes every generated frame so content sniffing treats it
// as a raw PNG body.
var PNGSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Frame returns a small PNG-signed payload unique to index.
func Frame(index int) []byte {
	return append(append([]byte(nil), PNGSignature...), fmt.Sprintf("frame-%d", index)...)
}

// WriteFrames stores n frames named 0.png..n-1.png in dir.
func WriteFrames(t testing.TB, dir string, n int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%d.png", i))
		if err := os.WriteFile(path, Frame(i), 0o644); err != nil {
			t.Fatalf("write frame %s: %v", path, err)
		}
	}
}

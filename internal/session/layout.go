package session

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"canvascapture/internal/services"
)

const (
	// IDBytes is the amount of entropy behind every session id.
	IDBytes = 24
	// IDLength is the hex-encoded length of a session id.
	IDLength = IDBytes * 2

	// ArtifactName is the published video inside a session directory.
	ArtifactName = "canvas.mp4"
	// PartialName is the encoder output before publication.
	PartialName = ".canvas.mp4.partial"
)

// Validate reports whether id is a well-formed session identifier. Only
// lowercase hex of exactly IDLength characters passes, which also rules out
// path separators and dot segments.
func Validate(id string) error {
	if len(id) != IDLength {
		return services.Wrap(services.ErrValidation, "session", "validate id",
			fmt.Sprintf("expected %d characters, got %d", IDLength, len(id)), nil)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return services.Wrap(services.ErrValidation, "session", "validate id",
				"id must be lowercase hex", nil)
		}
	}
	return nil
}

func encodeID(raw []byte) string {
	return hex.EncodeToString(raw)
}

// Dir returns the directory of id below root. Callers validate id first.
func Dir(root, id string) string {
	return filepath.Join(root, id)
}

// ArtifactPath returns the published video path for id.
func ArtifactPath(root, id string) string {
	return filepath.Join(root, id, ArtifactName)
}

// PartialPath returns the in-progress encoder output path for id.
func PartialPath(root, id string) string {
	return filepath.Join(root, id, PartialName)
}

// FrameName returns the file name a frame of the given index is stored under.
func FrameName(index int) string {
	return strconv.Itoa(index) + frameExt
}

// ParseFrameName extracts the index from a frame file name. Temp files,
// the concat list and the artifact never parse.
func ParseFrameName(name string) (int, bool) {
	digits, ok := strings.CutSuffix(name, frameExt)
	if !ok || digits == "" {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return index, true
}

const frameExt = ".png"

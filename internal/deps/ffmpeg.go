package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

const probeTimeout = 5 * time.Second

// CheckFFmpeg resolves binary, records its version line, and confirms the
// configured video codec is compiled in.
func CheckFFmpeg(ctx context.Context, binary, codec string) Status {
	status := CheckBinaries([]Requirement{{
		Name:        "FFmpeg",
		Command:     binary,
		Description: "Required for rendering canvas.mp4",
	}})[0]
	if !status.Available {
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := commandContext(probeCtx, status.Command, "-hide_banner", "-version").Output() //nolint:gosec
	if err != nil {
		status.Available = false
		status.Detail = fmt.Sprintf("version probe failed: %v", err)
		return status
	}
	status.Version = firstLine(out)

	codec = strings.TrimSpace(codec)
	if codec == "" {
		return status
	}
	out, err = commandContext(probeCtx, status.Command, "-hide_banner", "-encoders").Output() //nolint:gosec
	if err != nil {
		status.Detail = fmt.Sprintf("encoder probe failed: %v", err)
		return status
	}
	if !hasEncoder(out, codec) {
		status.Available = false
		status.Detail = fmt.Sprintf("encoder %q not available in this build", codec)
	}
	return status
}

func firstLine(out []byte) string {
	line, _, _ := bytes.Cut(bytes.TrimSpace(out), []byte("\n"))
	return strings.TrimSpace(string(line))
}

// hasEncoder scans `ffmpeg -encoders` output, whose rows look like
// " V....D libx264              libx264 H.264 ...".
func hasEncoder(out []byte, codec string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == codec {
			return true
		}
	}
	return false
}

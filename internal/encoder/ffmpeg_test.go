package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"canvascapture/internal/services"
)

func TestNewFFmpegOptions(t *testing.T) {
	f := NewFFmpeg(WithBinary("/opt/ffmpeg"), WithVideoCodec("libx265"), WithPixelFormat("yuv444p"), WithBinary("  "))
	if f.Binary() != "/opt/ffmpeg" {
		t.Fatalf("expected binary override, got %q", f.binary)
	}
	if f.videoCodec != "libx265" || f.pixelFormat != "yuv444p" {
		t.Fatalf("unexpected codec settings: %+v", f)
	}
}

func TestEncodeValidatesJob(t *testing.T) {
	f := NewFFmpeg()
	dir := t.TempDir()
	tests := []Job{
		{Dir: "", Frames: []string{"0.png"}, FPS: 30, Output: "out.mp4"},
		{Dir: dir, Frames: nil, FPS: 30, Output: "out.mp4"},
		{Dir: dir, Frames: []string{"0.png"}, FPS: 0, Output: "out.mp4"},
		{Dir: dir, Frames: []string{"0.png"}, FPS: 30, Output: ""},
	}
	for i, job := range tests {
		if err := f.Encode(context.Background(), job, nil); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("job %d: expected validation error, got %v", i, err)
		}
	}
}

func TestEncodeBuildsArguments(t *testing.T) {
	captured := setHelperCommand(t, "success")
	job := newJob(t, 3, 24)

	f := NewFFmpeg(WithExtraArgs("-crf", "20"))
	if err := f.Encode(context.Background(), job, nil); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	args := *captured
	listPath := filepath.Join(job.Dir, ConcatListName)
	for flag, want := range map[string]string{
		"-f":        "concat",
		"-i":        listPath,
		"-r":        "24",
		"-c:v":      "libx264",
		"-pix_fmt":  "yuv420p",
		"-progress": "pipe:1",
		"-crf":      "20",
	} {
		idx := findArg(args, flag)
		if idx == -1 || idx+1 >= len(args) {
			t.Fatalf("expected %s in args %v", flag, args)
		}
		if args[idx+1] != want {
			t.Fatalf("expected %s %s, got %s", flag, want, args[idx+1])
		}
	}
	if args[len(args)-1] != job.Output {
		t.Fatalf("expected output last, got %v", args)
	}
	if _, err := os.Stat(listPath); !os.IsNotExist(err) {
		t.Fatal("concat list should be removed after the run")
	}
}

func TestEncodeReportsProgress(t *testing.T) {
	setHelperCommand(t, "success")
	job := newJob(t, 4, 60)

	var updates []Update
	if err := NewFFmpeg().Encode(context.Background(), job, func(u Update) {
		updates = append(updates, u)
	}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(updates) != 3 {
		t.Fatalf("expected 3 updates, got %d: %+v", len(updates), updates)
	}
	if updates[0].Percent != 25 || updates[1].Percent != 75 {
		t.Fatalf("unexpected intermediate percents: %+v", updates)
	}
	last := updates[len(updates)-1]
	if last.Percent != 100 || last.Stage != StageComplete {
		t.Fatalf("expected final completion update, got %+v", last)
	}
	data, err := os.ReadFile(job.Output)
	if err != nil || string(data) != "mp4" {
		t.Fatalf("expected helper output, got %q (%v)", data, err)
	}
}

func TestEncodeFailureIncludesStderr(t *testing.T) {
	setHelperCommand(t, "failure")
	err := NewFFmpeg().Encode(context.Background(), newJob(t, 2, 30), nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestEncodeMissingOutput(t *testing.T) {
	setHelperCommand(t, "nooutput")
	err := NewFFmpeg().Encode(context.Background(), newJob(t, 1, 30), nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestEncodeTimeout(t *testing.T) {
	setHelperCommand(t, "hang")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := NewFFmpeg().Encode(ctx, newJob(t, 1, 30), nil)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestEncodeSynthesizesCompletion(t *testing.T) {
	setHelperCommand(t, "silent")
	var last Update
	if err := NewFFmpeg().Encode(context.Background(), newJob(t, 2, 30), func(u Update) { last = u }); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if last.Percent != 100 {
		t.Fatalf("expected synthesized completion, got %+v", last)
	}
}

func TestWriteConcatList(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConcatListName)
	if err := writeConcatList(path, []string{"0.png", "2.png", "it's.png"}, 4); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "ffconcat version 1.0\n" +
		"file '0.png'\nduration 0.250000\n" +
		"file '2.png'\nduration 0.250000\n" +
		"file 'it'\\''s.png'\nduration 0.250000\n" +
		"file 'it'\\''s.png'\n"
	if string(data) != want {
		t.Fatalf("unexpected list:\n%s\nwant:\n%s", data, want)
	}
}

func TestFramePercent(t *testing.T) {
	tests := []struct {
		frame, total int
		want         float64
	}{
		{0, 10, 0},
		{5, 10, 50},
		{12, 10, 100},
		{3, 0, 0},
	}
	for _, tc := range tests {
		if got := framePercent(tc.frame, tc.total); got != tc.want {
			t.Errorf("framePercent(%d, %d) = %v, want %v", tc.frame, tc.total, got, tc.want)
		}
	}
}

func TestTailBufferKeepsEnd(t *testing.T) {
	buf := &tailBuffer{limit: 8}
	fmt.Fprint(buf, "0123456789")
	fmt.Fprint(buf, "ab")
	if got := string(buf.buf); got != "456789ab" {
		t.Fatalf("unexpected tail %q", got)
	}
	empty := &tailBuffer{limit: 8}
	if empty.Summary() == "" {
		t.Fatal("expected fallback summary")
	}
}

func newJob(t *testing.T, frames int, fps float64) Job {
	t.Helper()
	dir := t.TempDir()
	names := make([]string, 0, frames)
	for i := 0; i < frames; i++ {
		name := fmt.Sprintf("%d.png", i)
		if err := os.WriteFile(filepath.Join(dir, name), []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
		names = append(names, name)
	}
	return Job{Dir: dir, Frames: names, FPS: fps, Output: filepath.Join(dir, ".canvas.mp4.partial")}
}

func setHelperCommand(t *testing.T, mode string) *[]string {
	t.Helper()
	captured := new([]string)
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		*captured = append([]string(nil), args...)
		helperArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], helperArgs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFMPEG_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return captured
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	output := args[len(args)-1]

	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "success":
		fmt.Println("frame=1\nfps=0.0\nprogress=continue")
		fmt.Println("frame=3\nfps=30.0\nprogress=continue")
		_ = os.WriteFile(output, []byte("mp4"), 0o644)
		fmt.Println("frame=4\nprogress=end")
		os.Exit(0)
	case "silent":
		_ = os.WriteFile(output, []byte("mp4"), 0o644)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "frames.ffconcat: Invalid data found when processing input")
		os.Exit(1)
	case "nooutput":
		fmt.Println("progress=end")
		os.Exit(0)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	default:
		os.Exit(0)
	}
}

func findArg(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}

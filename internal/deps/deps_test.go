package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t)
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank result: %#v", results[2])
	}
}

func TestCheckFFmpegMissing(t *testing.T) {
	status := CheckFFmpeg(context.Background(), "clearly-not-ffmpeg", "libx264")
	if status.Available {
		t.Fatal("expected missing ffmpeg to be unavailable")
	}
}

func TestCheckFFmpegProbes(t *testing.T) {
	stub := writeStub(t)
	tests := []struct {
		name      string
		codec     string
		available bool
	}{
		{"codec present", "libx264", true},
		{"codec absent", "libsvtav1", false},
		{"no codec requested", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setHelperCommand(t)
			status := CheckFFmpeg(context.Background(), stub, tc.codec)
			if status.Available != tc.available {
				t.Fatalf("Available = %v, want %v (%s)", status.Available, tc.available, status.Detail)
			}
			if status.Version != "ffmpeg version 7.1 Copyright (c) 2000-2024 the FFmpeg developers" {
				t.Fatalf("unexpected version %q", status.Version)
			}
		})
	}
}

func TestHasEncoder(t *testing.T) {
	out := []byte("Encoders:\n V..... = Video\n ------\n V....D libx264   libx264 H.264\n A....D aac       AAC\n")
	if !hasEncoder(out, "libx264") || !hasEncoder(out, "aac") {
		t.Fatal("expected encoders to be found")
	}
	if hasEncoder(out, "Video") || hasEncoder(out, "libx265") {
		t.Fatal("unexpected encoder match")
	}
}

func setHelperCommand(t *testing.T) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		helperArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], helperArgs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	last := os.Args[len(os.Args)-1]
	switch last {
	case "-version":
		fmt.Println("ffmpeg version 7.1 Copyright (c) 2000-2024 the FFmpeg developers")
		fmt.Println("built with gcc 14")
	case "-encoders":
		fmt.Println("Encoders:")
		fmt.Println(" V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC")
		fmt.Println(" A....D aac                  AAC (Advanced Audio Coding)")
	}
	os.Exit(0)
}

// Package render turns a session's uploaded frames into canvas.mp4.
//
// The Orchestrator claims a session in the progress tracker, snapshots the
// frame list, and runs the encoder in a background goroutine bounded by the
// configured timeout. The artifact is only published by rename after the
// encoder succeeds; frames are removed afterwards on a best-effort basis.
// Failures mark the tracker failed, remove partial output, and keep frames so
// the client can retry.
package render

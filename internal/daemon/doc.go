// Package daemon coordinates the long-running canvascap process.
//
// It wires configuration, the session store, frame sink, progress tracker,
// render orchestrator, retention sweeper and HTTP server into a single
// lifecycle with flock-based locking so two daemons never sweep the same
// captures root.
//
// Keep orchestration logic here: request handling, rendering and retention
// live in their own packages while the daemon focuses on startup, shutdown
// and status reporting.
package daemon

// Package main hosts the canvascap CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon in the foreground, sweeps
// expired sessions on demand, lists captured sessions, reports dependency
// health and scaffolds configuration. It centralizes configuration resolution
// so subcommands can focus on output instead of wiring.
//
// Keep this package lean: add functionality to the internal packages first,
// then surface it through dedicated commands or flags here.
package main

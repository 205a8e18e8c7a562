// Package logs reads the daemon log file for the CLI.
//
// It returns the last N lines with bounded memory, follows appended lines
// until the caller's context ends, survives truncation, and filters lines down
// to one capture session in either log format.
package logs

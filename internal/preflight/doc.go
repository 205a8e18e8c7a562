// Package preflight provides readiness checks for the filesystem paths and
// external binaries canvascap depends on.
//
// The daemon runs RunAll at startup and refuses to serve when a required
// check fails; the /healthz endpoint and the CLI "canvascap status" command
// reuse the same checks for display.
package preflight

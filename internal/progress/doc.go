// Package progress records per-session render state for polling clients.
//
// A Tracker is the single source of truth for whether a session is rendering,
// finished, or failed, and for how far an active render has progressed.
// Percentages are clamped to [0,100] and never decrease during a render.
// Begin is the atomic claim that keeps concurrent triggers from starting two
// encoders; a failed session may be claimed again.
//
// Two backends exist: an in-memory map for single-process deployments and a
// SQLite database for state that survives restarts or is shared by several
// processes pointing at the same state directory.
package progress

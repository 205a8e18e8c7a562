// Package frames validates, decodes and persists uploaded canvas frames.
//
// Frames land in the session directory as <index>.png via a temp file and
// rename, so a reader listing the directory never observes a partial frame.
// Listing sorts by numeric index and tolerates gaps; Clean removes frame files
// once a render has been published.
package frames

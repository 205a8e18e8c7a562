// Package session allocates capture session identifiers and owns the on-disk
// layout beneath the captures root.
//
// Each session is one directory named by its 48-character hex id. The
// directory holds numbered frame files, the transient concat list and partial
// output used during a render, and finally canvas.mp4. Store never deletes
// anything; the sweeper and frame sink own removal.
package session

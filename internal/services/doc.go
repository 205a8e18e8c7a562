// Package services defines shared utilities consumed by the capture pipeline
// components and the HTTP boundary.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, frame indices, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so the HTTP layer can map
//     failures (validation, not found, storage, encoder) onto responses
//     without string matching.
//
// Use these helpers when wiring new components so operational behaviour
// (error handling, observability) stays uniform across the service.
package services

// Package config loads, normalizes, and validates canvascap configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours CANVASCAP_* environment overrides
// for the handful of knobs operators most often change in container
// deployments (port, storage root, retention, default frame rate). The Config
// type centralizes every setting the daemon and CLI need so the captures root,
// encoder invocation, and retention policy are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config

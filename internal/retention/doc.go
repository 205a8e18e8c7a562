// Package retention reclaims capture session directories once they outlive
// the configured threshold.
//
// The sweeper walks the top level of the captures root, measures each
// directory's age from its creation time, and removes expired ones together
// with their tracker records. Individual failures are collected and logged;
// a sweep never aborts part way and never surfaces errors to request handling.
package retention

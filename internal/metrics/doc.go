// Package metrics exposes prometheus counters for conflict detection,
// obsolete writes, and hinted handoff activity.
package metrics

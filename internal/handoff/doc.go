// Package handoff implements hinted handoff: writes whose destination
// replica is unreachable are parked, with their clocks, in the repository's
// deferred-write engine and replayed later. One slot exists per
// (destination, store, key); the engine's version comparison keeps only the
// newest parked write, and replay deletes a hint only if the slot still
// holds the version that was delivered.
package handoff

// Package routed implements the replica fan-out store: writes are stamped
// with the local node's clock and pushed to every replica of the key,
// parking hints for unreachable replicas; reads resolve the replicas'
// versions to the causally maximal set and repair stale replicas in the
// background. Which nodes replicate a key is injected via ReplicaPicker.
package routed

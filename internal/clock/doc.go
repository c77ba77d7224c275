// Package clock provides the sparse vector clock used to track causality
// between concurrently written versions of a key. Clocks are copy-on-write
// values: advancing one always produces a new clock, so published instances
// may be shared and compared across goroutines without synchronization.
// Clocks are capped in size by pruning the least recently advanced entries,
// which is lossy and documented on Pruned.
package clock

// Package repair resolves the concurrent versions read for a key down to the
// maximal antichain, and identifies which replicas returned dominated
// versions so they can be converged by read repair. A multi-winner result is
// a designed outcome, propagated to the caller as data.
package repair

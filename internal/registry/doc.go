// Package registry holds the process-wide repository of store handles:
// storage engines, local stores, routed stores, per-node stores, redirecting
// stores, and the deferred-write engine used for hinted handoff. Registration
// of an existing name fails loudly rather than overwrite, so topology bugs
// abort assembly instead of corrupting it.
package registry

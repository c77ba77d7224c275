// Package node assembles a process's store topology from its configuration:
// engines, local stores, the handoff engine, and routed stores, all
// registered in one StoreRepository. Transport-owned handles (node stores,
// redirecting stores) are registered by the layers that dial them.
package node

// Package storage defines the store capability registered stores expose and
// the storage engines at the bottom of the chain. Every value is stored with
// its vector clock; a key holds a set of pairwise concurrent siblings, and
// writes that are causally at or before a stored sibling are rejected with
// ErrObsoleteVersion. Two engines are provided, an ordered in-memory map and
// a bbolt file, plus the VersionedStore wrapper implementing the local
// merge-increment-prune write path.
package storage

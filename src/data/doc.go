// Package data implements the stores holding user data on a node.
//
// Adults keep immutable chunks in a ChunkStore: one file per chunk under
// chunks/, named after the hex of the chunk address. Elders keep registers,
// maps and sequences: every accepted op is appended to an event file in a
// per-address directory and the current value is rebuilt by replaying it.
//
// All stores of a node share one UsedSpace, which refuses writes beyond the
// configured capacity and reports when the node is getting full.
package data

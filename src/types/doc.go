// Package types defines the data stored by the network.
//
// Chunks are immutable and content addressed. Registers, Maps and Sequences
// are mutable and governed by a Policy; every mutation names its author and
// the version (the entries count) it expects, and is rejected with
// InvalidSuccessor when another mutation got there first.
package types

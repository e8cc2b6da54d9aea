// Package peers defines the identity of a node and collections of nodes.
//
// A node is identified by its ed25519 public key. Its XorName, the SHA3-256
// hash of that key, places it in the address space, and therefore in the
// section whose prefix matches it. A node also carries an age, which grows
// each time it is relocated, and the socket address where it can be reached.
//
// A PeerSet is an ordered collection of peers, used for elder sets and for
// selecting the peers closest to a name.
//
// The node writes its connection info (its address and the genesis key of the
// network) to node_connection_info.config in its root directory, so that
// clients and other nodes can bootstrap from it.
package peers

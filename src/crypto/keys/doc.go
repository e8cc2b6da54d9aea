// Package keys implements the identity keys of nodes and clients.
//
// A node owns an ed25519 key-pair; its XorName is the SHA3-256 hash of the
// public key. Clients use ed25519 keys too: they sign service messages and
// own wallets and data. The private key is kept in the node's root directory
// by a SimpleKeyfile.
package keys

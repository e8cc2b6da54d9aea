// Package net implements the transports used by nodes and clients to exchange
// messages.
//
// A Comm sends opaque byte slices to an address and delivers the messages it
// receives on a bounded channel. When the consumer falls behind, the oldest
// queued messages are dropped and logged. There are three implementations:
//
// - Inmem: in-memory transport used only for testing. Delivery is synchronous
// and peers can be disconnected to simulate failures.
//
// - TCP: msgpack frames over pooled TCP connections.
//
// - QUIC: one QUIC stream per message over a single connection per peer.
//
// TCP
//
// The TCP transport is suitable when nodes are in the same local network, or
// when users are able to configure their connections appropriately to avoid NAT
// issues.
//
// To use a TCP transport, set the following configuration options in the
// Config object (cf config package):
//
// - LocalAddr: the IP:PORT of the TCP socket that the node binds to.
//
// - PublicAddr: (optional) The address that is advertised to other nodes. If
// LocalAddr is a local address not reachable by other peers, it is useful to
// set PublicAddr to the reachable public address.
//
// QUIC
//
// Set Transport to "quic". LocalAddr and PublicAddr have the same meaning as
// for TCP, but refer to a UDP socket. Certificates are self-signed and are not
// verified: peers authenticate each other with the signatures carried by every
// message.
package net

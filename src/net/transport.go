package net

import (
	"context"
)

// Incoming is a message received from a peer. Src is the address the sender
// advertises, which is where replies should be sent.
type Incoming struct {
	Src   string
	Bytes []byte
}

// Comm is the interface of the point-to-point messaging layer used by nodes
// and clients. Messages are opaque byte slices, usually serialised
// messaging.WireMsgs. Delivery is best effort: a nil error from Send only
// means the message was handed to the remote end.
type Comm interface {
	// LocalAddr returns the address other nodes should use to reach us.
	LocalAddr() string

	// Consumer returns the channel of incoming messages. When the consumer
	// falls behind, the oldest messages are dropped.
	Consumer() <-chan Incoming

	// Send delivers msg to the Comm listening on addr. It fails with a
	// PeerUnreachable error when the peer cannot be contacted before ctx is
	// done.
	Send(ctx context.Context, addr string, msg []byte) error

	// Close stops the Comm. Pending and future Sends fail.
	Close() error
}

// Package messaging defines what nodes and clients say to each other and how
// it is framed on the wire.
//
// A WireMsg is a fixed binary header followed by a msgpack payload:
//
//	version         1 byte
//	kind            1 byte  (SectionInfo, Client, Routing, Node)
//	msg id          32 bytes
//	dst name        32 bytes
//	dst section key 48 bytes
//	flags           1 byte  (bit 0: a src section key follows)
//	src section key 0 or 48 bytes
//	payload         the rest
//
// The payload is an Envelope: the sender's identity, its ed25519 signature of
// the msg id and body, and the body. The body of a Client message is a
// ServiceMsg; every other kind carries a SystemMsg.
package messaging

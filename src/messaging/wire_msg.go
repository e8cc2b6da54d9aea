package messaging

import (
	"crypto/rand"
	"fmt"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// HeaderVersion is the only header version we understand.
const HeaderVersion uint8 = 1

const (
	fixedHeaderLen = 1 + 1 + MsgIDLen + xor.NameLen + bls.PublicKeySize + 1
	flagSrcKey     = 1 << 0
)

// MsgKind ...
type MsgKind uint8

const (
	// SectionInfoMsgKind carries bootstrap, join and anti-entropy messages,
	// which are handled before any section key check.
	SectionInfoMsgKind MsgKind = iota
	// ClientMsgKind carries service messages from and to clients.
	ClientMsgKind
	// RoutingMsgKind carries system messages between sections.
	RoutingMsgKind
	// NodeMsgKind carries system messages within a section.
	NodeMsgKind
)

// String ...
func (k MsgKind) String() string {
	switch k {
	case SectionInfoMsgKind:
		return "SectionInfo"
	case ClientMsgKind:
		return "Client"
	case RoutingMsgKind:
		return "Routing"
	case NodeMsgKind:
		return "Node"
	default:
		return fmt.Sprintf("MsgKind(%d)", uint8(k))
	}
}

// MsgIDLen ...
const MsgIDLen = 32

// MsgID identifies a message. Responses carry the id of the request they
// answer.
type MsgID [MsgIDLen]byte

// NewMsgID returns a random id.
func NewMsgID() MsgID {
	var id MsgID
	if _, err := rand.Read(id[:]); err != nil {
		panic(err)
	}
	return id
}

// String ...
func (id MsgID) String() string {
	return common.ShortHex(id[:])
}

// Dst is where a message goes: a name and the section key the sender
// believes governs it.
type Dst struct {
	Name       xor.Name
	SectionKey bls.PublicKey
}

// Header ...
type Header struct {
	Version       uint8
	Kind          MsgKind
	MsgID         MsgID
	Dst           Dst
	SrcSectionKey *bls.PublicKey
}

// WireMsg is a header and an encoded Envelope.
type WireMsg struct {
	Header  Header
	Payload []byte
}

// Bytes serializes the message.
func (w WireMsg) Bytes() []byte {
	n := fixedHeaderLen + len(w.Payload)
	if w.Header.SrcSectionKey != nil {
		n += bls.PublicKeySize
	}
	b := make([]byte, 0, n)
	b = append(b, w.Header.Version, byte(w.Header.Kind))
	b = append(b, w.Header.MsgID[:]...)
	b = append(b, w.Header.Dst.Name[:]...)
	b = append(b, w.Header.Dst.SectionKey[:]...)
	if w.Header.SrcSectionKey != nil {
		b = append(b, flagSrcKey)
		b = append(b, w.Header.SrcSectionKey[:]...)
	} else {
		b = append(b, 0)
	}
	return append(b, w.Payload...)
}

// FromBytes parses a message. Only the header is checked; the payload is
// decoded on demand.
func FromBytes(b []byte) (WireMsg, error) {
	if len(b) < fixedHeaderLen {
		return WireMsg{}, common.NewError(common.InvalidMessage, "message of %d bytes is shorter than the header", len(b))
	}
	var w WireMsg
	h := &w.Header
	h.Version = b[0]
	if h.Version != HeaderVersion {
		return WireMsg{}, common.NewError(common.InvalidMessage, "unsupported header version %d", h.Version)
	}
	h.Kind = MsgKind(b[1])
	if h.Kind > NodeMsgKind {
		return WireMsg{}, common.NewError(common.InvalidMessage, "unknown message kind %d", b[1])
	}
	off := 2
	off += copy(h.MsgID[:], b[off:])
	off += copy(h.Dst.Name[:], b[off:off+xor.NameLen])
	off += copy(h.Dst.SectionKey[:], b[off:off+bls.PublicKeySize])
	flags := b[off]
	off++
	if flags&^flagSrcKey != 0 {
		return WireMsg{}, common.NewError(common.InvalidMessage, "unknown header flags %#x", flags)
	}
	if flags&flagSrcKey != 0 {
		if len(b) < off+bls.PublicKeySize {
			return WireMsg{}, common.NewError(common.InvalidMessage, "truncated source section key")
		}
		var key bls.PublicKey
		off += copy(key[:], b[off:off+bls.PublicKeySize])
		h.SrcSectionKey = &key
	}
	if off < len(b) {
		w.Payload = append([]byte{}, b[off:]...)
	}
	return w, nil
}

// Envelope decodes the payload.
func (w WireMsg) Envelope() (Envelope, error) {
	var e Envelope
	if err := common.DecodeMsgpack(w.Payload, &e); err != nil {
		return Envelope{}, common.NewError(common.InvalidMessage, "undecodable payload: %v", err)
	}
	return e, nil
}

// WithDst returns a copy of the message sent to another destination. The
// envelope signature does not cover the destination, so it stays valid.
func (w WireMsg) WithDst(dst Dst) WireMsg {
	w.Header.Dst = dst
	return w
}

// String ...
func (w WireMsg) String() string {
	return fmt.Sprintf("%v(%v -> %v@%v)", w.Header.Kind, w.Header.MsgID, w.Header.Dst.Name, w.Header.Dst.SectionKey)
}

package messaging

import (
	"crypto/ed25519"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
)

// Envelope authenticates a message body. For clients Sender.Age is zero and
// Sender.Addr is where responses go.
type Envelope struct {
	Sender    peers.Peer
	Signature keys.Signature
	Body      []byte
}

func signedBytes(id MsgID, body []byte) []byte {
	b := make([]byte, 0, len(id)+len(body))
	b = append(b, id[:]...)
	return append(b, body...)
}

// Verify checks that the sender name matches its key and that the key
// signed the body under msg id id.
func (e Envelope) Verify(id MsgID) error {
	if err := e.Sender.Validate(); err != nil {
		return common.NewError(common.InvalidSignature, "%v", err)
	}
	if !e.Sender.PublicKey.Verify(signedBytes(id, e.Body), e.Signature) {
		return common.NewError(common.InvalidSignature, "message %v from %v", id, e.Sender.Name)
	}
	return nil
}

// SystemMsg decodes a system body.
func (e Envelope) SystemMsg() (SystemMsg, error) {
	var m SystemMsg
	if err := common.DecodeMsgpack(e.Body, &m); err != nil {
		return SystemMsg{}, common.NewError(common.InvalidMessage, "undecodable system message: %v", err)
	}
	return m, nil
}

// ServiceMsg decodes a service body.
func (e Envelope) ServiceMsg() (ServiceMsg, error) {
	var m ServiceMsg
	if err := common.DecodeMsgpack(e.Body, &m); err != nil {
		return ServiceMsg{}, common.NewError(common.InvalidMessage, "undecodable service message: %v", err)
	}
	return m, nil
}

// Signer is an identity that sends messages.
type Signer struct {
	Key  ed25519.PrivateKey
	Peer peers.Peer
}

// Wrap encodes body into a signed WireMsg.
func (s Signer) Wrap(kind MsgKind, id MsgID, dst Dst, srcKey *bls.PublicKey, body interface{}) (WireMsg, error) {
	b, err := common.EncodeMsgpack(body)
	if err != nil {
		return WireMsg{}, err
	}
	env := Envelope{
		Sender:    s.Peer,
		Signature: keys.Sign(s.Key, signedBytes(id, b)),
		Body:      b,
	}
	payload, err := common.EncodeMsgpack(env)
	if err != nil {
		return WireMsg{}, err
	}
	return WireMsg{
		Header: Header{
			Version:       HeaderVersion,
			Kind:          kind,
			MsgID:         id,
			Dst:           dst,
			SrcSectionKey: srcKey,
		},
		Payload: payload,
	}, nil
}

// System wraps a system message under a fresh id.
func (s Signer) System(kind MsgKind, dst Dst, srcKey *bls.PublicKey, msg SystemMsg) (WireMsg, error) {
	return s.Wrap(kind, NewMsgID(), dst, srcKey, msg)
}

// Service wraps a service message under id.
func (s Signer) Service(id MsgID, dst Dst, msg ServiceMsg) (WireMsg, error) {
	return s.Wrap(ClientMsgKind, id, dst, nil, msg)
}

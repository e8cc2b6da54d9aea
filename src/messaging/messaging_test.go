package messaging

import (
	"testing"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T) Signer {
	k, err := keys.GenerateKey()
	require.NoError(t, err)
	return Signer{Key: k, Peer: peers.NewPeer(keys.PublicKeyOf(k), peers.MinAdultAge, "127.0.0.1:1")}
}

func testKey(b byte) bls.PublicKey {
	var k bls.PublicKey
	for i := range k {
		k[i] = b
	}
	return k
}

func TestHeaderLayout(t *testing.T) {
	var id MsgID
	var name xor.Name
	for i := range id {
		id[i] = 0xA0
		name[i] = 0xB0
	}
	dstKey, srcKey := testKey(0xC0), testKey(0xD0)
	payload := []byte{1, 2, 3}

	w := WireMsg{
		Header: Header{
			Version: HeaderVersion,
			Kind:    RoutingMsgKind,
			MsgID:   id,
			Dst:     Dst{Name: name, SectionKey: dstKey},
		},
		Payload: payload,
	}
	b := w.Bytes()
	require.Len(t, b, 115+3)
	assert.Equal(t, byte(1), b[0])
	assert.Equal(t, byte(2), b[1])
	assert.Equal(t, id[:], b[2:34])
	assert.Equal(t, name[:], b[34:66])
	assert.Equal(t, dstKey[:], b[66:114])
	assert.Equal(t, byte(0), b[114])
	assert.Equal(t, payload, b[115:])

	w.Header.SrcSectionKey = &srcKey
	b = w.Bytes()
	require.Len(t, b, 115+48+3)
	assert.Equal(t, byte(1), b[114])
	assert.Equal(t, srcKey[:], b[115:163])
	assert.Equal(t, payload, b[163:])

	back, err := FromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, w, back)
}

func TestHeaderOnlyMessage(t *testing.T) {
	w := WireMsg{
		Header: Header{
			Version: HeaderVersion,
			Kind:    NodeMsgKind,
			Dst:     Dst{SectionKey: testKey(0xE0)},
		},
	}
	b := w.Bytes()
	require.Len(t, b, 115)

	back, err := FromBytes(b)
	require.NoError(t, err)
	assert.Nil(t, back.Payload)
	assert.Equal(t, w, back)
}

func TestFromBytesRejectsBadHeaders(t *testing.T) {
	valid := WireMsg{Header: Header{Version: HeaderVersion, Kind: NodeMsgKind}}.Bytes()

	_, err := FromBytes(valid[:50])
	assert.True(t, common.Is(err, common.InvalidMessage))

	bad := append([]byte{}, valid...)
	bad[0] = 2
	_, err = FromBytes(bad)
	assert.True(t, common.Is(err, common.InvalidMessage))

	bad = append([]byte{}, valid...)
	bad[1] = 4
	_, err = FromBytes(bad)
	assert.True(t, common.Is(err, common.InvalidMessage))

	bad = append([]byte{}, valid...)
	bad[114] = 0x80
	_, err = FromBytes(bad)
	assert.True(t, common.Is(err, common.InvalidMessage))

	bad = append([]byte{}, valid...)
	bad[114] = 1
	_, err = FromBytes(bad)
	assert.True(t, common.Is(err, common.InvalidMessage))
}

func TestSignedEnvelope(t *testing.T) {
	s := newSigner(t)
	dst := Dst{Name: xor.RandomName(), SectionKey: testKey(7)}
	msg := SystemMsg{BootstrapRequest: &BootstrapRequest{Name: s.Peer.Name}}

	w, err := s.System(SectionInfoMsgKind, dst, nil, msg)
	require.NoError(t, err)

	back, err := FromBytes(w.Bytes())
	require.NoError(t, err)
	env, err := back.Envelope()
	require.NoError(t, err)
	require.NoError(t, env.Verify(back.Header.MsgID))
	assert.Equal(t, s.Peer, env.Sender)

	decoded, err := env.SystemMsg()
	require.NoError(t, err)
	assert.Equal(t, "BootstrapRequest", decoded.Name())
	assert.Equal(t, s.Peer.Name, decoded.BootstrapRequest.Name)

	// The signature binds the msg id.
	assert.True(t, common.Is(env.Verify(NewMsgID()), common.InvalidSignature))

	// A re-addressed message keeps its signature.
	moved := back.WithDst(Dst{Name: dst.Name, SectionKey: testKey(8)})
	env2, err := moved.Envelope()
	require.NoError(t, err)
	assert.NoError(t, env2.Verify(moved.Header.MsgID))

	env.Body = append(env.Body, 0)
	assert.True(t, common.Is(env.Verify(back.Header.MsgID), common.InvalidSignature))
}

func TestForgedSender(t *testing.T) {
	s, other := newSigner(t), newSigner(t)
	forger := Signer{Key: s.Key, Peer: other.Peer}
	w, err := forger.System(NodeMsgKind, Dst{}, nil, SystemMsg{StorageFull: &StorageFull{Name: other.Peer.Name}})
	require.NoError(t, err)
	env, err := w.Envelope()
	require.NoError(t, err)
	assert.True(t, common.Is(env.Verify(w.Header.MsgID), common.InvalidSignature))
}

func TestServiceMsgRoundTrip(t *testing.T) {
	s := newSigner(t)
	chunk := types.NewPublicChunk([]byte("payload"))
	id := NewMsgID()
	w, err := s.Service(id, Dst{Name: chunk.Address}, ServiceMsg{Cmd: &DataCmd{StoreChunk: &chunk}})
	require.NoError(t, err)
	assert.Equal(t, ClientMsgKind, w.Header.Kind)

	back, err := FromBytes(w.Bytes())
	require.NoError(t, err)
	env, err := back.Envelope()
	require.NoError(t, err)
	m, err := env.ServiceMsg()
	require.NoError(t, err)
	require.NotNil(t, m.Cmd)
	assert.Equal(t, chunk.Address, m.Cmd.DstName())
	assert.Equal(t, chunk.Value, m.Cmd.StoreChunk.Value)
	assert.Equal(t, "Cmd", m.Name())
}

func TestProposalBytes(t *testing.T) {
	set, _, err := bls.GenerateKeySet(0, 1)
	require.NoError(t, err)
	sap := knowledge.SignedSAP{SAP: knowledge.NewSAP(xor.Prefix{}, set, nil)}
	key := set.PublicKey()
	assert.Equal(t, key[:], Proposal{NewElders: &sap}.Bytes())

	state := knowledge.NodeState{Peer: newSigner(t).Peer, State: knowledge.Joined}
	assert.Equal(t, state.Bytes(), Proposal{Online: &state}.Bytes())

	allowed := true
	assert.NotEqual(t, Proposal{JoinsAllowed: &allowed}.Bytes(), Proposal{}.Bytes())
}

func TestErrorMsg(t *testing.T) {
	e := ErrorMsgFrom(common.NewError(common.DoubleSpend, "counter %d", 3))
	assert.Equal(t, common.DoubleSpend, e.Kind)
	assert.True(t, common.Is(e.Err(), common.DoubleSpend))

	other := ErrorMsgFrom(assert.AnError)
	assert.Equal(t, common.InvalidState, other.Kind)
}

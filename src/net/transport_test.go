package net

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
)

const (
	INMEM = iota
	TCP
	QUIC
	numTestTransports // NOTE: must be last
)

func NewTestComm(ttype int, network *InmemNetwork, t *testing.T) Comm {
	logger := common.NewTestEntry(t, common.TestLogLevel)
	switch ttype {
	case INMEM:
		return network.NewComm("", 10, logger)
	case TCP:
		tt, err := NewTCPComm("127.0.0.1:0", "", 2, time.Second, 10, logger)
		if err != nil {
			t.Fatal(err)
		}
		go tt.Listen()
		return tt
	case QUIC:
		qt, err := NewQuicComm("127.0.0.1:0", "", time.Second, 10, logger)
		if err != nil {
			t.Fatal(err)
		}
		return qt
	default:
		panic("Unknown transport type")
	}
}

func TestComm_StartStop(t *testing.T) {
	network := NewInmemNetwork()
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans := NewTestComm(ttype, network, t)
		if err := trans.Close(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func TestComm_Send(t *testing.T) {
	network := NewInmemNetwork()
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestComm(ttype, network, t)
		defer trans1.Close()
		trans2 := NewTestComm(ttype, network, t)
		defer trans2.Close()

		payload := []byte("hello section")

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := trans2.Send(ctx, trans1.LocalAddr(), payload)
		cancel()
		if err != nil {
			t.Fatalf("transport %d: err: %v", ttype, err)
		}

		select {
		case msg := <-trans1.Consumer():
			if !bytes.Equal(msg.Bytes, payload) {
				t.Fatalf("transport %d: payload mismatch: %v", ttype, msg.Bytes)
			}
			if msg.Src != trans2.LocalAddr() {
				t.Fatalf("transport %d: src should be %s, not %s", ttype, trans2.LocalAddr(), msg.Src)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("transport %d: timeout", ttype)
		}
	}
}

func TestComm_Unreachable(t *testing.T) {
	network := NewInmemNetwork()
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestComm(ttype, network, t)
		addr := trans1.LocalAddr()
		trans1.Close()

		trans2 := NewTestComm(ttype, network, t)
		defer trans2.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		err := trans2.Send(ctx, addr, []byte("anyone?"))
		cancel()

		// A TCP send to a closed port fails at dial time. QUIC would only
		// notice after the handshake times out, which the deadline covers.
		if err == nil {
			t.Fatalf("transport %d: sending to a closed comm should fail", ttype)
		}
		if !common.Is(err, common.PeerUnreachable) {
			t.Fatalf("transport %d: err should be PeerUnreachable, not %v", ttype, err)
		}
	}
}

func TestInmem_Disconnect(t *testing.T) {
	network := NewInmemNetwork()
	logger := common.NewTestEntry(t, common.TestLogLevel)

	a := network.NewComm("a", 10, logger)
	b := network.NewComm("b", 10, logger)

	network.Disconnect("b")

	if err := a.Send(context.Background(), "b", []byte("x")); !common.Is(err, common.PeerUnreachable) {
		t.Fatalf("err should be PeerUnreachable, not %v", err)
	}
	if err := b.Send(context.Background(), "a", []byte("x")); !common.Is(err, common.PeerUnreachable) {
		t.Fatalf("messages from a disconnected comm should be lost, got %v", err)
	}

	network.Reconnect("b")

	if err := a.Send(context.Background(), "b", []byte("x")); err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(b.Consumer()) != 1 {
		t.Fatalf("b should have 1 message, not %d", len(b.Consumer()))
	}
}

func TestInmem_MessagesAreCopied(t *testing.T) {
	network := NewInmemNetwork()
	logger := common.NewTestEntry(t, common.TestLogLevel)

	a := network.NewComm("a", 10, logger)
	b := network.NewComm("b", 10, logger)

	payload := []byte("abc")
	if err := a.Send(context.Background(), b.LocalAddr(), payload); err != nil {
		t.Fatalf("err: %v", err)
	}
	payload[0] = 'z'

	msg := <-b.Consumer()
	if string(msg.Bytes) != "abc" {
		t.Fatalf("delivered bytes should not alias the sender's buffer: %s", msg.Bytes)
	}
}

func TestInbox_DropsOldest(t *testing.T) {
	inbox := NewInbox(3, common.NewTestEntry(t, common.TestLogLevel))

	for i := 0; i < 5; i++ {
		inbox.Push(Incoming{Src: "peer", Bytes: []byte{byte(i)}})
	}

	if inbox.Dropped() != 2 {
		t.Fatalf("dropped should be 2, not %d", inbox.Dropped())
	}

	for i := 2; i < 5; i++ {
		msg := <-inbox.C()
		if msg.Bytes[0] != byte(i) {
			t.Fatalf("expected message %d, got %d", i, msg.Bytes[0])
		}
	}

	select {
	case msg := <-inbox.C():
		t.Fatalf("inbox should be empty, got %v", msg)
	default:
	}
}

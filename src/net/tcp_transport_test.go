package net

import (
	"io"
	"testing"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
)

func TestTCPComm_BadAddr(t *testing.T) {
	_, err := NewTCPComm("0.0.0.0:0", "", 1, 0, 1, common.NewTestEntry(t, common.TestLogLevel))
	if err != errNotAdvertisable {
		t.Fatalf("err: %v", err)
	}
}

func TestTCPComm_WithAdvertise(t *testing.T) {
	trans, err := NewTCPComm("0.0.0.0:0", "127.0.0.1:12345", 1, 0, 1, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans.Close()
	if trans.LocalAddr() != "127.0.0.1:12345" {
		t.Fatalf("bad: %v", trans.LocalAddr())
	}
}

func TestTCPLayer_DialAccept(t *testing.T) {
	l, err := listenTCP("127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer l.Close()
	if l.AdvertiseAddr() != l.Addr().String() {
		t.Fatalf("advertise %v, bound %v", l.AdvertiseAddr(), l.Addr())
	}

	accepted := make(chan []byte, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		defer conn.Close()
		buf := make([]byte, 4)
		if _, err := io.ReadFull(conn, buf); err != nil {
			accepted <- nil
			return
		}
		accepted <- buf
	}()

	conn, err := l.Dial(l.AdvertiseAddr(), time.Second)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("safe")); err != nil {
		t.Fatalf("err: %v", err)
	}

	select {
	case got := <-accepted:
		if string(got) != "safe" {
			t.Fatalf("bad: %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout")
	}
}

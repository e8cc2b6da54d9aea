package node

import (
	"testing"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

func testDispatcher() *Dispatcher {
	logger := logrus.New()
	logger.Level = logrus.WarnLevel
	return NewDispatcher(nil, nil, time.Second, true, logrus.NewEntry(logger))
}

func TestDispatcherPriority(t *testing.T) {
	d := testDispatcher()

	d.Enqueue(
		HandleTimeout{Token: Token{Kind: RequestTimeout}},
		SendMessage{},
		HandleAgreement{},
		HandleMessage{Src: "a"},
		HandleMessage{Src: "b"},
	)

	if p := d.Pending(); p != 5 {
		t.Fatalf("Pending should be 5, not %d", p)
	}

	var order []string
	for {
		e, ok := d.pop()
		if !ok {
			break
		}
		switch c := e.cmd.(type) {
		case HandleMessage:
			order = append(order, "msg-"+c.Src)
		case HandleAgreement:
			order = append(order, "agreement")
		case SendMessage:
			order = append(order, "send")
		case HandleTimeout:
			order = append(order, "timeout")
		}
	}

	expected := []string{"msg-a", "msg-b", "agreement", "send", "timeout"}
	if len(order) != len(expected) {
		t.Fatalf("popped %v, expected %v", order, expected)
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Fatalf("popped %v, expected %v", order, expected)
		}
	}
}

func TestDispatcherManualTimeouts(t *testing.T) {
	d := testDispatcher()

	d.Enqueue(
		ScheduleTimeout{Duration: time.Hour, Token: Token{Kind: BootstrapTimeout, ID: "join"}},
		ScheduleTimeout{Duration: time.Hour, Token: Token{Kind: RequestTimeout, ID: "r1"}},
		ScheduleTimeout{Duration: time.Hour, Token: Token{Kind: RequestTimeout, ID: "r2"}},
	)
	for d.Step() {
	}

	if p := d.Pending(); p != 0 {
		t.Fatalf("manual timers should not fire by themselves, %d pending", p)
	}

	if n := d.fireTimeouts(RequestTimeout); n != 2 {
		t.Fatalf("2 request timeouts should fire, not %d", n)
	}
	if n := d.fireTimeouts(RequestTimeout); n != 0 {
		t.Fatalf("request timeouts should only fire once, %d fired", n)
	}

	for i := 0; i < 2; i++ {
		e, ok := d.pop()
		if !ok {
			t.Fatalf("expected timeout %d", i)
		}
		ht, ok := e.cmd.(HandleTimeout)
		if !ok || ht.Token.Kind != RequestTimeout {
			t.Fatalf("expected request timeout, got %v", e.cmd)
		}
	}

	d.Shutdown()
	if n := d.fireTimeouts(BootstrapTimeout); n != 0 {
		t.Fatalf("timers should be dropped on shutdown, %d fired", n)
	}
	d.Enqueue(HandleMessage{})
	if p := d.Pending(); p != 0 {
		t.Fatalf("commands should not be queued after shutdown, %d pending", p)
	}
}

func TestSignatureAggregator(t *testing.T) {
	set, shares, err := bls.GenerateKeySet(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("section agreement")
	agg := NewSignatureAggregator()

	if _, err := agg.Add(payload, set, shares[0].Sign([]byte("something else"))); err == nil {
		t.Fatal("a share over another payload should be rejected")
	}

	sig, err := agg.Add(payload, set, shares[0].Sign(payload))
	if err != nil {
		t.Fatal(err)
	}
	if sig != nil {
		t.Fatal("one share should not be enough with threshold 1")
	}

	sig, err = agg.Add(payload, set, shares[1].Sign(payload))
	if err != nil {
		t.Fatal(err)
	}
	if sig == nil {
		t.Fatal("two shares should combine with threshold 1")
	}
	if sig.PublicKey != set.PublicKey() {
		t.Fatalf("combined under %v, expected %v", sig.PublicKey, set.PublicKey())
	}
	if !sig.Verify(payload) {
		t.Fatal("combined signature should verify")
	}

	sig, err = agg.Add(payload, set, shares[2].Sign(payload))
	if err != nil {
		t.Fatal(err)
	}
	if sig != nil {
		t.Fatal("a payload should only combine once")
	}

	// Forgetting the key resets the payload.
	agg.Retain(func(bls.PublicKey) bool { return false })
	if _, err := agg.Add(payload, set, shares[2].Sign(payload)); err != nil {
		t.Fatal(err)
	}
	sig, err = agg.Add(payload, set, shares[0].Sign(payload))
	if err != nil {
		t.Fatal(err)
	}
	if sig == nil {
		t.Fatal("payload should combine again after Retain dropped it")
	}
}

func TestControlTimer(t *testing.T) {
	fire := make(chan time.Time)
	calls := make(chan struct{})
	timer := NewControlTimer(func(time.Duration) <-chan time.Time {
		calls <- struct{}{}
		return fire
	})
	go timer.Run(time.Second)
	defer timer.Shutdown()

	// Each tick re-arms the timer, so a call to the factory means the tick
	// before it was delivered or dropped.
	tick := func() {
		fire <- time.Now()
		<-calls
	}

	<-calls
	tick()
	select {
	case <-timer.Ticks():
	default:
		t.Fatal("expected a tick")
	}

	tick()
	tick()
	tick()
	<-timer.Ticks()
	select {
	case <-timer.Ticks():
		t.Fatal("unread ticks should not pile up")
	default:
	}
}

func TestGenerateKeyIn(t *testing.T) {
	for _, s := range []string{"", "0", "1", "101"} {
		prefix := xor.MustParsePrefix(s)
		key, err := generateKeyIn(prefix)
		if err != nil {
			t.Fatal(err)
		}
		pk := keys.PublicKeyOf(key)
		if !prefix.Matches(xor.NameFromPublicKey(pk[:])) {
			t.Fatalf("key %v is not in %v", pk, prefix)
		}
	}
}

func TestNextAge(t *testing.T) {
	if a := nextAge(5); a != 6 {
		t.Fatalf("nextAge(5) should be 6, not %d", a)
	}
	if a := nextAge(255); a != 255 {
		t.Fatalf("nextAge(255) should saturate, got %d", a)
	}
}

package common

import (
	"fmt"
	"math"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	err := NewError(DoubleSpend, "debit %d", 3)
	if !Is(err, DoubleSpend) {
		t.Fatalf("expected DoubleSpend")
	}
	if Is(err, OutOfOrder) {
		t.Fatalf("DoubleSpend should not match OutOfOrder")
	}
	wrapped := fmt.Errorf("validating: %w", err)
	if !Is(wrapped, DoubleSpend) {
		t.Fatalf("wrapped error should match")
	}
	if k, ok := KindOf(wrapped); !ok || k != DoubleSpend {
		t.Fatalf("KindOf = %v, %v", k, ok)
	}
	if err.Error() != "Double Spend: debit 3" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestStoreErr(t *testing.T) {
	err := NewStoreErr("Holders", KeyNotFound, "abc")
	if !IsStore(err, KeyNotFound) {
		t.Fatalf("expected KeyNotFound")
	}
	if IsStore(fmt.Errorf("x"), KeyNotFound) {
		t.Fatalf("plain error is not a StoreErr")
	}
}

func TestMeanStdDev(t *testing.T) {
	for _, c := range []struct {
		in   []float64
		mean float64
		sd   float64
	}{
		{[]float64{2, 4, 4, 4, 5, 5, 7, 9}, 5, 2},
		{[]float64{1}, 1, 0},
		{nil, 0, 0},
	} {
		if got := Mean(c.in); math.Abs(got-c.mean) > 1e-9 {
			t.Errorf("Mean(%v) => %v != %v", c.in, got, c.mean)
		}
		if got := StdDev(c.in); math.Abs(got-c.sd) > 1e-9 {
			t.Errorf("StdDev(%v) => %v != %v", c.in, got, c.sd)
		}
	}
}

func TestHex(t *testing.T) {
	s := EncodeToString([]byte{0xab, 0x01})
	if s != "0XAB01" {
		t.Fatalf("got %s", s)
	}
	b, err := DecodeFromString(s)
	if err != nil || len(b) != 2 || b[0] != 0xab {
		t.Fatalf("decode: %v %v", b, err)
	}
}

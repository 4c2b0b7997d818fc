package sfc_test

import (
	"bytes"
	"testing"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/internal/regsim"
	"culvert.dev/culvert/soc/sfc"
)

func fakeController() *sfc.Controller {
	sim := regsim.New()
	h := &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}
	return sfc.New(h, 0x1e620000, 0x20000000, 16<<20)
}

func TestDirectReadWriteRoundTrip(t *testing.T) {
	c := fakeController()
	want := []byte("culvert-flash-window")
	if err := c.DirectWrite(0x1000, want); err != nil {
		t.Fatalf("direct write: %v", err)
	}
	got := make([]byte, len(want))
	if err := c.DirectRead(0x1000, got); err != nil {
		t.Fatalf("direct read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("round trip = %q, want %q", got, want)
	}
}

func TestDirectAccessOutOfRange(t *testing.T) {
	c := fakeController()
	buf := make([]byte, 16)
	if err := c.DirectRead(16<<20-8, buf); err == nil {
		t.Error("expected out-of-range read to fail")
	}
}

func TestSet4BRoundTrip(t *testing.T) {
	c := fakeController()
	if err := c.Set4B(true); err != nil {
		t.Fatalf("set4b: %v", err)
	}
	if err := c.Set4B(false); err != nil {
		t.Fatalf("clear4b: %v", err)
	}
}

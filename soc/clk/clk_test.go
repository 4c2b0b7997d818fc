package clk

import (
	"testing"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/internal/regsim"
)

func TestUngateARMClearsStickyBit(t *testing.T) {
	sim := regsim.New()
	h := &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}
	c := &Clock{h: h, base: 0x1e6e2000}
	sim.Seed(c.base+regClockStop, gateARM)

	gated, err := c.ARMGated()
	if err != nil {
		t.Fatalf("armgated: %v", err)
	}
	if !gated {
		t.Fatal("expected gated=true before ungate")
	}

	if err := c.UngateARM(); err != nil {
		t.Fatalf("ungate: %v", err)
	}
	gated, err = c.ARMGated()
	if err != nil {
		t.Fatalf("armgated: %v", err)
	}
	if gated {
		t.Error("expected gated=false after ungate")
	}
}

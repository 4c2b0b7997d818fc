package pciectl

import (
	"testing"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/internal/regsim"
	"culvert.dev/culvert/soc/bridgectl"
	"culvert.dev/culvert/soc/scu"
)

func fakeController() *Controller {
	sim := regsim.New()
	h := &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}
	return &Controller{scu: scu.New(h, 0x1e6e2000, dt.G5)}
}

// TestScenario1Fixture reproduces a PCIE_CONFIG = 0x0303 fixture: VGA
// and BMC PCIe devices and their MMIO windows enabled, XDMA left off, no
// region filter bits set.
func TestScenario1Fixture(t *testing.T) {
	c := fakeController()
	if err := c.scu.SetPCIEConfigBits(0x0303, true); err != nil {
		t.Fatalf("seed pcie config: %v", err)
	}
	got, err := c.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got != bridgectl.Permissive {
		t.Errorf("status = %v, want permissive", got)
	}
}

func TestEnforceStrictnessOrdering(t *testing.T) {
	c := fakeController()

	for _, m := range []bridgectl.Mode{bridgectl.Permissive, bridgectl.Restricted, bridgectl.Disabled} {
		if err := c.Enforce(m); err != nil {
			t.Fatalf("enforce %v: %v", m, err)
		}
		got, err := c.Status()
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if got != m {
			t.Errorf("enforce(%v) then status() = %v", m, got)
		}
	}
}

// TestDisabledEndpointDominatesAggregateStatus verifies Status aggregates
// to the least-permissive state across every endpoint: a single disabled
// endpoint should be enough to report Disabled overall, even if the rest
// are still enabled.
func TestDisabledEndpointDominatesAggregateStatus(t *testing.T) {
	c := fakeController()
	if err := c.Enforce(bridgectl.Permissive); err != nil {
		t.Fatalf("enforce permissive: %v", err)
	}
	if err := c.scu.SetPCIEConfigBits(bitVGAEnable, false); err != nil {
		t.Fatalf("clear vga enable: %v", err)
	}
	got, err := c.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got != bridgectl.Disabled {
		t.Errorf("status = %v, want disabled", got)
	}
}

func TestRestrictedSetsRegionFilterBits(t *testing.T) {
	c := fakeController()
	if err := c.Enforce(bridgectl.Restricted); err != nil {
		t.Fatalf("enforce restricted: %v", err)
	}
	misc, err := c.scu.MISC()
	if err != nil {
		t.Fatalf("misc: %v", err)
	}
	bit, ok := c.scu.FilterBit(scu.RegionDRAM)
	if !ok {
		t.Fatal("expected g5 to define a DRAM filter bit")
	}
	if misc&bit == 0 {
		t.Error("expected DRAM filter bit set under restricted mode")
	}
}

package ilpcctl

import (
	"testing"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/internal/regsim"
	"culvert.dev/culvert/soc/bridgectl"
	"culvert.dev/culvert/soc/scu"
)

func fakeController() (*Controller, *regsim.Map) {
	sim := regsim.New()
	h := &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}
	return &Controller{h: h, scu: scu.New(h, 0x1e6e2000, dt.G5), lpcBase: 0x1e789000}, sim
}

func TestEnforceStrictnessOrdering(t *testing.T) {
	c, _ := fakeController()

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

package debugctl

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

// TestNoRestrictedMode verifies that enforcing Restricted behaves
// exactly like Permissive (clears the disable bit), not like a distinct
// state: the debug UART has no restricted mode of its own.
func TestNoRestrictedMode(t *testing.T) {
	c := fakeController()

	if err := c.Enforce(bridgectl.Restricted); err != nil {
		t.Fatalf("enforce restricted: %v", err)
	}
	got, err := c.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got != bridgectl.Permissive {
		t.Errorf("enforce(restricted) then status() = %v, want permissive", got)
	}

	if err := c.Enforce(bridgectl.Disabled); err != nil {
		t.Fatalf("enforce disabled: %v", err)
	}
	got, err = c.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got != bridgectl.Disabled {
		t.Errorf("enforce(disabled) then status() = %v", got)
	}
}

func TestPortSelection(t *testing.T) {
	c := fakeController()
	port, err := c.Port()
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	if port != 1 {
		t.Errorf("default port = %d, want 1", port)
	}
	if err := c.scu.SetStrapBits(scu.StrapDebugUARTSel, true); err != nil {
		t.Fatalf("set strap: %v", err)
	}
	port, err = c.Port()
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	if port != 5 {
		t.Errorf("port after strap = %d, want 5", port)
	}
}

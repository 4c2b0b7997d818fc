package soc_test

import (
	"fmt"
	"strings"
	"testing"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/internal/regsim"
	"culvert.dev/culvert/soc"
)

func fakeHandle(t *testing.T) *ahb.Handle {
	t.Helper()
	sim := regsim.New()
	sim.Seed(soc.SiliconRevisionAddr, 0x04030303)
	return &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}
}

func TestProbeSelectsGeneration(t *testing.T) {
	s, err := soc.Probe(fakeHandle(t))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if s.Generation != dt.G5 {
		t.Errorf("generation = %v, want g5", s.Generation)
	}
	if s.ID.String() == "" {
		t.Error("expected a non-empty session id")
	}
}

// TestUnwindOrder verifies that a driver failing init causes every prior
// successful init to be torn down in reverse order, and that the first
// error is preserved even if an unwind step also fails.
func TestUnwindOrder(t *testing.T) {
	var order []string

	root := &dt.Node{Name: ""}
	good1 := &dt.Node{Name: "good1", Compatible: []string{"test,good"}, Parent: root}
	good2 := &dt.Node{Name: "good2", Compatible: []string{"test,good"}, Parent: root}
	bad := &dt.Node{Name: "bad", Compatible: []string{"test,bad"}, Parent: root}
	root.Children = []*dt.Node{good1, good2, bad}
	tree := &dt.Tree{Root: root}

	unwindErrCalled := false
	goodDriver := &soc.Driver{
		Name:    "good",
		Matches: []dt.Match{{Compatible: "test,good"}},
		Init: func(s *soc.Session, dev *soc.Device) error {
			order = append(order, "init:"+dev.Node.Name)
			dev.Drvdata = dev.Node.Name
			return nil
		},
		Destroy: func(s *soc.Session, dev *soc.Device) error {
			order = append(order, "destroy:"+dev.Node.Name)
			if dev.Node.Name == "good1" {
				unwindErrCalled = true
				return fmt.Errorf("synthetic unwind failure")
			}
			return nil
		},
	}
	badDriver := &soc.Driver{
		Name:    "bad",
		Matches: []dt.Match{{Compatible: "test,bad"}},
		Init: func(s *soc.Session, dev *soc.Device) error {
			order = append(order, "init:bad")
			return fmt.Errorf("synthetic init failure")
		},
	}
	soc.Register(goodDriver)
	soc.Register(badDriver)

	h := fakeHandle(t)
	_, err := soc.ProbeTree(h, tree, dt.G5)
	if err == nil {
		t.Fatal("expected probe to fail")
	}
	if err.Error() == "" {
		t.Fatal("expected a descriptive error")
	}
	if !strings.Contains(err.Error(), "synthetic init failure") {
		t.Errorf("err = %v, want the init failure rather than the unwind failure", err)
	}

	want := []string{"init:good1", "init:good2", "init:bad", "destroy:good2", "destroy:good1"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s (full: %v)", i, order[i], want[i], order)
		}
	}
	if !unwindErrCalled {
		t.Fatal("expected destroy:good1 to have run and returned an error")
	}
}

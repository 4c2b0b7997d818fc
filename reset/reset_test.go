package reset

import (
	"testing"
	"time"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/internal/regsim"
	"culvert.dev/culvert/soc"
	"culvert.dev/culvert/soc/wdt"
)

func fakeSession(t *testing.T) (*soc.Session, *regsim.Map) {
	t.Helper()
	sim := regsim.New()
	h := &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}

	tree, err := dt.Load(dt.G5)
	if err != nil {
		t.Fatalf("load tree: %v", err)
	}
	s, err := soc.ProbeTree(h, tree, dt.G5)
	if err != nil {
		t.Fatalf("probe tree: %v", err)
	}
	t.Cleanup(func() { s.Destroy() })
	return s, sim
}

func TestPerformResetChoreography(t *testing.T) {
	s, sim := fakeSession(t)

	var slept time.Duration
	orig := sleepFunc
	sleepFunc = func(d time.Duration) { slept = d }
	defer func() { sleepFunc = orig }()

	if err := PerformReset(s, "wdt2"); err != nil {
		t.Fatalf("perform reset: %v", err)
	}
	if slept <= 0 {
		t.Error("expected PerformReset to sleep across the reset window")
	}

	v, err := s.DrvdataByName("wdt", "wdt2")
	if err != nil {
		t.Fatalf("drvdata: %v", err)
	}
	_ = v
	_ = sim
}

func TestPerformResetUnknownWatchdog(t *testing.T) {
	s, _ := fakeSession(t)
	orig := sleepFunc
	sleepFunc = func(time.Duration) {}
	defer func() { sleepFunc = orig }()

	if err := PerformReset(s, "wdt9"); err == nil {
		t.Fatal("expected error for unknown watchdog")
	}
}

func TestPreventAllClearsEveryWatchdog(t *testing.T) {
	s, sim := fakeSession(t)
	names := []string{"wdt1", "wdt2", "wdt3"}
	for i := range names {
		sim.Seed(uint32(0x1e78500c+i*0x20), 1) // control register, enable bit set
	}
	if err := PreventAll(s); err != nil {
		t.Fatalf("prevent all: %v", err)
	}
	for _, name := range names {
		v, err := s.DrvdataByName("wdt", name)
		if err != nil {
			t.Fatalf("drvdata %s: %v", name, err)
		}
		ctrl, err := v.(*wdt.WDT).Control()
		if err != nil {
			t.Fatalf("control %s: %v", name, err)
		}
		if ctrl&1 != 0 {
			t.Errorf("%s: enable bit still set, control = %#x", name, ctrl)
		}
	}
}

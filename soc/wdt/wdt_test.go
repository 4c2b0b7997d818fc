package wdt

import (
	"testing"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/internal/regsim"
)

func fakeWDT() (*WDT, *regsim.Map) {
	sim := regsim.New()
	h := &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}
	return &WDT{h: h, Name: "wdt2", base: 0x1e785020}, sim
}

func TestPreventClearsEnableBit(t *testing.T) {
	w, sim := fakeWDT()
	sim.Seed(w.reg(regCtrl), ctrlEnable|ctrlResetSoC)
	if err := w.Prevent(); err != nil {
		t.Fatalf("prevent: %v", err)
	}
	v, _ := w.Control()
	if v&ctrlEnable != 0 {
		t.Errorf("enable bit still set: %#x", v)
	}
}

func TestPerformResetProgramsBridgeInclusiveMask(t *testing.T) {
	w, sim := fakeWDT()
	if err := w.PerformReset(); err != nil {
		t.Fatalf("perform reset: %v", err)
	}
	mask, err := sim.Readl(w.reg(regResetMask))
	if err != nil {
		t.Fatalf("read mask: %v", err)
	}
	if mask != resetMaskBridgeInclusive {
		t.Errorf("reset mask = %#x, want %#x", mask, resetMaskBridgeInclusive)
	}
	reload, _ := sim.Readl(w.reg(regReload))
	if reload != waitMicros {
		t.Errorf("reload = %d, want %d", reload, waitMicros)
	}
	restart, _ := sim.Readl(w.reg(regRestart))
	if restart != restartMagic {
		t.Errorf("restart = %#x, want %#x", restart, restartMagic)
	}
	ctrl, _ := sim.Readl(w.reg(regCtrl))
	if ctrl&ctrlAlternateBoot != 0 {
		t.Error("alternate-boot bit should be cleared")
	}
	if ctrl&(ctrlResetSoC|ctrlResetSystem|ctrlEnable) != (ctrlResetSoC | ctrlResetSystem | ctrlEnable) {
		t.Errorf("ctrl = %#x missing expected bits", ctrl)
	}
}

func TestClearReload(t *testing.T) {
	w, sim := fakeWDT()
	sim.Seed(w.reg(regReload), 0x1234)
	if err := w.ClearReload(); err != nil {
		t.Fatalf("clear reload: %v", err)
	}
	v, _ := sim.Readl(w.reg(regReload))
	if v != 0 {
		t.Errorf("reload = %#x, want 0", v)
	}
}

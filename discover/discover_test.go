package discover

import (
	"testing"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/internal/regsim"
)

func fakeHandle(t *testing.T, rev uint32) (*ahb.Handle, *regsim.Map) {
	t.Helper()
	sim := regsim.New()
	sim.Seed(regSiliconRevision, rev)
	return &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}, sim
}

func TestFilterMaskForG4AndG5(t *testing.T) {
	h, _ := fakeHandle(t, 0x02030303)
	mask, err := filterMaskFor(h)
	if err != nil {
		t.Fatalf("filter mask: %v", err)
	}
	if mask != g4FilterMask {
		t.Errorf("g4 mask = %#x, want %#x", mask, g4FilterMask)
	}

	h, _ = fakeHandle(t, 0x04030303)
	mask, err = filterMaskFor(h)
	if err != nil {
		t.Fatalf("filter mask: %v", err)
	}
	if mask != g5FilterMask {
		t.Errorf("g5 mask = %#x, want %#x", mask, g5FilterMask)
	}
}

func TestFilterMaskForG6IsNoOp(t *testing.T) {
	h, _ := fakeHandle(t, 0x06030303)
	mask, err := filterMaskFor(h)
	if err != nil {
		t.Fatalf("filter mask: %v", err)
	}
	if mask != 0 {
		t.Errorf("g6 mask = %#x, want 0", mask)
	}
}

func TestEnableP2AFromILPCClearsFilterBits(t *testing.T) {
	h, sim := fakeHandle(t, 0x04030303)
	sim.Seed(regMISC, g5FilterMask|0x1)

	if err := enableP2AFromILPC(h); err != nil {
		t.Fatalf("enable p2a: %v", err)
	}
	v, err := h.Readl(regMISC)
	if err != nil {
		t.Fatalf("read misc: %v", err)
	}
	if v&g5FilterMask != 0 {
		t.Errorf("misc = %#x, filter bits still set", v)
	}
	if v&0x1 == 0 {
		t.Error("enable p2a clobbered an unrelated bit")
	}
}

func TestEnableILPCFromP2ASetsStrapAndClearsReadOnly(t *testing.T) {
	h, sim := fakeHandle(t, 0x04030303)
	sim.Seed(regHWStrap, 0)
	sim.Seed(regHICRB, hicrbReadOnly)

	if err := enableILPCFromP2A(h); err != nil {
		t.Fatalf("enable ilpc: %v", err)
	}
	strap, err := h.Readl(regHWStrap)
	if err != nil {
		t.Fatalf("read strap: %v", err)
	}
	if strap&strapSuperIODecode == 0 {
		t.Error("expected SuperIO-decode strap bit set")
	}
	hicrb, err := h.Readl(regHICRB)
	if err != nil {
		t.Fatalf("read hicrb: %v", err)
	}
	if hicrb&hicrbReadOnly != 0 {
		t.Error("expected HICRB read-only bit cleared")
	}
}

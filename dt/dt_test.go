package dt_test

import (
	"testing"

	"culvert.dev/culvert/dt"
)

func TestGenerationFromRevision(t *testing.T) {
	cases := []struct {
		rev  uint32
		want dt.Generation
	}{
		{0x02030303, dt.G4},
		{0x04030303, dt.G5}, // silicon-revision value an AST2500 reads back
		{0x05030303, dt.G6},
		{0x06000001, dt.G6},
	}
	for _, c := range cases {
		gen, err := dt.GenerationFromRevision(c.rev)
		if err != nil {
			t.Fatalf("revision %#x: %v", c.rev, err)
		}
		if gen != c.want {
			t.Errorf("revision %#x: got %v, want %v", c.rev, gen, c.want)
		}
	}
}

func TestGenerationFromRevisionUnknown(t *testing.T) {
	if _, err := dt.GenerationFromRevision(0xffffffff); err == nil {
		t.Fatal("expected error for unrecognised revision")
	}
}

func TestLoadAndQuery(t *testing.T) {
	tree, err := dt.Load(dt.G5)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	scu, ok := tree.FindAlias("scu")
	if !ok {
		t.Fatal("expected scu alias")
	}
	if _, ok := dt.IsCompatible(scu, []dt.Match{{Compatible: "aspeed,ast2500-scu"}}); !ok {
		t.Errorf("scu node not compatible with aspeed,ast2500-scu: %v", scu.Compatible)
	}

	r, err := dt.RegAt(scu, 0)
	if err != nil {
		t.Fatalf("reg: %v", err)
	}
	if r.Start != 0x1e6e2000 {
		t.Errorf("scu base = %#x, want 0x1e6e2000", r.Start)
	}

	mc, ok := dt.FindDeviceType(tree.Root, "memory-controller")
	if !ok || mc.Name != "sdmc@1e6e0000" {
		t.Errorf("FindDeviceType(memory-controller) = %v, %v", mc, ok)
	}

	if _, ok := tree.FindAlias("trace"); !ok {
		t.Error("g5 should carry a trace alias")
	}
}

func TestG4HasNoTrace(t *testing.T) {
	tree, err := dt.Load(dt.G4)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := tree.FindAlias("trace"); ok {
		t.Error("g4 should not carry a trace alias: the bus tracer is g5/g6 hardware only")
	}
}

func TestFindPath(t *testing.T) {
	tree, err := dt.Load(dt.G6)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	n, ok := dt.FindPath(tree.Root, "/ahb/apb/scu@1e6e2000")
	if !ok {
		t.Fatal("expected to resolve absolute path")
	}
	if n.Name != "scu@1e6e2000" {
		t.Errorf("resolved wrong node: %s", n.Name)
	}
}

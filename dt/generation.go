package dt

import (
	"fmt"

	"culvert.dev/culvert/internal/culverr"
)

// Generation identifies which ASPEED AST2xxx family a probed SoC belongs
// to; the devicetree selection and the SoC revision-lookup table both key
// off of it.
type Generation int

const (
	G4 Generation = iota // AST2400
	G5                   // AST2500
	G6                   // AST2600
)

func (g Generation) String() string {
	switch g {
	case G4:
		return "g4"
	case G5:
		return "g5"
	case G6:
		return "g6"
	default:
		return "unknown"
	}
}

// revisionTable maps the high byte of the SCU silicon-revision register
// read by soc.Probe to a Generation, mirroring the compatible-string
// table the source keys its embedded FDT selection from.
var revisionTable = []struct {
	mask, value uint32
	gen         Generation
}{
	{0xff000000, 0x02000000, G4},
	{0xff000000, 0x04000000, G5},
	{0xff000000, 0x05000000, G6},
	{0xff000000, 0x06000000, G6},
}

// GenerationFromRevision selects a Generation from a raw SCU silicon
// revision word.
func GenerationFromRevision(rev uint32) (Generation, error) {
	for _, e := range revisionTable {
		if rev&e.mask == e.value {
			return e.gen, nil
		}
	}
	return 0, fmt.Errorf("dt: unrecognised silicon revision %#x: %w", rev, culverr.NotSupported)
}

// Load builds the devicetree model for the given generation. Each tree is
// built directly (see package doc) rather than decoded from a shipped
// .dtb blob, but the node shape -- names, compatible strings, reg ranges,
// aliases -- mirrors the real AST24xx/25xx/26xx Linux devicetrees closely
// enough for every lookup the soc and discover packages need.
func Load(gen Generation) (*Tree, error) {
	switch gen {
	case G4:
		return g4Tree(), nil
	case G5:
		return g5Tree(), nil
	case G6:
		return g6Tree(), nil
	default:
		return nil, fmt.Errorf("dt: load: unknown generation %d: %w", gen, culverr.NotSupported)
	}
}

// builder is a tiny DSL for constructing a Tree without repeating parent
// bookkeeping at every call site.
type builder struct {
	root    *Node
	aliases map[string]string
	nextPH  uint32
}

func newBuilder() *builder {
	root := &Node{Name: ""}
	return &builder{root: root, aliases: map[string]string{}}
}

func (b *builder) child(parent *Node, name string, compat ...string) *Node {
	n := &Node{Name: name, Compatible: compat, Parent: parent}
	parent.Children = append(parent.Children, n)
	return n
}

func (b *builder) reg(n *Node, start, length uint32) *Node {
	n.Reg = append(n.Reg, RegRange{Start: start, Length: length})
	return n
}

func (b *builder) phandle(n *Node) *Node {
	b.nextPH++
	n.Phandle = b.nextPH
	return n
}

func (b *builder) alias(name string, n *Node) {
	b.aliases[name] = n.Path()
}

func (b *builder) tree() *Tree {
	return &Tree{Root: b.root, Aliases: b.aliases}
}

// commonSocTree builds the subset of the AHB/APB bus shared across every
// generation: clock controller, SDMC, the three watchdogs, SPI flash
// controller, OTP, UART mux/VUART, SCU, the AHBC trace engine when
// hasTracer is set, and the bridge-control nodes. suffix is the
// per-generation compatible prefix; the per-generation trees add no
// further nodes.
func commonSocTree(suffix string, hasTracer bool) (*builder, *Node) {
	b := newBuilder()
	soc := b.child(b.root, "ahb")
	apb := b.child(soc, "apb")

	scu := b.reg(b.child(apb, "scu@1e6e2000", "aspeed,"+suffix+"-scu"), 0x1e6e2000, 0x1000)
	b.alias("scu", scu)

	clk := b.reg(b.child(apb, "clk@1e6e2000", "aspeed,"+suffix+"-clk"), 0x1e6e2000, 0x1000)
	b.alias("clk", clk)

	sdmc := b.reg(b.child(apb, "sdmc@1e6e0000", "aspeed,"+suffix+"-sdmc"), 0x1e6e0000, 0x174)
	b.alias("sdmc", sdmc)
	sdmc.DeviceType = "memory-controller"

	for i, name := range []string{"wdt1", "wdt2", "wdt3"} {
		addr := uint32(0x1e785000 + i*0x20)
		wdt := b.reg(b.child(apb, fmt.Sprintf("wdt@%x", addr), "aspeed,"+suffix+"-wdt"), addr, 0x20)
		b.alias(name, wdt)
	}

	fmc := b.reg(b.child(soc, "spi@1e620000", "aspeed,"+suffix+"-fmc"), 0x1e620000, 0xc4)
	b.reg(fmc, 0x2000_0000, 128<<20) // flash aperture window, second reg entry
	b.alias("spi", fmc)

	otp := b.reg(b.child(apb, "otp@1e6f2000", "aspeed,"+suffix+"-otp"), 0x1e6f2000, 0x200)
	b.alias("otp", otp)

	uartmux := b.reg(b.child(apb, "uartmux", "aspeed,"+suffix+"-uart-routing"), 0x1e6e2000, 0x1000)
	b.alias("uartmux", uartmux)

	vuart := b.reg(b.child(apb, "vuart@1e787000", "aspeed,"+suffix+"-vuart"), 0x1e787000, 0x40)
	b.alias("vuart", vuart)

	// g4 has no bus tracer; only build the ahbc node, and the alias
	// soc/trace keys off, for generations that have one.
	if hasTracer {
		ahbc := b.reg(b.child(soc, "ahbc@1e600000", "aspeed,"+suffix+"-ahbc"), 0x1e600000, 0x100)
		b.alias("trace", ahbc)
	}

	lpcCtrl := b.reg(b.child(apb, "lpc@1e789000", "aspeed,"+suffix+"-lpc-ctrl"), 0x1e789000, 0x1000)
	b.alias("lpc-ctrl", lpcCtrl)

	ilpcctl := b.child(apb, "ilpcctl", "aspeed,"+suffix+"-ilpcctl")
	b.alias("ilpcctl", ilpcctl)

	debugctl := b.child(apb, "debugctl", "aspeed,"+suffix+"-debugctl")
	b.alias("debugctl", debugctl)

	pciectl := b.child(apb, "pciectl", "aspeed,"+suffix+"-pciectl")
	b.alias("pciectl", pciectl)

	return b, soc
}

func g4Tree() *Tree {
	b, _ := commonSocTree("ast2400", false)
	return b.tree()
}

func g5Tree() *Tree {
	b, _ := commonSocTree("ast2500", true)
	return b.tree()
}

func g6Tree() *Tree {
	b, soc := commonSocTree("ast2600", true)
	// AST2600 adds a second watchdog bank and the 2-bus SCU split; not
	// modeled further since no driver in this repo keys off it yet.
	_ = soc
	return b.tree()
}

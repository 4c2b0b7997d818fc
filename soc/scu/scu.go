// package scu drives the System Control Unit register block: silicon
// strap bits, the MISC write-filter/disable bits consumed by the
// bridge-enforcement drivers, and the coprocessor enable twiddle the
// on-die JTAG coprocessor bring-up path depends on.
package scu

import (
	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/soc"
)

// Register offsets relative to the SCU base.
const (
	regHWStrap      = 0x70
	regMISC         = 0x2c
	regPCIEConfig   = 0x180
	regCoprocessor  = 0x100
	regSiliconRev   = 0x7c
)

const (
	StrapSuperIODecode = 1 << 20
	StrapDebugUARTSel  = 1 << 29

	MISCDebugUARTDisable = 1 << 10
)

// P2A write-filter bit layout differs per generation: SCU MISC bits
// 22-25 assign to different regions on g4 vs g5, and are a no-op on g6.
// FilterBit below returns the per-region bit for the probed generation.
type Region int

const (
	RegionFirmware Region = iota
	RegionSoCIO
	RegionBMCFlash
	RegionHostFlash
	RegionDRAM
	RegionLPCHost
	RegionReserved
)

var g4Filters = map[Region]uint32{
	RegionDRAM:     1 << 22,
	RegionBMCFlash: 1 << 23, // SPI
	RegionSoCIO:    1 << 24,
	RegionFirmware: 1 << 25, // FMC
}

var g5Filters = map[Region]uint32{
	RegionDRAM:     1 << 22,
	RegionLPCHost:  1 << 23,
	RegionSoCIO:    1 << 24,
	RegionBMCFlash: 1 << 25, // FLASH
}

// SCU is the driver instance bound to the scu@... devicetree node.
type SCU struct {
	h    *ahb.Handle
	base uint32
	gen  dt.Generation
}

func init() {
	soc.Register(&soc.Driver{
		Name:    "scu",
		Matches: matches,
		Init:    initDriver,
	})
}

var matches = []dt.Match{
	{Compatible: "aspeed,ast2400-scu"},
	{Compatible: "aspeed,ast2500-scu"},
	{Compatible: "aspeed,ast2600-scu"},
}

func initDriver(s *soc.Session, dev *soc.Device) error {
	r, err := dt.RegAt(dev.Node, 0)
	if err != nil {
		return err
	}
	dev.Drvdata = New(s.AHB, r.Start, s.Generation)
	return nil
}

// New binds an SCU instance to an AHB handle directly, bypassing the
// devicetree-driven soc.Probe flow. Used by initDriver above, and by the
// bridge-enforcement drivers' tests that need an SCU fixture without a
// full session.
func New(h *ahb.Handle, base uint32, gen dt.Generation) *SCU {
	return &SCU{h: h, base: base, gen: gen}
}

func (c *SCU) reg(off uint32) uint32 { return c.base + off }

// Strap returns the raw HW_STRAP register.
func (c *SCU) Strap() (uint32, error) { return c.h.Readl(c.reg(regHWStrap)) }

// SiliconRevision returns the raw silicon-revision register, the same
// value soc.Probe itself already consumed to pick the generation.
func (c *SCU) SiliconRevision() (uint32, error) { return c.h.Readl(c.reg(regSiliconRev)) }

// MISC returns the raw MISC register.
func (c *SCU) MISC() (uint32, error) { return c.h.Readl(c.reg(regMISC)) }

// SetMISCBits sets (or, when set is false, clears) every bit in mask of
// the MISC register, read-modify-write.
func (c *SCU) SetMISCBits(mask uint32, set bool) error {
	v, err := c.h.Readl(c.reg(regMISC))
	if err != nil {
		return err
	}
	if set {
		v |= mask
	} else {
		v &^= mask
	}
	return c.h.Writel(c.reg(regMISC), v)
}

// SetStrapBits sets or clears bits of HW_STRAP. Older generations alias
// this address as a write-1-to-clear silicon-ID register; that quirk is
// intentionally not reproduced here since nothing in this driver targets
// that generation through this path.
func (c *SCU) SetStrapBits(mask uint32, set bool) error {
	v, err := c.h.Readl(c.reg(regHWStrap))
	if err != nil {
		return err
	}
	if set {
		v |= mask
	} else {
		v &^= mask
	}
	return c.h.Writel(c.reg(regHWStrap), v)
}

// PCIEConfig returns the raw PCIE_CONFIG register.
func (c *SCU) PCIEConfig() (uint32, error) { return c.h.Readl(c.reg(regPCIEConfig)) }

// SetPCIEConfigBits sets or clears bits of PCIE_CONFIG: the endpoint and
// function enable bits 0, 1, 6, 8, 9, 14.
func (c *SCU) SetPCIEConfigBits(mask uint32, set bool) error {
	v, err := c.h.Readl(c.reg(regPCIEConfig))
	if err != nil {
		return err
	}
	if set {
		v |= mask
	} else {
		v &^= mask
	}
	return c.h.Writel(c.reg(regPCIEConfig), v)
}

// FilterBit returns the MISC write-filter bit for region on the probed
// generation, and false if that generation has no such bit (g6, or a
// region g4/g5 don't expose).
func (c *SCU) FilterBit(r Region) (uint32, bool) {
	var table map[Region]uint32
	switch c.gen {
	case dt.G4:
		table = g4Filters
	case dt.G5:
		table = g5Filters
	default:
		return 0, false
	}
	bit, ok := table[r]
	return bit, ok
}

// ClearP2AFilters unconditionally clears every write-filter bit this
// generation defines, an idempotent enable that a caller can run whether
// or not the filters were already clear.
func (c *SCU) ClearP2AFilters() error {
	var table map[Region]uint32
	switch c.gen {
	case dt.G4:
		table = g4Filters
	case dt.G5:
		table = g5Filters
	case dt.G6:
		return nil
	}
	var mask uint32
	for _, bit := range table {
		mask |= bit
	}
	if mask == 0 {
		return nil
	}
	return c.SetMISCBits(mask, false)
}

// EnableCoprocessor and DisableCoprocessor twiddle the SCU bit that gates
// the on-die coprocessor used by the JTAG bring-up path; folded into scu
// since no other driver owns this offset.
func (c *SCU) EnableCoprocessor() error  { return c.setCoprocessor(true) }
func (c *SCU) DisableCoprocessor() error { return c.setCoprocessor(false) }

func (c *SCU) setCoprocessor(enable bool) error {
	v, err := c.h.Readl(c.reg(regCoprocessor))
	if err != nil {
		return err
	}
	const coprocessorEnable = 1 << 0
	if enable {
		v |= coprocessorEnable
	} else {
		v &^= coprocessorEnable
	}
	return c.h.Writel(c.reg(regCoprocessor), v)
}

// package sdram drives the SDRAM memory controller: DRAM/VRAM size
// decoding and the SDMC MCR_GMP XDMA-constrained-to-VGA-buffer bit,
// whose offset within the register moves per generation.
package sdram

import (
	"fmt"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/soc"
)

const (
	regConfig = 0x04 // MCR_CONFIG
	regGMP    = 0x08 // MCR_GMP
)

// dramSizes and vramSizes decode MCR_CONFIG bits 0..3.
var dramSizes = []uint64{64 << 20, 128 << 20, 256 << 20, 512 << 20}
var vramSizes = []uint64{8 << 20, 16 << 20, 32 << 20, 64 << 20}

// gmpBit is the per-generation offset of the "XDMA constrained to VGA
// buffer" bit within MCR_GMP.
var gmpBit = map[dt.Generation]uint32{
	dt.G4: 16,
	dt.G5: 17,
	dt.G6: 18,
}

// SDRAM is the driver instance bound to the sdmc@... devicetree node.
type SDRAM struct {
	h    *ahb.Handle
	base uint32
	gen  dt.Generation
}

func init() {
	soc.Register(&soc.Driver{
		Name:    "sdram",
		Matches: matches,
		Init:    initDriver,
	})
}

var matches = []dt.Match{
	{Compatible: "aspeed,ast2400-sdmc"},
	{Compatible: "aspeed,ast2500-sdmc"},
	{Compatible: "aspeed,ast2600-sdmc"},
}

func initDriver(s *soc.Session, dev *soc.Device) error {
	r, err := dt.RegAt(dev.Node, 0)
	if err != nil {
		return err
	}
	dev.Drvdata = &SDRAM{h: s.AHB, base: r.Start, gen: s.Generation}
	return nil
}

// DRAMSize returns the decoded total DRAM size in bytes.
func (s *SDRAM) DRAMSize() (uint64, error) {
	cfg, err := s.h.Readl(s.base + regConfig)
	if err != nil {
		return 0, fmt.Errorf("sdram: dram size: %w", err)
	}
	return dramSizes[cfg&0x3], nil
}

// VRAMSize returns the decoded VGA-reserved buffer size in bytes.
func (s *SDRAM) VRAMSize() (uint64, error) {
	cfg, err := s.h.Readl(s.base + regConfig)
	if err != nil {
		return 0, fmt.Errorf("sdram: vram size: %w", err)
	}
	return vramSizes[(cfg>>2)&0x3], nil
}

// XDMAConstrained reports whether XDMA transfers are constrained to the
// VGA buffer (the write-filter path that pciectl's XDMA endpoints assume
// is in effect when restricted).
func (s *SDRAM) XDMAConstrained() (bool, error) {
	bit, ok := gmpBit[s.gen]
	if !ok {
		return false, fmt.Errorf("sdram: unknown generation")
	}
	gmp, err := s.h.Readl(s.base + regGMP)
	if err != nil {
		return false, fmt.Errorf("sdram: xdma constrained: %w", err)
	}
	return gmp&(1<<bit) != 0, nil
}

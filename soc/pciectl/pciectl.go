// package pciectl implements the PCIe bridge-enforcement controller:
// six endpoints (the VGA and BMC devices and their MMIO and XDMA
// functions) gated by SCU PCIE_CONFIG enable bits, with the MMIO endpoints additionally carrying a vector of
// per-region write-filter bits in SCU MISC.
package pciectl

import (
	"fmt"
	"io"

	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/soc"
	"culvert.dev/culvert/soc/bridgectl"
	"culvert.dev/culvert/soc/scu"
)

// endpoint enable bits: SCU PCIE_CONFIG bits 0, 1, 6, 8, 9, 14.
const (
	bitVGAEnable  = 1 << 0
	bitVGAMMIO    = 1 << 1
	bitVGAXDMA    = 1 << 6
	bitBMCEnable  = 1 << 8
	bitBMCMMIO    = 1 << 9
	bitBMCXDMA    = 1 << 14
)

// region is one of the seven named physical ranges the P2A write filter
// can cover.
type region struct {
	name   string
	start  uint32
	length uint32
	r      scu.Region
}

var regions = []region{
	{"Firmware", 0x2000_0000, 128 << 20, scu.RegionFirmware},
	{"SoC IO", 0x1e60_0000, 2 << 20, scu.RegionSoCIO},
	{"BMC Flash", 0x2000_0000, 32 << 20, scu.RegionBMCFlash},
	{"Host Flash", 0x3800_0000, 32 << 20, scu.RegionHostFlash},
	{"DRAM", 0x8000_0000, 1 << 30, scu.RegionDRAM},
	{"LPC Host", 0xfff0_0000, 1 << 20, scu.RegionLPCHost},
	{"Reserved", 0x0, 0, scu.RegionReserved},
}

type endpoint struct {
	name      string
	enableBit uint32
	mmio      bool // MMIO endpoints carry the per-region filter vector
}

var endpoints = []endpoint{
	{"VGA PCIe device", bitVGAEnable, false},
	{"MMIO on VGA device", bitVGAMMIO, true},
	{"XDMA on VGA device", bitVGAXDMA, false},
	{"BMC PCIe device", bitBMCEnable, false},
	{"MMIO on BMC device", bitBMCMMIO, true},
	{"XDMA on BMC device", bitBMCXDMA, false},
}

// Controller is the pciectl driver instance.
type Controller struct {
	scu *scu.SCU
}

var _ bridgectl.Controller = (*Controller)(nil)

func init() {
	soc.Register(&soc.Driver{
		Name:    "pciectl",
		Matches: matches,
		Init:    initDriver,
	})
}

var matches = []dt.Match{
	{Compatible: "aspeed,ast2400-pciectl"},
	{Compatible: "aspeed,ast2500-pciectl"},
	{Compatible: "aspeed,ast2600-pciectl"},
}

func initDriver(s *soc.Session, dev *soc.Device) error {
	v, err := s.Drvdata("scu")
	if err != nil {
		return fmt.Errorf("pciectl: needs scu: %w", err)
	}
	dev.Drvdata = &Controller{scu: v.(*scu.SCU)}
	return nil
}

func (c *Controller) Name() string { return "PCIe bridges" }

// Enforce applies the transition to every endpoint and, for MMIO
// endpoints, to every region's filter bit: permissive clears all filter
// bits and enables the endpoint; restricted sets all filter bits and
// enables the endpoint; disabled clears the endpoint-enable bit.
func (c *Controller) Enforce(m bridgectl.Mode) error {
	for _, ep := range endpoints {
		switch m {
		case bridgectl.Disabled:
			if err := c.scu.SetPCIEConfigBits(ep.enableBit, false); err != nil {
				return err
			}
			continue
		case bridgectl.Restricted:
			if err := c.scu.SetPCIEConfigBits(ep.enableBit, true); err != nil {
				return err
			}
		case bridgectl.Permissive:
			if err := c.scu.SetPCIEConfigBits(ep.enableBit, true); err != nil {
				return err
			}
		default:
			return fmt.Errorf("pciectl: enforce: unknown mode %v", m)
		}
		if !ep.mmio {
			continue
		}
		for _, r := range regions {
			bit, ok := c.scu.FilterBit(r.r)
			if !ok {
				continue
			}
			if err := c.scu.SetMISCBits(bit, m == bridgectl.Restricted); err != nil {
				return err
			}
		}
	}
	return nil
}

// Status returns the least-permissive mode across every endpoint: any
// disabled endpoint makes the whole controller read as Disabled; any
// region filter bit set on an enabled MMIO endpoint makes it Restricted;
// otherwise Permissive.
func (c *Controller) Status() (bridgectl.Mode, error) {
	cfg, err := c.scu.PCIEConfig()
	if err != nil {
		return 0, err
	}
	misc, err := c.scu.MISC()
	if err != nil {
		return 0, err
	}
	agg := bridgectl.Permissive
	for _, ep := range endpoints {
		if cfg&ep.enableBit == 0 {
			if agg < bridgectl.Disabled {
				agg = bridgectl.Disabled
			}
			continue
		}
		if !ep.mmio {
			continue
		}
		for _, r := range regions {
			bit, ok := c.scu.FilterBit(r.r)
			if !ok {
				continue
			}
			if misc&bit != 0 && agg < bridgectl.Restricted {
				agg = bridgectl.Restricted
			}
		}
	}
	return agg, nil
}

func (c *Controller) Report(w io.Writer) error {
	cfg, err := c.scu.PCIEConfig()
	if err != nil {
		return err
	}
	misc, err := c.scu.MISC()
	if err != nil {
		return err
	}
	for _, ep := range endpoints {
		state := "Disabled"
		if cfg&ep.enableBit != 0 {
			state = "Enabled"
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", ep.name, state); err != nil {
			return err
		}
		if !ep.mmio || cfg&ep.enableBit == 0 {
			continue
		}
		for _, r := range regions {
			bit, ok := c.scu.FilterBit(r.r)
			rw := "Read-write"
			if ok && misc&bit != 0 {
				rw = "Read-only"
			}
			if _, err := fmt.Fprintf(w, "0x%08x-0x%08x (%s): %s\n", r.start, r.start+r.length, r.name, rw); err != nil {
				return err
			}
		}
	}
	return nil
}

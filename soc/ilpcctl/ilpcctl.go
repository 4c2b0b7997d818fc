// package ilpcctl implements the iLPC bridge-enforcement controller:
// SuperIO decode enable (SCU strap bit 20) and iLPC read-only (LPC HICRB
// bit 6).
package ilpcctl

import (
	"fmt"
	"io"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/soc"
	"culvert.dev/culvert/soc/bridgectl"
	"culvert.dev/culvert/soc/scu"
)

const (
	lpcHICRB       = 0x80
	hicrbReadOnly  = 1 << 6
)

// Controller is the ilpcctl driver instance.
type Controller struct {
	h       *ahb.Handle
	scu     *scu.SCU
	lpcBase uint32
}

var _ bridgectl.Controller = (*Controller)(nil)

func init() {
	soc.Register(&soc.Driver{
		Name:    "ilpcctl",
		Matches: matches,
		Init:    initDriver,
	})
}

var matches = []dt.Match{
	{Compatible: "aspeed,ast2400-ilpcctl"},
	{Compatible: "aspeed,ast2500-ilpcctl"},
	{Compatible: "aspeed,ast2600-ilpcctl"},
}

func initDriver(s *soc.Session, dev *soc.Device) error {
	v, err := s.Drvdata("scu")
	if err != nil {
		return fmt.Errorf("ilpcctl: needs scu: %w", err)
	}
	lpc, ok := s.Tree.FindAlias("lpc-ctrl")
	if !ok {
		return fmt.Errorf("ilpcctl: no lpc-ctrl node")
	}
	r, err := dt.RegAt(lpc, 0)
	if err != nil {
		return err
	}
	dev.Drvdata = &Controller{h: s.AHB, scu: v.(*scu.SCU), lpcBase: r.Start}
	return nil
}

func (c *Controller) Name() string { return "iLPC2AHB Bridge" }

// Enforce implements the three mode transitions: disabled clears
// SuperIO decode; restricted sets iLPC read-only and ensures decode;
// permissive clears iLPC read-only and ensures decode.
func (c *Controller) Enforce(m bridgectl.Mode) error {
	switch m {
	case bridgectl.Disabled:
		return c.scu.SetStrapBits(scu.StrapSuperIODecode, false)
	case bridgectl.Restricted:
		if err := c.scu.SetStrapBits(scu.StrapSuperIODecode, true); err != nil {
			return err
		}
		return c.setReadOnly(true)
	case bridgectl.Permissive:
		if err := c.scu.SetStrapBits(scu.StrapSuperIODecode, true); err != nil {
			return err
		}
		return c.setReadOnly(false)
	default:
		return fmt.Errorf("ilpcctl: enforce: unknown mode %v", m)
	}
}

func (c *Controller) setReadOnly(ro bool) error {
	v, err := c.h.Readl(c.lpcBase + lpcHICRB)
	if err != nil {
		return err
	}
	if ro {
		v |= hicrbReadOnly
	} else {
		v &^= hicrbReadOnly
	}
	return c.h.Writel(c.lpcBase+lpcHICRB, v)
}

// Status is the inverse read of whatever Enforce writes.
func (c *Controller) Status() (bridgectl.Mode, error) {
	strap, err := c.scu.Strap()
	if err != nil {
		return 0, err
	}
	if strap&scu.StrapSuperIODecode == 0 {
		return bridgectl.Disabled, nil
	}
	hicrb, err := c.h.Readl(c.lpcBase + lpcHICRB)
	if err != nil {
		return 0, err
	}
	if hicrb&hicrbReadOnly != 0 {
		return bridgectl.Restricted, nil
	}
	return bridgectl.Permissive, nil
}

func (c *Controller) Report(w io.Writer) error {
	m, err := c.Status()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s: %s\n", c.Name(), m)
	return err
}

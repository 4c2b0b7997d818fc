// package clk drives the SoC clock controller: clock-select and
// clock-gating bits, including the sticky ARM clock gate the watchdog
// reset choreography must clear after a reset.
package clk

import (
	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/soc"
)

const (
	regClockStop = 0x80
	regClockSel  = 0x08

	gateARM = 1 << 0
)

// Clock is the driver instance bound to the clk@... devicetree node.
type Clock struct {
	h    *ahb.Handle
	base uint32
}

func init() {
	soc.Register(&soc.Driver{
		Name:    "clk",
		Matches: matches,
		Init:    initDriver,
	})
}

var matches = []dt.Match{
	{Compatible: "aspeed,ast2400-clk"},
	{Compatible: "aspeed,ast2500-clk"},
	{Compatible: "aspeed,ast2600-clk"},
}

func initDriver(s *soc.Session, dev *soc.Device) error {
	r, err := dt.RegAt(dev.Node, 0)
	if err != nil {
		return err
	}
	dev.Drvdata = &Clock{h: s.AHB, base: r.Start}
	return nil
}

// Select the 1 MHz tick source used to program the watchdog's reload
// value in units of microseconds.
func (c *Clock) Select1MHz(source uint32) error {
	return c.h.Writel(c.base+regClockSel, source)
}

// UngateARM clears the ARM clock-gate bit. The gate is sticky across a
// watchdog reset, so this must run as part of the post-reset sequence,
// not just at driver init.
func (c *Clock) UngateARM() error {
	v, err := c.h.Readl(c.base + regClockStop)
	if err != nil {
		return err
	}
	v &^= gateARM
	return c.h.Writel(c.base+regClockStop, v)
}

// ARMGated reports whether the ARM clock gate is currently set.
func (c *Clock) ARMGated() (bool, error) {
	v, err := c.h.Readl(c.base + regClockStop)
	if err != nil {
		return false, err
	}
	return v&gateARM != 0, nil
}

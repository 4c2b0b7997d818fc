// package vuart exposes the host/BMC virtual UART handshake registers.
package vuart

import (
	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/soc"
)

const (
	regGCRA = 0x20 // general control A: enable, IRQ routing
	regGCRB = 0x24 // general control B: host-side SIRQ polarity/number
	regAddr = 0x28 // host-visible legacy IO port address
)

const gcraEnable = 1 << 0

// VUART is the driver instance bound to the vuart@... devicetree node.
type VUART struct {
	h    *ahb.Handle
	base uint32
}

func init() {
	soc.Register(&soc.Driver{
		Name:    "vuart",
		Matches: matches,
		Init:    initDriver,
	})
}

var matches = []dt.Match{
	{Compatible: "aspeed,ast2400-vuart"},
	{Compatible: "aspeed,ast2500-vuart"},
	{Compatible: "aspeed,ast2600-vuart"},
}

func initDriver(s *soc.Session, dev *soc.Device) error {
	r, err := dt.RegAt(dev.Node, 0)
	if err != nil {
		return err
	}
	dev.Drvdata = &VUART{h: s.AHB, base: r.Start}
	return nil
}

// Enable and Disable toggle the VUART's legacy-IO decode.
func (v *VUART) Enable() error  { return v.setEnable(true) }
func (v *VUART) Disable() error { return v.setEnable(false) }

func (v *VUART) setEnable(enable bool) error {
	r, err := v.h.Readl(v.base + regGCRA)
	if err != nil {
		return err
	}
	if enable {
		r |= gcraEnable
	} else {
		r &^= gcraEnable
	}
	return v.h.Writel(v.base+regGCRA, r)
}

// SetLegacyAddr programs the host-visible legacy IO port address
// (e.g. 0x3f8 for COM1).
func (v *VUART) SetLegacyAddr(addr uint32) error {
	return v.h.Writel(v.base+regAddr, addr)
}

// LegacyAddr returns the currently programmed legacy IO port address.
func (v *VUART) LegacyAddr() (uint32, error) {
	return v.h.Readl(v.base + regAddr)
}

// package uartmux flips the SoC's physical-UART routing strap.
package uartmux

import (
	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/soc"
)

const regRouting = 0x0c

// Route selects which physical UART a logical console is routed to.
type Route uint32

const (
	RouteUART1 Route = 0
	RouteUART5 Route = 1
)

// Mux is the driver instance bound to the uartmux devicetree node.
type Mux struct {
	h    *ahb.Handle
	base uint32
}

func init() {
	soc.Register(&soc.Driver{
		Name:    "uartmux",
		Matches: matches,
		Init:    initDriver,
	})
}

var matches = []dt.Match{
	{Compatible: "aspeed,ast2400-uart-routing"},
	{Compatible: "aspeed,ast2500-uart-routing"},
	{Compatible: "aspeed,ast2600-uart-routing"},
}

func initDriver(s *soc.Session, dev *soc.Device) error {
	r, err := dt.RegAt(dev.Node, 0)
	if err != nil {
		return err
	}
	dev.Drvdata = &Mux{h: s.AHB, base: r.Start}
	return nil
}

// Set routes logical channel ch to route.
func (m *Mux) Set(ch int, route Route) error {
	v, err := m.h.Readl(m.base + regRouting)
	if err != nil {
		return err
	}
	shift := uint32(ch) * 4
	v &^= 0xf << shift
	v |= uint32(route) << shift
	return m.h.Writel(m.base+regRouting, v)
}

// Get returns the route currently set for logical channel ch.
func (m *Mux) Get(ch int) (Route, error) {
	v, err := m.h.Readl(m.base + regRouting)
	if err != nil {
		return 0, err
	}
	shift := uint32(ch) * 4
	return Route((v >> shift) & 0xf), nil
}

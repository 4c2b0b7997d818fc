// package debugctl implements the debug-UART bridge-enforcement
// controller. Unlike ilpcctl and pciectl it has no restricted mode: the
// debug UART has no half-measure between reachable and unreachable.
package debugctl

import (
	"fmt"
	"io"

	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/soc"
	"culvert.dev/culvert/soc/bridgectl"
	"culvert.dev/culvert/soc/scu"
)

// Controller is the debugctl driver instance.
type Controller struct {
	scu *scu.SCU
}

var _ bridgectl.Controller = (*Controller)(nil)

func init() {
	soc.Register(&soc.Driver{
		Name:    "debugctl",
		Matches: matches,
		Init:    initDriver,
	})
}

var matches = []dt.Match{
	{Compatible: "aspeed,ast2400-debugctl"},
	{Compatible: "aspeed,ast2500-debugctl"},
	{Compatible: "aspeed,ast2600-debugctl"},
}

func initDriver(s *soc.Session, dev *soc.Device) error {
	v, err := s.Drvdata("scu")
	if err != nil {
		return fmt.Errorf("debugctl: needs scu: %w", err)
	}
	dev.Drvdata = &Controller{scu: v.(*scu.SCU)}
	return nil
}

func (c *Controller) Name() string { return "Debug UART" }

// Enforce: disabled sets the MISC disable bit, anything else clears it.
// There is no restricted mode to collapse toward, since the debug UART
// has no intermediate state between reachable and unreachable.
func (c *Controller) Enforce(m bridgectl.Mode) error {
	switch m {
	case bridgectl.Disabled:
		return c.scu.SetMISCBits(scu.MISCDebugUARTDisable, true)
	case bridgectl.Restricted, bridgectl.Permissive:
		return c.scu.SetMISCBits(scu.MISCDebugUARTDisable, false)
	default:
		return fmt.Errorf("debugctl: enforce: unknown mode %v", m)
	}
}

func (c *Controller) Status() (bridgectl.Mode, error) {
	misc, err := c.scu.MISC()
	if err != nil {
		return 0, err
	}
	if misc&scu.MISCDebugUARTDisable != 0 {
		return bridgectl.Disabled, nil
	}
	return bridgectl.Permissive, nil
}

// Port reports which physical UART (1 or 5) carries the debug monitor,
// selected by SCU strap bit 29.
func (c *Controller) Port() (int, error) {
	strap, err := c.scu.Strap()
	if err != nil {
		return 0, err
	}
	if strap&scu.StrapDebugUARTSel != 0 {
		return 5, nil
	}
	return 1, nil
}

func (c *Controller) Report(w io.Writer) error {
	m, err := c.Status()
	if err != nil {
		return err
	}
	port, err := c.Port()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s: %s (UART%d)\n", c.Name(), m, port)
	return err
}

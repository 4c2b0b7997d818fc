// package wdt drives one ASPEED watchdog-timer instance and implements
// the watchdog-initiated self-reset sequence.
package wdt

import (
	"fmt"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/soc"
)

// Register offsets relative to one WDT's base, per the common
// ASPEED watchdog register layout.
const (
	regReload  = 0x04
	regRestart = 0x08
	regCtrl    = 0x0c
)

const (
	ctrlEnable       = 1 << 0
	ctrlResetSystem  = 1 << 1
	ctrlClock1MHz    = 1 << 4
	ctrlResetSoC     = 1 << 5
	ctrlAlternateBoot = 1 << 7

	restartMagic = 0x4755

	// resetMaskBridgeInclusive excludes SPI, X-DMA, MCTP, and SDRAM from
	// the reset domain but includes the AHB bridges themselves.
	resetMaskBridgeInclusive = 0x023ffffb

	// waitMicros is the programmed wait before the reset fires: 5s of
	// 1MHz ticks.
	waitMicros = 5_000_000
)

// regResetMask is a second register some generations expose to scope the
// reset domain; modeled as base+0x1c to keep every WDT instance
// self-contained without a generation switch in this driver.
const regResetMask = 0x1c

// WDT is one instantiated watchdog.
type WDT struct {
	h    *ahb.Handle
	Name string
	base uint32
}

func init() {
	soc.Register(&soc.Driver{
		Name:    "wdt",
		Matches: matches,
		Init:    initDriver,
	})
}

var matches = []dt.Match{
	{Compatible: "aspeed,ast2400-wdt"},
	{Compatible: "aspeed,ast2500-wdt"},
	{Compatible: "aspeed,ast2600-wdt"},
}

func initDriver(s *soc.Session, dev *soc.Device) error {
	r, err := dt.RegAt(dev.Node, 0)
	if err != nil {
		return err
	}
	dev.Drvdata = &WDT{h: s.AHB, Name: dev.Node.Name, base: r.Start}
	return nil
}

func (w *WDT) reg(off uint32) uint32 { return w.base + off }

// Control returns the raw control register.
func (w *WDT) Control() (uint32, error) { return w.h.Readl(w.reg(regCtrl)) }

// Prevent clears the enable bit, stopping any firmware watchdog that may
// be running.
func (w *WDT) Prevent() error {
	v, err := w.h.Readl(w.reg(regCtrl))
	if err != nil {
		return fmt.Errorf("wdt: %s: prevent: %w", w.Name, err)
	}
	v &^= ctrlEnable
	if err := w.h.Writel(w.reg(regCtrl), v); err != nil {
		return fmt.Errorf("wdt: %s: prevent: %w", w.Name, err)
	}
	return nil
}

// PreventAll iterates the WDT instances (wdt1..wdt3) and calls Prevent on
// each that is present in the devicetree.
func PreventAll(s *soc.Session) error {
	for _, name := range []string{"wdt1", "wdt2", "wdt3"} {
		v, err := s.DrvdataByName("wdt", name)
		if err != nil {
			continue // not every generation's tree carries all three
		}
		if err := v.(*WDT).Prevent(); err != nil {
			return err
		}
	}
	return nil
}

// WaitMicros is the fixed wait programmed by PerformReset, exported so
// the caller's host-side sleep (step 6) can add its own margin.
const WaitMicros = waitMicros

// PerformReset programs w to reset the SoC, including the AHB bridges
// but excluding SPI/X-DMA/MCTP/SDRAM. It does not itself invoke the AHB
// release/reinit hooks or sleep; that
// choreography lives in package reset, which needs the current ahb.Handle
// and host-side time.Sleep, neither of which this package depends on.
func (w *WDT) PerformReset() error {
	if _, err := w.h.Readl(w.reg(regCtrl)); err != nil {
		return fmt.Errorf("wdt: %s: perform-reset: read ctrl: %w", w.Name, err)
	}

	if err := w.h.Writel(w.reg(regCtrl), 0); err != nil {
		return fmt.Errorf("wdt: %s: perform-reset: stop: %w", w.Name, err)
	}
	if err := w.h.Writel(w.reg(regResetMask), resetMaskBridgeInclusive); err != nil {
		return fmt.Errorf("wdt: %s: perform-reset: reset mask: %w", w.Name, err)
	}
	if err := w.h.Writel(w.reg(regReload), waitMicros); err != nil {
		return fmt.Errorf("wdt: %s: perform-reset: reload: %w", w.Name, err)
	}
	if err := w.h.Writel(w.reg(regRestart), restartMagic); err != nil {
		return fmt.Errorf("wdt: %s: perform-reset: restart: %w", w.Name, err)
	}
	ctrl := uint32(ctrlResetSoC | ctrlResetSystem | ctrlEnable | ctrlClock1MHz)
	ctrl &^= ctrlAlternateBoot
	if err := w.h.Writel(w.reg(regCtrl), ctrl); err != nil {
		return fmt.Errorf("wdt: %s: perform-reset: arm: %w", w.Name, err)
	}
	return nil
}

// ClearReload zeroes the reload register so a subsequent watchdog is not
// left latent.
func (w *WDT) ClearReload() error {
	if err := w.h.Writel(w.reg(regReload), 0); err != nil {
		return fmt.Errorf("wdt: %s: clear-reload: %w", w.Name, err)
	}
	return nil
}

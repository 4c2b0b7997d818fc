// package reset implements the watchdog-initiated self-reset sequence:
// mask every firmware watchdog, program one watchdog to fire a
// bridge-inclusive SoC reset, release the current transport's mirrored
// window state across the reset, and bring the clock and watchdog state
// back to a clean condition afterward.
package reset

import (
	"fmt"
	"time"

	"culvert.dev/culvert/host"
	"culvert.dev/culvert/soc"
	"culvert.dev/culvert/soc/clk"
	"culvert.dev/culvert/soc/wdt"
)

// sleepFunc is time.Sleep by default; tests override it to skip the real
// multi-second watchdog wait.
var sleepFunc = time.Sleep

// PreventAll clears the enable bit of every watchdog instance, stopping
// any firmware watchdog that might otherwise race the reset.
func PreventAll(s *soc.Session) error {
	return wdt.PreventAll(s)
}

// PerformReset runs the full self-reset choreography against the named
// watchdog instance (e.g. "wdt2"), using the session's AHB handle to
// invoke the current transport's release/reinit hooks across the reset.
func PerformReset(s *soc.Session, wdtName string) error {
	v, err := s.DrvdataByName("wdt", wdtName)
	if err != nil {
		return fmt.Errorf("reset: %s: %w", wdtName, err)
	}
	w := v.(*wdt.WDT)

	cv, err := s.Drvdata("clk")
	if err != nil {
		return fmt.Errorf("reset: %s: %w", wdtName, err)
	}
	clock := cv.(*clk.Clock)

	if err := clock.Select1MHz(1); err != nil {
		return fmt.Errorf("reset: %s: select clock: %w", wdtName, err)
	}
	if err := w.PerformReset(); err != nil {
		return fmt.Errorf("reset: %s: program: %w", wdtName, err)
	}

	// Step 5: release the current transport's mirrored window state
	// before the bridges themselves are reset out from under it.
	if err := host.ReleaseFromAHB(s.AHB); err != nil {
		return fmt.Errorf("reset: %s: release: %w", wdtName, err)
	}

	// Step 6: sleep wait + 1s on the host side. wdt.WaitMicros is the
	// programmed reload value in microseconds.
	sleepFunc(time.Duration(wdt.WaitMicros)*time.Microsecond + time.Second)

	// Step 7: resynchronise the transport's mirrored state (notably
	// P2A's remap register) now that the BMC has come back up.
	if err := host.ReinitFromAHB(s.AHB); err != nil {
		return fmt.Errorf("reset: %s: reinit: %w", wdtName, err)
	}

	// Step 8: the ARM clock-gate bit is sticky across reset.
	if err := clock.UngateARM(); err != nil {
		return fmt.Errorf("reset: %s: ungate arm: %w", wdtName, err)
	}

	// Step 9: zero the reload register so a subsequent WDT is not latent.
	if err := w.ClearReload(); err != nil {
		return fmt.Errorf("reset: %s: clear reload: %w", wdtName, err)
	}
	return nil
}

// package l2ab implements the LPC-to-AHB bridge transport: iLPC
// reprograms the LPC->AHB firmware-window mapping registers HICR7/HICR8,
// and bulk I/O goes through the host's LPC firmware memory window
// instead of one iLPC transaction per byte.
package l2ab

import (
	"fmt"
	"os"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/bridge/ilpcb"
	"culvert.dev/culvert/internal/culverr"
)

const (
	lpcCtrlBase = 0x1e789000
	hicr7Offset = 0x88
	hicr8Offset = 0x8c

	hicr7Addr = lpcCtrlBase + hicr7Offset
	hicr8Addr = lpcCtrlBase + hicr8Offset

	maxWindow    = 128 << 20 // 128 MiB
	minWindow    = 1 << 16   // 64 KiB
	fwWindowPath = "/sys/kernel/debug/powerpc/lpc/fw"
)

// State holds the iLPC client used to reprogram HICR7/HICR8, the
// memory-mapped firmware window file, the cached window, and the host
// HICR7/HICR8 values to restore on teardown.
type State struct {
	ilpc *ahb.Handle
	fw   *os.File

	winBase uint32
	winLen  uint32
	haveWin bool

	origHICR7, origHICR8 uint32
}

// Driver is the registry descriptor for the LPC2AHB bridge.
var Driver = &ahb.Driver{
	Name:    "l2ab",
	Probe:   probe,
	Destroy: destroy,
}

func probe(args ahb.Args) (*ahb.Handle, error) {
	ih, err := ilpcb.Driver.Probe(args)
	if err != nil {
		return nil, fmt.Errorf("l2ab: probe: %w", err)
	}
	f, err := os.OpenFile(fwWindowPath, os.O_RDWR, 0)
	if err != nil {
		ilpcb.Driver.Destroy(ih)
		return nil, fmt.Errorf("l2ab: open %s: %w", fwWindowPath, culverr.NotSupported)
	}
	st := &State{ilpc: ih, fw: f}
	st.origHICR7, err = ih.Readl(hicr7Addr)
	if err != nil {
		f.Close()
		ilpcb.Driver.Destroy(ih)
		return nil, fmt.Errorf("l2ab: read HICR7: %w", err)
	}
	st.origHICR8, err = ih.Readl(hicr8Addr)
	if err != nil {
		f.Close()
		ilpcb.Driver.Destroy(ih)
		return nil, fmt.Errorf("l2ab: read HICR8: %w", err)
	}
	return &ahb.Handle{Driver: Driver, Ops: st}, nil
}

func destroy(h *ahb.Handle) error {
	st := h.Ops.(*State)
	// Restore HICR7/HICR8 on a clean teardown; a post-reset cleanup path
	// calls DestroyAfterReset instead and skips this.
	err1 := st.ilpc.Writel(hicr7Addr, st.origHICR7)
	err2 := st.ilpc.Writel(hicr8Addr, st.origHICR8)
	err3 := st.fw.Close()
	err4 := ilpcb.Driver.Destroy(st.ilpc)
	for _, err := range []error{err1, err2, err3, err4} {
		if err != nil {
			return fmt.Errorf("l2ab: destroy: %w", err)
		}
	}
	return nil
}

// DestroyAfterReset releases host resources without attempting the
// HICR7/HICR8 restore, for the case where the BMC has already been reset
// out from under this transport.
func DestroyAfterReset(h *ahb.Handle) error {
	st := h.Ops.(*State)
	err1 := st.fw.Close()
	err2 := ilpcb.Driver.Destroy(st.ilpc)
	if err1 != nil {
		return err1
	}
	return err2
}

// mapWindow reuses the existing window if it already covers
// [phys, phys+length); otherwise it rounds up and reprograms HICR7/HICR8.
// Returns the in-window offset.
func (s *State) mapWindow(phys uint32, length uint32) (uint32, error) {
	if s.haveWin && phys >= s.winBase && uint64(phys)+uint64(length) <= uint64(s.winBase)+uint64(s.winLen) {
		return phys - s.winBase, nil
	}
	if length > maxWindow {
		return 0, fmt.Errorf("l2ab: window length %#x exceeds 128MiB: %w", length, culverr.InvalidArgument)
	}
	base := phys &^ 0xffff
	effLen := length + (phys - base)
	winLen := uint32(minWindow)
	for winLen < effLen {
		winLen <<= 1
	}
	hicr7 := base
	hicr8 := ^(winLen - 1) | ((winLen - 1) >> 16)
	if err := s.ilpc.Writel(hicr7Addr, hicr7); err != nil {
		return 0, fmt.Errorf("l2ab: program HICR7: %w", err)
	}
	if err := s.ilpc.Writel(hicr8Addr, hicr8); err != nil {
		return 0, fmt.Errorf("l2ab: program HICR8: %w", err)
	}
	s.winBase = base
	s.winLen = winLen
	s.haveWin = true
	return phys & 0xffff, nil
}

func (s *State) Read(phys uint32, buf []byte) (int, error) {
	return s.xfer(phys, buf, false)
}

func (s *State) Write(phys uint32, buf []byte) (int, error) {
	return s.xfer(phys, buf, true)
}

// xfer chunks the request to the window size, calling mapWindow for each
// chunk.
func (s *State) xfer(phys uint32, buf []byte, write bool) (int, error) {
	total := 0
	for len(buf) > 0 {
		n := len(buf)
		if uint32(n) > maxWindow {
			n = maxWindow
		}
		off, err := s.mapWindow(phys, uint32(n))
		if err != nil {
			return total, err
		}
		var xerr error
		if write {
			_, xerr = s.fw.WriteAt(buf[:n], int64(off))
		} else {
			_, xerr = s.fw.ReadAt(buf[:n], int64(off))
		}
		if xerr != nil {
			return total, fmt.Errorf("l2ab: xfer at %#x: %w", phys, culverr.IOFailure)
		}
		total += n
		phys += uint32(n)
		buf = buf[n:]
	}
	return total, nil
}

func (s *State) Readl(phys uint32) (uint32, error) {
	var b [4]byte
	if _, err := s.Read(phys, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (s *State) Writel(phys uint32, v uint32) error {
	b := [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	_, err := s.Write(phys, b[:])
	return err
}

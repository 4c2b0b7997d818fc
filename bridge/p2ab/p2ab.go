// package p2ab implements the PCIe-to-AHB bridge transport: a 64 KiB
// sliding window exposed through BAR1 of the BMC's VGA or management PCI
// function.
package p2ab

import (
	"fmt"
	"os"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/internal/culverr"
	"culvert.dev/culvert/internal/hostio"
)

// PCI identifiers for the two BMC PCI functions p2ab can ride.
const (
	VendorASPEED = 0x1a03
	DeviceVGA    = 0x2000
	DeviceBMC    = 0x2402

	bar1Size    = 128 << 10
	windowSize  = 64 << 10
	windowBase  = 0x1_0000
	regKey      = 0xf000
	regRemap    = 0xf004
	keyUnlocked = 1
	keyLocked   = 0
)

// State is the P2A transport's handle state: the BAR file descriptor and
// mapping, plus the software mirror of the write-only remap register.
type State struct {
	f        *os.File
	bar      []byte
	remap    uint32
	haveBase bool
}

// driverFor builds a Driver bound to one of the two BMC PCI functions.
func driverFor(name string, device uint16) *ahb.Driver {
	d := &ahb.Driver{Name: name}
	d.Probe = func(args ahb.Args) (*ahb.Handle, error) {
		return probe(d, device)
	}
	d.Destroy = destroy
	d.Release = release
	d.Reinit = reinit
	return d
}

// VGADriver and BMCDriver are the two p2ab registry entries; the
// discovery pipeline registers only VGADriver.
var (
	VGADriver = driverFor("p2ab-vga", DeviceVGA)
	BMCDriver = driverFor("p2ab-bmc", DeviceBMC)
)

func probe(d *ahb.Driver, device uint16) (*ahb.Handle, error) {
	pdev, err := hostio.FindPCIDevice(VendorASPEED, device)
	if err != nil {
		return nil, fmt.Errorf("p2ab: probe: %w", err)
	}
	f, size, err := pdev.OpenBAR(1)
	if err != nil {
		return nil, fmt.Errorf("p2ab: open BAR1: %w", err)
	}
	if size < bar1Size {
		f.Close()
		return nil, fmt.Errorf("p2ab: BAR1 too small (%d): %w", size, culverr.IOFailure)
	}
	bar, err := hostio.Mmap(f, 0, bar1Size)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("p2ab: mmap BAR1: %w", err)
	}
	st := &State{f: f, bar: bar}
	if err := st.setKey(keyUnlocked); err != nil {
		hostio.Munmap(bar)
		f.Close()
		return nil, fmt.Errorf("p2ab: unlock: %w", err)
	}
	return &ahb.Handle{Driver: d, Ops: st}, nil
}

func destroy(h *ahb.Handle) error {
	st := h.Ops.(*State)
	err1 := st.setKey(keyLocked)
	err2 := hostio.Munmap(st.bar)
	err3 := st.f.Close()
	for _, err := range []error{err1, err2, err3} {
		if err != nil {
			return fmt.Errorf("p2ab: destroy: %w", err)
		}
	}
	return nil
}

// release is a no-op: P2A's mirrored state (the remap register) does not
// need to be torn down before a reset, only resynced after.
func release(h *ahb.Handle) error { return nil }

// reinit resyncs the software remap mirror by reading the hardware
// register back, since the reset will have invalidated whatever window
// was programmed.
func reinit(h *ahb.Handle) error {
	st := h.Ops.(*State)
	st.remap = st.readRemap()
	st.haveBase = true
	return nil
}

func (s *State) setKey(v uint32) error {
	putl(s.bar, regKey, v)
	return nil
}

func (s *State) readRemap() uint32 {
	return getl(s.bar, regRemap)
}

func (s *State) setRemap(base uint32) {
	putl(s.bar, regRemap, base)
	s.remap = base
	s.haveBase = true
}

// mapWindow reprograms the remap register only if the requested base
// differs from the cached mirror, short-circuiting identity reprogrammes.
func (s *State) mapWindow(phys uint32) uint32 {
	base := phys &^ (windowSize - 1)
	if !s.haveBase || s.remap != base {
		s.setRemap(base)
	}
	return phys & (windowSize - 1)
}

func (s *State) xfer(phys uint32, buf []byte, write bool) (int, error) {
	total := 0
	for len(buf) > 0 {
		off := s.mapWindow(phys)
		n := len(buf)
		if uint32(n) > windowSize-off {
			n = int(windowSize - off)
		}
		win := s.bar[windowBase+off : windowBase+off+uint32(n)]
		if write {
			copy(win, buf[:n])
		} else {
			copy(buf[:n], win)
		}
		hostio.Barrier()
		total += n
		phys += uint32(n)
		buf = buf[n:]
	}
	return total, nil
}

func (s *State) Read(phys uint32, buf []byte) (int, error)  { return s.xfer(phys, buf, false) }
func (s *State) Write(phys uint32, buf []byte) (int, error) { return s.xfer(phys, buf, true) }

func (s *State) Readl(phys uint32) (uint32, error) {
	off := s.mapWindow(phys)
	return getl(s.bar, windowBase+off), nil
}

func (s *State) Writel(phys uint32, v uint32) error {
	off := s.mapWindow(phys)
	putl(s.bar, windowBase+off, v)
	hostio.Barrier()
	return nil
}

func getl(b []byte, off uint32) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func putl(b []byte, off uint32, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

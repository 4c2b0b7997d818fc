// package devmem implements the /dev/mem bridge transport. It is only
// viable when culvert runs on the BMC itself: it maps the SoC IO
// aperture permanently and keeps a one-slot sliding mmap for everything
// else.
package devmem

import (
	"fmt"
	"os"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/internal/hostio"
)

const (
	apertureBase = 0x1e60_0000
	apertureSize = 2 << 20 // 2 MiB
	pageSize     = 4096
)

// State owns /dev/mem, the permanent SoC-IO-aperture mapping, and a
// lazily (re)programmed sliding window for addresses outside it.
type State struct {
	f         *os.File
	aperture  []byte
	window    []byte
	windowOff uint32 // page-aligned physical base of window
	haveWin   bool
}

// Driver is the registry descriptor for the devmem bridge. Local is true:
// this transport only reaches the BMC when culvert runs on the BMC itself.
// host.Init does not consult Local and probes this driver like any other.
var Driver = &ahb.Driver{
	Name:    "devmem",
	Local:   true,
	Probe:   probe,
	Destroy: destroy,
}

func probe(args ahb.Args) (*ahb.Handle, error) {
	f, err := hostio.OpenDevMem()
	if err != nil {
		return nil, fmt.Errorf("devmem: probe: %w", err)
	}
	aperture, err := hostio.Mmap(f, apertureBase, apertureSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("devmem: mmap aperture: %w", err)
	}
	st := &State{f: f, aperture: aperture}
	return &ahb.Handle{Driver: Driver, Ops: st}, nil
}

func destroy(h *ahb.Handle) error {
	st := h.Ops.(*State)
	if st.haveWin {
		hostio.Munmap(st.window)
	}
	hostio.Munmap(st.aperture)
	return st.f.Close()
}

func inAperture(phys uint32, n int) bool {
	return phys >= apertureBase && uint64(phys)+uint64(n) <= apertureBase+apertureSize
}

// slide reprograms the sliding window to cover phys if it does not
// already, returning the byte slice and in-window offset to use.
func (s *State) slide(phys uint32, n int) ([]byte, uint32, error) {
	if inAperture(phys, n) {
		return s.aperture, phys - apertureBase, nil
	}
	base := phys &^ (pageSize - 1)
	size := uint32(pageSize)
	for uint64(base)+uint64(size) < uint64(phys)+uint64(n) {
		size <<= 1
	}
	if !s.haveWin || s.windowOff != base || uint32(len(s.window)) < size {
		if s.haveWin {
			hostio.Munmap(s.window)
		}
		w, err := hostio.Mmap(s.f, int64(base), int(size))
		if err != nil {
			s.haveWin = false
			return nil, 0, fmt.Errorf("devmem: mmap window at %#x: %w", base, err)
		}
		s.window = w
		s.windowOff = base
		s.haveWin = true
	}
	return s.window, phys - base, nil
}

// Read implements a byte-wise copy that issues 32-bit MMIO accesses when
// the BMC address is 4-aligned, falling back to bytes otherwise and for
// the tail, with one host I/O barrier after the copy.
func (s *State) Read(phys uint32, buf []byte) (int, error) {
	return s.memcpy(phys, buf, false)
}

func (s *State) Write(phys uint32, buf []byte) (int, error) {
	return s.memcpy(phys, buf, true)
}

func (s *State) memcpy(phys uint32, buf []byte, write bool) (int, error) {
	win, off, err := s.slide(phys, len(buf))
	if err != nil {
		return 0, err
	}
	i := 0
	n := len(buf)
	aligned := phys%4 == 0
	for i+4 <= n && aligned {
		if write {
			putl(win, off+uint32(i), getlBuf(buf, i))
		} else {
			putlBuf(buf, i, getl(win, off+uint32(i)))
		}
		i += 4
	}
	for ; i < n; i++ {
		if write {
			win[off+uint32(i)] = buf[i]
		} else {
			buf[i] = win[off+uint32(i)]
		}
	}
	hostio.Barrier()
	return n, nil
}

// Readl and Writel skip the sliding window entirely when the address
// falls inside the permanent aperture.
func (s *State) Readl(phys uint32) (uint32, error) {
	win, off, err := s.slide(phys, 4)
	if err != nil {
		return 0, err
	}
	v := getl(win, off)
	hostio.Barrier()
	return v, nil
}

func (s *State) Writel(phys uint32, v uint32) error {
	win, off, err := s.slide(phys, 4)
	if err != nil {
		return err
	}
	putl(win, off, v)
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

func getlBuf(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func putlBuf(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

// package hostio implements the host-side I/O primitives the bridge
// transports are built from: LPC port I/O and the mmap dance used against
// /dev/mem and PCI BAR resource files. Nothing here knows about AHB
// addresses or ASPEED register maps; it is the leaf layer every bridge
// transport is built on top of.
package hostio

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"culvert.dev/culvert/internal/culverr"
)

// Port is a handle onto the host's LPC/ISA I/O port space, implemented
// against /dev/port the same way seedhammer's camera package treats
// /dev/video0: an opened device file addressed with positional
// Pread/Pwrite rather than a raw in/out instruction.
type Port struct {
	mu sync.Mutex
	f  *os.File
}

// OpenPort opens the host I/O port space. It requires CAP_SYS_RAWIO (or
// root), matching the teacher's camera/lcd device-open failure style.
func OpenPort() (*Port, error) {
	f, err := os.OpenFile("/dev/port", os.O_RDWR, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("hostio: open /dev/port: %w", culverr.PermissionDenied)
		}
		return nil, fmt.Errorf("hostio: open /dev/port: %w", err)
	}
	return &Port{f: f}, nil
}

func (p *Port) Close() error {
	return p.f.Close()
}

// In8 reads a single byte from the given I/O port.
func (p *Port) In8(port uint16) (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var b [1]byte
	if _, err := p.f.ReadAt(b[:], int64(port)); err != nil {
		return 0, fmt.Errorf("hostio: in8 %#x: %w", port, culverr.IOFailure)
	}
	return b[0], nil
}

// Out8 writes a single byte to the given I/O port.
func (p *Port) Out8(port uint16, v byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.f.WriteAt([]byte{v}, int64(port)); err != nil {
		return fmt.Errorf("hostio: out8 %#x: %w", port, culverr.IOFailure)
	}
	return nil
}

// In32 reads a little-endian 32-bit value starting at the given port.
func (p *Port) In32(port uint16) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var b [4]byte
	if _, err := p.f.ReadAt(b[:], int64(port)); err != nil {
		return 0, fmt.Errorf("hostio: in32 %#x: %w", port, culverr.IOFailure)
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// Out32 writes a little-endian 32-bit value starting at the given port.
func (p *Port) Out32(port uint16, v uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	if _, err := p.f.WriteAt(b[:], int64(port)); err != nil {
		return fmt.Errorf("hostio: out32 %#x: %w", port, culverr.IOFailure)
	}
	return nil
}

// Barrier marks where a platform I/O barrier belongs; its body is empty
// and issues no instruction. On amd64/arm64 Linux a single
// uncached MMIO access already orders against the bus, but callers that
// mirror window-register writes with readback skip this; Barrier exists
// so that every MMIO write that must be followed by a platform I/O
// barrier has an explicit call site rather than relying on accident.
func Barrier() {
	// golang.org/x/sys/unix has no portable fence primitive exposed for
	// userspace register access; runtime.KeepAlive-style "do nothing
	// visibly" is what every host-side mmap tool in the pack relies on,
	// since the kernel device mapping is already uncached (see
	// Mmap below). Recorded here, not inlined, so the call sites read as
	// intentional.
}

// Mmap maps length bytes of fd at the given file offset, matching the
// PROT/MAP flags seedhammer's lcd_linux.go and camera_linux.go use for
// /dev/dri and /dev/video0.
func Mmap(f *os.File, offset int64, length int) ([]byte, error) {
	b, err := unix.Mmap(int(f.Fd()), offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("hostio: mmap: %w", culverr.IOFailure)
	}
	return b, nil
}

// Munmap undoes Mmap.
func Munmap(b []byte) error {
	return unix.Munmap(b)
}

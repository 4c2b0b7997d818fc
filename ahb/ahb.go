// package ahb implements the bridge-agnostic facade over the AST24xx/
// 25xx/26xx AHB bus: a uniform capability set (byte/32-bit read and
// write, plus the composed siphon helpers) carried by a Handle that
// wraps whichever transport actually attached.
//
// C implementations of this kind of multiplexed bus access often express
// a transport as a struct whose first field is the abstract "ahb" type,
// recovered on the way back out with container_of. Go has no such trick
// available for free functions, so a transport here is instead a Driver
// descriptor plus an Ops implementation the Driver's Probe returns;
// Handle just carries the pair.
package ahb

import (
	"fmt"
	"io"

	"culvert.dev/culvert/internal/culverr"
)

// Ops is the four-operation vtable every bridge transport implements.
type Ops interface {
	Read(phys uint32, buf []byte) (int, error)
	Write(phys uint32, buf []byte) (int, error)
	Readl(phys uint32) (uint32, error)
	Writel(phys uint32, v uint32) error
}

// Driver is the static descriptor for one bridge transport, registered
// into the host registry (package host). Release/Reinit are optional: a
// transport that does not mirror any hardware window state may leave them
// nil, in which case the facade treats them as successful no-ops.
type Driver struct {
	Name string
	// Local is true for transports that only work when culvert runs on
	// the BMC itself (devmem).
	Local bool

	Probe   func(args Args) (*Handle, error)
	Release func(h *Handle) error
	Reinit  func(h *Handle) error
	Destroy func(h *Handle) error
}

// Args carries the parameters host.Init forwards to every driver's Probe,
// e.g. the debug-UART interface selection from the CLI's trailing
// "[interface [ip port username password]]" block.
type Args struct {
	// Interface selects a specific bridge by name ("debug", "p2ab-vga", ...);
	// empty means "probe everything".
	Interface string
	// DebugHost/DebugPort/DebugUser/DebugPassword parametrize the
	// debug-UART transport when Interface == "debug".
	DebugHost     string
	DebugPort     int
	DebugUser     string
	DebugPassword string
}

// Handle is one live bridge transport. The zero Handle is not valid; use
// a Driver's Probe to construct one. Ops is never nil on a live Handle.
type Handle struct {
	Driver *Driver
	Ops    Ops
}

// Read copies up to len(buf) bytes from phys into buf.
func (h *Handle) Read(phys uint32, buf []byte) (int, error) {
	return h.Ops.Read(phys, buf)
}

// Write copies buf to phys.
func (h *Handle) Write(phys uint32, buf []byte) (int, error) {
	return h.Ops.Write(phys, buf)
}

// Readl reads one little-endian 32-bit word at phys.
func (h *Handle) Readl(phys uint32) (uint32, error) {
	if phys%4 != 0 {
		return 0, fmt.Errorf("ahb: readl %#x misaligned: %w", phys, culverr.InvalidArgument)
	}
	return h.Ops.Readl(phys)
}

// Writel writes one little-endian 32-bit word at phys.
func (h *Handle) Writel(phys uint32, v uint32) error {
	if phys%4 != 0 {
		return fmt.Errorf("ahb: writel %#x misaligned: %w", phys, culverr.InvalidArgument)
	}
	return h.Ops.Writel(phys, v)
}

// Release invokes the transport's pre-reset hook, if it has one. Drivers
// that mirror no hardware window state return nil here unconditionally.
func (h *Handle) Release() error {
	if h.Driver.Release == nil {
		return nil
	}
	return h.Driver.Release(h)
}

// Reinit invokes the transport's post-reset resync hook, if it has one.
func (h *Handle) Reinit() error {
	if h.Driver.Reinit == nil {
		return nil
	}
	return h.Driver.Reinit(h)
}

// Destroy tears the transport down, releasing whatever host resources its
// Probe acquired.
func (h *Handle) Destroy() error {
	if h.Driver.Destroy == nil {
		return nil
	}
	return h.Driver.Destroy(h)
}

const siphonChunk = 1 << 20 // 1 MiB

// SiphonIn copies length bytes of BMC memory starting at phys to sink, in
// 1 MiB chunks, retrying short sink writes to completion. It fails on the
// first transport error or sink error; bytes already delivered are not
// rolled back.
func SiphonIn(h *Handle, phys uint32, length int, sink io.Writer) error {
	buf := make([]byte, siphonChunk)
	for length > 0 {
		n := len(buf)
		if n > length {
			n = length
		}
		chunk := buf[:n]
		if _, err := h.Read(phys, chunk); err != nil {
			return fmt.Errorf("ahb: siphon_in read at %#x: %w", phys, err)
		}
		if err := writeFull(sink, chunk); err != nil {
			return fmt.Errorf("ahb: siphon_in write: %w", err)
		}
		phys += uint32(n)
		length -= n
	}
	return nil
}

// SiphonOut is the inverse of SiphonIn: it reads from source in 1 MiB
// chunks until EOF, writing each chunk to phys.
func SiphonOut(h *Handle, phys uint32, source io.Reader) error {
	buf := make([]byte, siphonChunk)
	for {
		n, err := io.ReadFull(source, buf)
		if n > 0 {
			if _, werr := h.Write(phys, buf[:n]); werr != nil {
				return fmt.Errorf("ahb: siphon_out write at %#x: %w", phys, werr)
			}
			phys += uint32(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ahb: siphon_out read: %w", err)
		}
	}
}

func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

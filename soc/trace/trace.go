// package trace programs AHBC's built-in bus recorder and drains its
// on-die SRAM ring buffer, plus a CBOR export format so a captured trace
// can be written to disk and replayed without re-running the target.
package trace

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/soc"
)

const (
	regBCRCSR  = 0x00 // control/status: enable, mode, width
	regBCRBUF  = 0x04 // SRAM buffer base
	regBCRADDR = 0x08 // watched address
	regBCRWPTR = 0x0c // current write pointer within buffer

	csrEnable    = 1 << 0
	csrModeWrite = 1 << 1 // clear = read-watch, set = write-watch
	csrWrapped   = 1 << 8

	bufferSize = 32 << 10

	// defaultSRAMBase is a fixed 32 KiB carve-out of on-die SRAM reserved
	// for the trace ring on every generation that has a tracer.
	defaultSRAMBase = 0x1e720000
)

// Width is the watched access width, in bytes.
type Width int

const (
	Width1 Width = 1
	Width2 Width = 2
	Width4 Width = 4
)

// Mode selects whether the tracer watches reads or writes of the
// configured address.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Engine is the driver instance bound to the ahbc@... ("trace") node.
type Engine struct {
	h      *ahb.Handle
	base   uint32
	sram   uint32
	active bool
}

func init() {
	soc.Register(&soc.Driver{
		Name:    "trace",
		Matches: matches,
		Init:    initDriver,
	})
}

var matches = []dt.Match{
	{Compatible: "aspeed,ast2500-ahbc"},
	{Compatible: "aspeed,ast2600-ahbc"},
	// g4 has no bus tracer; there is deliberately no
	// "aspeed,ast2400-ahbc" entry here, so Probe simply finds no trace
	// node on g4 and the driver is absent there.
}

func initDriver(s *soc.Session, dev *soc.Device) error {
	r, err := dt.RegAt(dev.Node, 0)
	if err != nil {
		return err
	}
	dev.Drvdata = &Engine{h: s.AHB, base: r.Start, sram: defaultSRAMBase}
	return nil
}

// Start configures the watched address/width/mode, selects a 32 KiB
// buffer, and begins recording.
func (e *Engine) Start(addr uint32, width Width, mode Mode) error {
	sram := e.sram
	if err := e.h.Writel(e.base+regBCRBUF, sram); err != nil {
		return fmt.Errorf("trace: start: buffer: %w", err)
	}
	if err := e.h.Writel(e.base+regBCRADDR, addr); err != nil {
		return fmt.Errorf("trace: start: addr: %w", err)
	}
	csr := csrEnable
	if mode == ModeWrite {
		csr |= csrModeWrite
	}
	csr |= (int(width) & 0x7) << 4
	if err := e.h.Writel(e.base+regBCRCSR, uint32(csr)); err != nil {
		return fmt.Errorf("trace: start: csr: %w", err)
	}
	e.active = true
	return nil
}

// Stop disables the recorder.
func (e *Engine) Stop() error {
	if err := e.h.Writel(e.base+regBCRCSR, 0); err != nil {
		return fmt.Errorf("trace: stop: %w", err)
	}
	e.active = false
	return nil
}

// Dump reads the recorded bytes back: the whole buffer starting at the
// current write pointer if wrap occurred, or only the populated prefix
// otherwise.
func (e *Engine) Dump() ([]byte, error) {
	csr, err := e.h.Readl(e.base + regBCRCSR)
	if err != nil {
		return nil, fmt.Errorf("trace: dump: csr: %w", err)
	}
	wptr, err := e.h.Readl(e.base + regBCRWPTR)
	if err != nil {
		return nil, fmt.Errorf("trace: dump: wptr: %w", err)
	}

	if csr&csrWrapped == 0 {
		buf := make([]byte, wptr)
		if _, err := e.h.Read(e.sram, buf); err != nil {
			return nil, fmt.Errorf("trace: dump: %w", err)
		}
		return buf, nil
	}

	buf := make([]byte, bufferSize)
	if _, err := e.h.Read(e.sram, buf); err != nil {
		return nil, fmt.Errorf("trace: dump: %w", err)
	}
	out := make([]byte, bufferSize)
	copy(out, buf[wptr:])
	copy(out[bufferSize-wptr:], buf[:wptr])
	return out, nil
}

// Capture is the CBOR-serializable export format for a completed trace.
type Capture struct {
	Address uint32 `cbor:"address"`
	Width   int    `cbor:"width"`
	Mode    int    `cbor:"mode"`
	Data    []byte `cbor:"data"`
}

// Export marshals a dump to CBOR and writes it to w.
func Export(w io.Writer, addr uint32, width Width, mode Mode, data []byte) error {
	enc := cbor.NewEncoder(w)
	c := Capture{Address: addr, Width: int(width), Mode: int(mode), Data: data}
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("trace: export: %w", err)
	}
	return nil
}

// Import decodes a previously exported capture from r.
func Import(r io.Reader) (Capture, error) {
	var c Capture
	dec := cbor.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return Capture{}, fmt.Errorf("trace: import: %w", err)
	}
	return c, nil
}

// package ilpcb implements the iLPC-to-AHB bridge transport: the SuperIO
// indirect-LPC logical device used to bootstrap access to the BMC before
// any faster transport is available.
package ilpcb

import (
	"fmt"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/internal/culverr"
	"culvert.dev/culvert/internal/sio"
)

const (
	regAddr0 = 0xf0 // address register, big-endian, 4 bytes at f0..f3
	regData0 = 0xf4 // data register(s)
	regTrig  = 0xfe

	triggerRead  = 0x00 // any read of regTrig triggers
	triggerWrite = 0xcf

	width8  = 0
	width32 = 2
)

// State is the iLPC transport's handle state: nothing beyond the SuperIO
// client, since iLPC is stateless per access beyond holding SuperIO
// unlocked for the duration of one transaction.
type State struct {
	sioc *sio.Client
}

// Driver is the registry descriptor for the iLPC bridge.
var Driver = &ahb.Driver{
	Name:    "ilpcb",
	Probe:   probe,
	Destroy: destroy,
}

func probe(args ahb.Args) (*ahb.Handle, error) {
	c, err := sio.Open()
	if err != nil {
		return nil, fmt.Errorf("ilpcb: probe: %w", err)
	}
	st := &State{sioc: c}
	return &ahb.Handle{Driver: Driver, Ops: st}, nil
}

func destroy(h *ahb.Handle) error {
	st := h.Ops.(*State)
	return st.sioc.Close()
}

// begin unlocks SuperIO, selects and activates the iLPC logical device,
// and programs the access width. Callers must call end even on error
// paths: SuperIO must be re-locked at the end of the transaction
// regardless of how it ends.
func (s *State) begin(width byte) error {
	if err := s.sioc.Unlock(); err != nil {
		return err
	}
	if err := s.sioc.Select(sio.LDNiLPC); err != nil {
		return err
	}
	if err := s.sioc.Activate(); err != nil {
		return err
	}
	return s.sioc.WriteReg(0xf0-1, width) // width control register precedes the address window
}

func (s *State) end() {
	s.sioc.Lock()
}

func (s *State) setAddr(phys uint32) error {
	b := [4]byte{byte(phys >> 24), byte(phys >> 16), byte(phys >> 8), byte(phys)}
	for i, v := range b {
		if err := s.sioc.WriteReg(byte(regAddr0+i), v); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) Readl(phys uint32) (uint32, error) {
	if err := s.begin(width32); err != nil {
		s.end()
		return 0, fmt.Errorf("ilpcb: readl %#x: %w", phys, err)
	}
	defer s.end()
	if err := s.setAddr(phys); err != nil {
		return 0, fmt.Errorf("ilpcb: readl %#x: %w", phys, err)
	}
	if _, err := s.sioc.ReadReg(regTrig); err != nil {
		return 0, fmt.Errorf("ilpcb: readl %#x trigger: %w", phys, err)
	}
	var v uint32
	for i := 0; i < 4; i++ {
		b, err := s.sioc.ReadReg(byte(regData0 + i))
		if err != nil {
			return 0, fmt.Errorf("ilpcb: readl %#x data: %w", phys, err)
		}
		v |= uint32(b) << (8 * i)
	}
	return v, nil
}

func (s *State) Writel(phys uint32, v uint32) error {
	if err := s.begin(width32); err != nil {
		s.end()
		return fmt.Errorf("ilpcb: writel %#x: %w", phys, err)
	}
	defer s.end()
	if err := s.setAddr(phys); err != nil {
		return fmt.Errorf("ilpcb: writel %#x: %w", phys, err)
	}
	for i := 0; i < 4; i++ {
		if err := s.sioc.WriteReg(byte(regData0+i), byte(v>>(8*i))); err != nil {
			return fmt.Errorf("ilpcb: writel %#x data: %w", phys, err)
		}
	}
	if err := s.sioc.WriteReg(regTrig, triggerWrite); err != nil {
		return fmt.Errorf("ilpcb: writel %#x trigger: %w", phys, err)
	}
	return nil
}

func (s *State) Read(phys uint32, buf []byte) (int, error) {
	if err := s.begin(width8); err != nil {
		s.end()
		return 0, fmt.Errorf("ilpcb: read %#x: %w", phys, err)
	}
	defer s.end()
	for i := range buf {
		if err := s.setAddr(phys + uint32(i)); err != nil {
			return i, fmt.Errorf("ilpcb: read %#x: %w", phys, err)
		}
		if _, err := s.sioc.ReadReg(regTrig); err != nil {
			return i, fmt.Errorf("ilpcb: read %#x trigger: %w", phys, err)
		}
		b, err := s.sioc.ReadReg(regData0)
		if err != nil {
			return i, fmt.Errorf("ilpcb: read %#x data: %w", phys, err)
		}
		buf[i] = b
	}
	return len(buf), nil
}

func (s *State) Write(phys uint32, buf []byte) (int, error) {
	if err := s.begin(width8); err != nil {
		s.end()
		return 0, fmt.Errorf("ilpcb: write %#x: %w", phys, err)
	}
	defer s.end()
	for i, b := range buf {
		if err := s.setAddr(phys + uint32(i)); err != nil {
			return i, fmt.Errorf("ilpcb: write %#x: %w", phys, err)
		}
		if err := s.sioc.WriteReg(regData0, b); err != nil {
			return i, fmt.Errorf("ilpcb: write %#x data: %w", phys, err)
		}
		if err := s.sioc.WriteReg(regTrig, triggerWrite); err != nil {
			return i, fmt.Errorf("ilpcb: write %#x trigger: %w", phys, err)
		}
	}
	return len(buf), nil
}

// ReadByte reads a single byte at phys directly through an iLPC handle's
// State. It fails with culverr.InvalidArgument when h is not an ilpcb
// handle.
func ReadByte(h *ahb.Handle, phys uint32) (byte, error) {
	st, ok := h.Ops.(*State)
	if !ok {
		return 0, fmt.Errorf("ilpcb: not an ilpcb handle: %w", culverr.InvalidArgument)
	}
	var b [1]byte
	if _, err := st.Read(phys, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

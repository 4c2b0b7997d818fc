// package sfc drives the SPI flash controller register block: its
// public contract is command read/write, 4-byte-addressing mode select,
// and a direct-mapped AHB flash aperture, consumed by package flash's
// chip-discipline layer.
package sfc

import (
	"fmt"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/soc"
)

const (
	regCtrl    = 0x00
	regCmdCtrl = 0x04
	regCmdData = 0x08

	ctrl4ByteAddr = 1 << 13

	cmdCtrlBusy = 1 << 0
	cmdCtrlGo   = 1 << 1
	// cmdCtrlRead selects a read transaction; clear means write.
	cmdCtrlRead = 1 << 2
)

// Controller is the driver instance bound to the spi@... (fmc) node: the
// register block at reg[0] plus the flash-aperture AHB window at reg[1],
// a multi-entry reg the way real AST2xxx SPI controller nodes list it.
type Controller struct {
	h          *ahb.Handle
	base       uint32
	windowBase uint32
	windowLen  uint32
}

func init() {
	soc.Register(&soc.Driver{
		Name:    "sfc",
		Matches: matches,
		Init:    initDriver,
	})
}

var matches = []dt.Match{
	{Compatible: "aspeed,ast2400-fmc"},
	{Compatible: "aspeed,ast2500-fmc"},
	{Compatible: "aspeed,ast2600-fmc"},
}

func initDriver(s *soc.Session, dev *soc.Device) error {
	regs, err := dt.RegAt(dev.Node, 0)
	if err != nil {
		return err
	}
	window, err := dt.RegAt(dev.Node, 1)
	if err != nil {
		return err
	}
	dev.Drvdata = New(s.AHB, regs.Start, window.Start, window.Length)
	return nil
}

// New binds a Controller to an AHB handle directly, bypassing the
// devicetree-driven soc.Probe flow. Used by initDriver above and by
// package flash's tests.
func New(h *ahb.Handle, base, windowBase, windowLen uint32) *Controller {
	return &Controller{h: h, base: base, windowBase: windowBase, windowLen: windowLen}
}

// WindowBase and WindowLen describe the direct-mapped flash aperture.
func (c *Controller) WindowBase() uint32 { return c.windowBase }
func (c *Controller) WindowLen() uint32  { return c.windowLen }

// DirectRead copies len(buf) bytes from the flash aperture at offset.
func (c *Controller) DirectRead(offset uint32, buf []byte) error {
	if uint64(offset)+uint64(len(buf)) > uint64(c.windowLen) {
		return fmt.Errorf("sfc: direct read out of range")
	}
	_, err := c.h.Read(c.windowBase+offset, buf)
	return err
}

// DirectWrite copies buf into the flash aperture at offset. This issues
// AHB writes against the memory-mapped flash window; it is the chip
// discipline layer's job (package flash) to have already erased the
// target range, since NOR flash can only clear bits via erase.
func (c *Controller) DirectWrite(offset uint32, buf []byte) error {
	if uint64(offset)+uint64(len(buf)) > uint64(c.windowLen) {
		return fmt.Errorf("sfc: direct write out of range")
	}
	_, err := c.h.Write(c.windowBase+offset, buf)
	return err
}

// Set4B switches the controller's addressing mode between 3-byte and
// 4-byte, required above 16 MiB.
func (c *Controller) Set4B(enable bool) error {
	v, err := c.h.Readl(c.base + regCtrl)
	if err != nil {
		return fmt.Errorf("sfc: set-4b: %w", err)
	}
	if enable {
		v |= ctrl4ByteAddr
	} else {
		v &^= ctrl4ByteAddr
	}
	return c.h.Writel(c.base+regCtrl, v)
}

// CmdRd issues a single-shot SPI command with no data phase beyond
// reading back n bytes into buf, used for RDID and status-register reads.
func (c *Controller) CmdRd(opcode byte, buf []byte) error {
	if err := c.h.Writel(c.base+regCmdCtrl, uint32(opcode)); err != nil {
		return fmt.Errorf("sfc: cmd-rd: opcode: %w", err)
	}
	if err := c.h.Writel(c.base+regCmdCtrl, cmdCtrlGo|cmdCtrlRead); err != nil {
		return fmt.Errorf("sfc: cmd-rd: go: %w", err)
	}
	if err := c.waitDone(); err != nil {
		return fmt.Errorf("sfc: cmd-rd: %w", err)
	}
	for i := range buf {
		v, err := c.h.Readl(c.base + regCmdData + uint32(i/4)*4)
		if err != nil {
			return fmt.Errorf("sfc: cmd-rd: data: %w", err)
		}
		buf[i] = byte(v >> (8 * uint(i%4)))
	}
	return nil
}

// CmdWr issues a single-shot SPI command (e.g. write-enable, sector
// erase, chip erase) optionally followed by up to 4 bytes of data.
func (c *Controller) CmdWr(opcode byte, data []byte) error {
	if err := c.h.Writel(c.base+regCmdCtrl, uint32(opcode)); err != nil {
		return fmt.Errorf("sfc: cmd-wr: opcode: %w", err)
	}
	var word uint32
	for i, b := range data {
		word |= uint32(b) << (8 * uint(i))
	}
	if err := c.h.Writel(c.base+regCmdData, word); err != nil {
		return fmt.Errorf("sfc: cmd-wr: data: %w", err)
	}
	if err := c.h.Writel(c.base+regCmdCtrl, cmdCtrlGo); err != nil {
		return fmt.Errorf("sfc: cmd-wr: go: %w", err)
	}
	return c.waitDone()
}

func (c *Controller) waitDone() error {
	for {
		v, err := c.h.Readl(c.base + regCmdCtrl)
		if err != nil {
			return err
		}
		if v&cmdCtrlBusy == 0 {
			return nil
		}
	}
}

// package sio implements the host-facing SuperIO (SIO) client: a
// locked/unlocked register window at a fixed LPC I/O address used to
// select and configure logical devices, of which the iLPC2AHB bridge
// (logical device 0x0d) is the one culvert cares about.
package sio

import (
	"fmt"

	"culvert.dev/culvert/internal/culverr"
	"culvert.dev/culvert/internal/hostio"
)

// Candidate SuperIO base ports; probe tries both.
const (
	Base2E = 0x2e
	Base4e = 0x4e
)

const (
	regDeviceSelect = 0x07
	regActivate     = 0x30
)

// Logical device IDs.
const (
	LDNiLPC  = 0x0d
	LDNSUART1 = 0x02
	LDNSUART4 = 0x05
)

// Client is a SuperIO client bound to a base port over a host Port.
type Client struct {
	port *hostio.Port
	base uint16
	// owned reports whether Client opened the underlying Port and so
	// must close it on Close.
	owned bool
}

// Open probes both candidate base ports and returns a Client bound to
// whichever one round-trips: unlock, select SUART1, read back the
// device-select register, check it reads back the selected ID; repeat
// for SUART4; present if either round-trips.
func Open() (*Client, error) {
	p, err := hostio.OpenPort()
	if err != nil {
		return nil, err
	}
	for _, base := range []uint16{Base2E, Base4e} {
		c := &Client{port: p, base: base, owned: true}
		if c.probe() {
			return c, nil
		}
	}
	p.Close()
	return nil, fmt.Errorf("sio: no SuperIO device found: %w", culverr.NotSupported)
}

// OpenOn binds a Client to an already-open Port without taking ownership
// of it, for callers that need to interleave SuperIO transactions
// with other port I/O on the same handle.
func OpenOn(p *hostio.Port, base uint16) *Client {
	return &Client{port: p, base: base}
}

func (c *Client) probe() bool {
	for _, ldn := range []byte{LDNSUART1, LDNSUART4} {
		c.Unlock()
		c.Select(ldn)
		got, err := c.port.In8(c.base + 1)
		c.Lock()
		if err == nil && got == ldn {
			return true
		}
	}
	return false
}

// Unlock writes the 0xa5, 0xa5 key sequence to the index port.
func (c *Client) Unlock() error {
	if err := c.port.Out8(c.base, 0xa5); err != nil {
		return err
	}
	return c.port.Out8(c.base, 0xa5)
}

// Lock writes the 0xaa key to the index port, re-locking the SuperIO
// configuration window. Callers must call this even on error paths.
func (c *Client) Lock() error {
	return c.port.Out8(c.base, 0xaa)
}

// Select chooses the logical device addressed by subsequent register
// accesses.
func (c *Client) Select(ldn byte) error {
	return c.WriteReg(regDeviceSelect, ldn)
}

// Activate enables the currently selected logical device.
func (c *Client) Activate() error {
	return c.WriteReg(regActivate, 1)
}

// WriteReg writes one byte to an indexed configuration register of the
// currently selected logical device.
func (c *Client) WriteReg(reg, val byte) error {
	if err := c.port.Out8(c.base, reg); err != nil {
		return err
	}
	return c.port.Out8(c.base+1, val)
}

// ReadReg reads one byte from an indexed configuration register.
func (c *Client) ReadReg(reg byte) (byte, error) {
	if err := c.port.Out8(c.base, reg); err != nil {
		return 0, err
	}
	return c.port.In8(c.base + 1)
}

// Port returns the underlying host port, for drivers that issue
// further, non-SuperIO-indexed I/O to device-specific registers exposed
// while a logical device is selected and activated.
func (c *Client) Port() *hostio.Port { return c.port }

// Close releases the underlying port, if this client owns it.
func (c *Client) Close() error {
	if c.owned {
		return c.port.Close()
	}
	return nil
}

// package otp drives the OTP fuse controller. OTP memory is gated by a
// passcode register; any program operation must unlock it first and then
// poll an idle bit before returning.
package otp

import (
	"fmt"
	"time"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/internal/culverr"
	"culvert.dev/culvert/soc"
)

const (
	regPasscode = 0x00
	regCommand  = 0x04
	regStatus   = 0x08
	regData     = 0x10

	passcodeKey = 0x349fe38a

	statusIdle = 1 << 0

	cmdProgram = 1 << 0

	idlePollInterval = 5 * time.Millisecond
	idlePollTimeout  = 500 * time.Millisecond
)

// OTP is the driver instance bound to the otp@... devicetree node.
type OTP struct {
	h    *ahb.Handle
	base uint32
}

func init() {
	soc.Register(&soc.Driver{
		Name:    "otp",
		Matches: matches,
		Init:    initDriver,
	})
}

var matches = []dt.Match{
	{Compatible: "aspeed,ast2400-otp"},
	{Compatible: "aspeed,ast2500-otp"},
	{Compatible: "aspeed,ast2600-otp"},
}

func initDriver(s *soc.Session, dev *soc.Device) error {
	r, err := dt.RegAt(dev.Node, 0)
	if err != nil {
		return err
	}
	dev.Drvdata = &OTP{h: s.AHB, base: r.Start}
	return nil
}

// unlock writes the passcode key that gates any OTP write.
func (o *OTP) unlock() error {
	return o.h.Writel(o.base+regPasscode, passcodeKey)
}

// Read returns the raw OTP word at index; reads are unguarded.
func (o *OTP) Read(index uint32) (uint32, error) {
	v, err := o.h.Readl(o.base + regData + index*4)
	if err != nil {
		return 0, fmt.Errorf("otp: read[%d]: %w", index, err)
	}
	return v, nil
}

// ProgramBit sets one OTP bit. Returns culverr.AlreadyInState if the bit
// already reads as programmed.
func (o *OTP) ProgramBit(index, bit uint32) error {
	cur, err := o.Read(index)
	if err != nil {
		return err
	}
	if cur&(1<<bit) != 0 {
		return fmt.Errorf("otp: bit %d of word %d already programmed: %w", bit, index, culverr.AlreadyInState)
	}

	if err := o.unlock(); err != nil {
		return fmt.Errorf("otp: program-bit: unlock: %w", err)
	}
	if err := o.h.Writel(o.base+regCommand, cmdProgram|(index<<8)|(bit<<16)); err != nil {
		return fmt.Errorf("otp: program-bit: command: %w", err)
	}
	return o.waitIdle()
}

// waitIdle polls the status register's idle bit with a 500ms timeout,
// reporting Timeout if the OTP controller never goes idle.
func (o *OTP) waitIdle() error {
	deadline := idlePollTimeout
	elapsed := time.Duration(0)
	for {
		v, err := o.h.Readl(o.base + regStatus)
		if err != nil {
			return fmt.Errorf("otp: wait-idle: %w", err)
		}
		if v&statusIdle != 0 {
			return nil
		}
		if elapsed >= deadline {
			return fmt.Errorf("otp: wait-idle: %w", culverr.Timeout)
		}
		time.Sleep(idlePollInterval)
		elapsed += idlePollInterval
	}
}

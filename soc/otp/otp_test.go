package otp

import (
	"errors"
	"testing"
	"time"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/internal/culverr"
	"culvert.dev/culvert/internal/regsim"
)

func fakeOTP() (*OTP, *regsim.Map) {
	sim := regsim.New()
	h := &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}
	// idle by default so program-bit doesn't poll forever
	sim.Seed(0x1e6f2000+regStatus, statusIdle)
	return &OTP{h: h, base: 0x1e6f2000}, sim
}

func TestProgramBitUnlocksWithPasscode(t *testing.T) {
	o, sim := fakeOTP()
	if err := o.ProgramBit(0, 3); err != nil {
		t.Fatalf("program bit: %v", err)
	}
	key, err := sim.Readl(o.base + regPasscode)
	if err != nil {
		t.Fatalf("read passcode: %v", err)
	}
	if key != passcodeKey {
		t.Errorf("passcode = %#x, want %#x", key, passcodeKey)
	}
}

func TestProgramBitAlreadySet(t *testing.T) {
	o, sim := fakeOTP()
	sim.Seed(o.base+regData, 1<<3)
	if err := o.ProgramBit(0, 3); !errors.Is(err, culverr.AlreadyInState) {
		t.Fatalf("expected AlreadyInState, got %v", err)
	}
}

func TestWaitIdleTimesOut(t *testing.T) {
	sim := regsim.New() // status register never reads idle
	h := &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}
	o := &OTP{h: h, base: 0x1e6f2000}

	start := time.Now()
	err := o.waitIdle()
	if !errors.Is(err, culverr.Timeout) {
		t.Fatalf("expected Timeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("wait-idle took far longer than the 500ms budget")
	}
}

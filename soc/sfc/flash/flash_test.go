package flash_test

import (
	"bytes"
	"testing"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/internal/regsim"
	"culvert.dev/culvert/soc/sfc"
	"culvert.dev/culvert/soc/sfc/flash"
)

const (
	sfcBase    = 0x1e620000
	windowBase = 0x20000000
	windowLen  = 16 << 20

	// regCmdData mirrors package sfc's unexported offset; duplicated here
	// since the chip-discipline tests need to seed an RDID response
	// without a real SPI NOR part behind the AHB handle.
	regCmdData = 0x08
)

func fakeFlash(t *testing.T, capacityByte byte) *flash.Flash {
	t.Helper()
	sim := regsim.New()
	h := &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}
	ctl := sfc.New(h, sfcBase, windowBase, windowLen)

	// RDID response: vendor=0xef, type=0x60, capacity=capacityByte, packed
	// little-endian the way CmdRd unpacks its data register.
	id := uint32(0xef) | uint32(0x60)<<8 | uint32(capacityByte)<<16
	sim.Seed(sfcBase+regCmdData, id)

	f, err := flash.Identify(ctl)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	return f
}

func TestIdentifyReadsCapacity(t *testing.T) {
	f := fakeFlash(t, 0x16) // 4 MiB
	if f.Chip().SizeByte != 4<<20 {
		t.Errorf("size = %d, want 4MiB", f.Chip().SizeByte)
	}
}

func TestIdentifyUnknownCapacity(t *testing.T) {
	sim := regsim.New()
	h := &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}
	ctl := sfc.New(h, sfcBase, windowBase, windowLen)
	sim.Seed(sfcBase+regCmdData, 0xff60ef) // capacity byte 0xff is not in chipTable

	if _, err := flash.Identify(ctl); err == nil {
		t.Fatal("expected identify to fail on unknown capacity byte")
	}
}

func TestProgramPageVerifies(t *testing.T) {
	f := fakeFlash(t, 0x16)
	data := bytes.Repeat([]byte{0xaa}, 256)
	if err := f.ProgramPage(0x1000, data); err != nil {
		t.Fatalf("program page: %v", err)
	}
	got := make([]byte, len(data))
	if err := f.Read(0x1000, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("readback does not match programmed data")
	}
}

// TestSmartWriteSkipsWhenAlreadyMatching verifies that a smart-write
// whose target already reads as the desired content issues no erase and
// no program at all.
func TestSmartWriteSkipsWhenAlreadyMatching(t *testing.T) {
	sim := regsim.New()
	h := &ahb.Handle{Driver: &ahb.Driver{Name: "sim"}, Ops: sim}
	ctl := sfc.New(h, sfcBase, windowBase, windowLen)
	sim.Seed(sfcBase+regCmdData, uint32(0xef)|uint32(0x60)<<8|uint32(0x16)<<16)
	f, err := flash.Identify(ctl)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	writesBefore := len(sim.Writes)

	content := make([]byte, 512) // flash reads as all-zero until written
	if err := f.SmartWrite(0x1000, content); err != nil {
		t.Fatalf("smart write: %v", err)
	}
	// Every erase and page program starts with a write-enable command
	// through the controller's registers, so no register write means
	// neither was issued.
	if n := len(sim.Writes) - writesBefore; n != 0 {
		t.Errorf("smart write issued %d register writes, want none", n)
	}
	got := make([]byte, len(content))
	if err := f.Read(0x1000, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("content mismatch after no-op smart write")
	}
}

func TestSmartWriteErasesAndProgramsOnMismatch(t *testing.T) {
	f := fakeFlash(t, 0x16)
	content := bytes.Repeat([]byte{0x5a}, 512)
	if err := f.SmartWrite(0x1000, content); err != nil {
		t.Fatalf("smart write: %v", err)
	}
	got := make([]byte, len(content))
	if err := f.Read(0x1000, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("content mismatch after smart write")
	}
}

func TestSmartWriteRejectsMisalignedOffset(t *testing.T) {
	f := fakeFlash(t, 0x16)
	if err := f.SmartWrite(0x1001, []byte{0x01}); err == nil {
		t.Fatal("expected misaligned offset to fail")
	}
}

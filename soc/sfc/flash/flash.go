// package flash implements the chip-discipline layer above the SPI
// flash controller (package sfc): chip identification, 4-byte-addressing
// switch-over, 4 KiB sector erase, page program with readback verify, and
// verify-then-retry smart-write. The 32 KiB and 64 KiB block-erase
// opcodes are defined but no operation here issues them.
package flash

import (
	"bytes"
	"fmt"

	"culvert.dev/culvert/internal/culverr"
	"culvert.dev/culvert/soc/sfc"
)

const (
	opcodeRDID        = 0x9f
	opcodeWriteEnable  = 0x06
	opcodeSectorErase  = 0x20 // 4 KiB
	opcodeBlock32Erase = 0x52 // 32 KiB
	opcodeBlock64Erase = 0xd8 // 64 KiB
	opcodePageProgram  = 0x02
	opcodeReadStatus   = 0x05

	statusWriteInProgress = 1 << 0

	pageSize   = 256
	sectorSize = 4 << 10
)

// Chip describes one identified flash part's capabilities.
type Chip struct {
	Vendor   byte
	Type     byte
	Capacity byte
	SizeByte uint64
}

// chipTable maps an RDID capacity byte to a total size, following the
// common JEDEC convention size = 2^capacity bytes; vendor/type bytes are
// recorded but not used to gate behaviour since every supported chip
// follows the same page/sector geometry.
var chipTable = map[byte]uint64{
	0x14: 1 << 20,  // 1 MiB
	0x15: 2 << 20,  // 2 MiB
	0x16: 4 << 20,  // 4 MiB
	0x17: 8 << 20,  // 8 MiB
	0x18: 16 << 20, // 16 MiB
	0x19: 32 << 20, // 32 MiB
	0x1a: 64 << 20, // 64 MiB
	0x1b: 128 << 20,
}

// Flash binds a chip identity to the controller it was identified on.
type Flash struct {
	ctl  *sfc.Controller
	chip Chip
}

// Identify issues RDID and looks the capacity byte up in chipTable,
// switching the controller into 4-byte addressing when the chip exceeds
// 16 MiB.
func Identify(ctl *sfc.Controller) (*Flash, error) {
	var id [3]byte
	if err := ctl.CmdRd(opcodeRDID, id[:]); err != nil {
		return nil, fmt.Errorf("flash: identify: %w", err)
	}
	size, ok := chipTable[id[2]]
	if !ok {
		return nil, fmt.Errorf("flash: identify: unknown capacity byte %#x: %w", id[2], culverr.NotSupported)
	}
	chip := Chip{Vendor: id[0], Type: id[1], Capacity: id[2], SizeByte: size}
	if size > 16<<20 {
		if err := ctl.Set4B(true); err != nil {
			return nil, fmt.Errorf("flash: identify: set-4b: %w", err)
		}
	}
	return &Flash{ctl: ctl, chip: chip}, nil
}

// Chip returns the identified chip's capabilities.
func (f *Flash) Chip() Chip { return f.chip }

// Read copies len(buf) bytes from the flash at offset via the
// direct-mapped AHB window.
func (f *Flash) Read(offset uint32, buf []byte) error {
	return f.ctl.DirectRead(offset, buf)
}

// EraseSector erases the 4 KiB sector containing offset.
func (f *Flash) EraseSector(offset uint32) error {
	return f.erase(opcodeSectorErase, offset)
}

func (f *Flash) erase(opcode byte, offset uint32) error {
	if err := f.ctl.CmdWr(opcodeWriteEnable, nil); err != nil {
		return fmt.Errorf("flash: erase: write-enable: %w", err)
	}
	addr := []byte{byte(offset >> 16), byte(offset >> 8), byte(offset)}
	if err := f.ctl.CmdWr(opcode, addr); err != nil {
		return fmt.Errorf("flash: erase: %w", err)
	}
	return f.waitIdle()
}

func (f *Flash) waitIdle() error {
	for {
		var status [1]byte
		if err := f.ctl.CmdRd(opcodeReadStatus, status[:]); err != nil {
			return fmt.Errorf("flash: wait-idle: %w", err)
		}
		if status[0]&statusWriteInProgress == 0 {
			return nil
		}
	}
}

// ProgramPage writes up to one 256-byte page at offset, verifying the
// readback and returning culverr.VerifyMismatch on disagreement.
func (f *Flash) ProgramPage(offset uint32, data []byte) error {
	if len(data) > pageSize {
		return fmt.Errorf("flash: program-page: %d exceeds page size: %w", len(data), culverr.InvalidArgument)
	}
	if err := f.ctl.CmdWr(opcodeWriteEnable, nil); err != nil {
		return fmt.Errorf("flash: program-page: write-enable: %w", err)
	}
	if err := f.ctl.DirectWrite(offset, data); err != nil {
		return fmt.Errorf("flash: program-page: %w", err)
	}
	if err := f.waitIdle(); err != nil {
		return err
	}
	got := make([]byte, len(data))
	if err := f.Read(offset, got); err != nil {
		return fmt.Errorf("flash: program-page: verify read: %w", err)
	}
	if !bytes.Equal(got, data) {
		return fmt.Errorf("flash: program-page at %#x: %w", offset, culverr.VerifyMismatch)
	}
	return nil
}

// SmartWrite writes content into the sector-aligned block starting at
// offset, erasing first only if the target does not already read as
// content. On a verify mismatch it rewrites the pages once more without
// erasing again, so the underlying erase is performed at most once per
// call.
func (f *Flash) SmartWrite(offset uint32, content []byte) error {
	if offset%sectorSize != 0 || len(content) > sectorSize {
		return fmt.Errorf("flash: smart-write: misaligned or oversized block: %w", culverr.InvalidArgument)
	}

	current := make([]byte, len(content))
	if err := f.Read(offset, current); err != nil {
		return fmt.Errorf("flash: smart-write: read current: %w", err)
	}
	if bytes.Equal(current, content) {
		return nil
	}

	erased := false
	for attempt := 0; attempt < 2; attempt++ {
		if !erased {
			if err := f.EraseSector(offset); err != nil {
				return fmt.Errorf("flash: smart-write: erase: %w", err)
			}
			erased = true
		}
		if err := f.writePages(offset, content); err == nil {
			return nil
		} else if attempt == 1 {
			return err
		}
	}
	return nil
}

func (f *Flash) writePages(offset uint32, content []byte) error {
	for o := 0; o < len(content); o += pageSize {
		end := o + pageSize
		if end > len(content) {
			end = len(content)
		}
		if err := f.ProgramPage(offset+uint32(o), content[o:end]); err != nil {
			return err
		}
	}
	return nil
}

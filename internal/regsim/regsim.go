// package regsim provides a small in-memory register map satisfying
// ahb.Ops, standing in for real hardware in driver tests the same way
// the teacher's driver/mjolnir/sim.go provides a simulated engraver
// behind the same io.ReadWriteCloser the serial-backed driver satisfies.
package regsim

import (
	"fmt"
	"sync"

	"culvert.dev/culvert/internal/culverr"
)

// Map is a byte-addressable register simulator. The zero value is ready
// to use.
type Map struct {
	mu   sync.Mutex
	mem  map[uint32]byte
	Writes []Write // every Writel call, in order, for idempotence assertions
}

// Write records one writel call.
type Write struct {
	Addr  uint32
	Value uint32
}

// New returns an empty simulator.
func New() *Map {
	return &Map{mem: map[uint32]byte{}}
}

func (m *Map) Read(phys uint32, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range buf {
		buf[i] = m.mem[phys+uint32(i)]
	}
	return len(buf), nil
}

func (m *Map) Write(phys uint32, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mem == nil {
		m.mem = map[uint32]byte{}
	}
	for i, b := range buf {
		m.mem[phys+uint32(i)] = b
	}
	return len(buf), nil
}

func (m *Map) Readl(phys uint32) (uint32, error) {
	if phys%4 != 0 {
		return 0, fmt.Errorf("regsim: readl %#x misaligned: %w", phys, culverr.InvalidArgument)
	}
	var b [4]byte
	if _, err := m.Read(phys, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (m *Map) Writel(phys uint32, v uint32) error {
	if phys%4 != 0 {
		return fmt.Errorf("regsim: writel %#x misaligned: %w", phys, culverr.InvalidArgument)
	}
	b := [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	if _, err := m.Write(phys, b[:]); err != nil {
		return err
	}
	m.mu.Lock()
	m.Writes = append(m.Writes, Write{Addr: phys, Value: v})
	m.mu.Unlock()
	return nil
}

// Seed presets a 32-bit register for a test fixture.
func (m *Map) Seed(phys, v uint32) {
	_ = m.Writel(phys, v)
	m.mu.Lock()
	m.Writes = nil // seeding is fixture setup, not a recorded transaction
	m.mu.Unlock()
}

// WriteCount returns how many Writel calls targeted addr.
func (m *Map) WriteCount(addr uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.Writes {
		if w.Addr == addr {
			n++
		}
	}
	return n
}

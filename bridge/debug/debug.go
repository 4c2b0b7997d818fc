// package debug implements the debug-UART bridge transport: a
// line-oriented protocol spoken to a BMC whose ROM has been coerced into
// its debug monitor, reached either over a local serial device or
// through a Digi Portserver TS-16 terminal server.
package debug

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tarm/serial"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/internal/culverr"
)

const (
	monitorBaud  = 115200
	unlockBaud   = 1200
	passwordEnv  = "AST_DEBUG_PASSWORD"
	monitorPromp = "$ "

	maxBulkRead  = 128 << 10
	maxBulkWrite = 128

	wdtReloadReg = 0x1e785024 // WDT2 reload register, see soc/wdt
)

// State is the debug transport's handle state: the prompt FSM and the
// underlying console (serial.Port or ts16).
type State struct {
	p      *prompt
	closer io.Closer
	t      *ts16 // nil when attached over a local serial device
}

// Driver is the registry descriptor for the debug-UART bridge. Its Probe
// returns culverr.NotSupported without touching the BMC unless
// Args.Interface is "debug": the CLI's trailing interface block must
// explicitly select it because, unlike the other transports, probing it
// has an observable side effect on the BMC (forcing it into its ROM
// monitor).
var Driver = &ahb.Driver{
	Name:    "debug",
	Probe:   probe,
	Destroy: destroy,
}

func probe(args ahb.Args) (*ahb.Handle, error) {
	if args.Interface != "debug" {
		return nil, fmt.Errorf("debug: probe: %w", culverr.NotSupported)
	}
	password := args.DebugPassword
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		return nil, fmt.Errorf("debug: %s not set: %w", passwordEnv, culverr.InvalidArgument)
	}

	var rw io.ReadWriter
	var closer io.Closer
	var t *ts16

	if args.DebugHost != "" {
		conn, err := dialTS16(args.DebugHost, args.DebugPort)
		if err != nil {
			return nil, err
		}
		rw, closer, t = conn, conn, conn
		if err := t.setBaud(unlockBaud); err != nil {
			conn.Close()
			return nil, err
		}
	} else {
		c := &serial.Config{Name: devicePath(args), Baud: unlockBaud}
		s, err := serial.OpenPort(c)
		if err != nil {
			return nil, fmt.Errorf("debug: open serial: %w", culverr.NotSupported)
		}
		rw, closer = s, s
	}

	p := newPrompt(rw)
	if err := p.write(password); err != nil {
		closer.Close()
		return nil, err
	}
	if _, err := p.expect(monitorPromp); err != nil {
		closer.Close()
		return nil, fmt.Errorf("debug: password handshake: %w", err)
	}

	if t != nil {
		if err := t.setBaud(monitorBaud); err != nil {
			closer.Close()
			return nil, err
		}
	}

	st := &State{p: p, closer: closer, t: t}
	return &ahb.Handle{Driver: Driver, Ops: st}, nil
}

func devicePath(args ahb.Args) string {
	if args.DebugUser != "" {
		return args.DebugUser
	}
	return "/dev/ttyUSB0"
}

func destroy(h *ahb.Handle) error {
	st := h.Ops.(*State)
	st.p.write("q")
	return st.closer.Close()
}

// Readl implements the "r <addr>" reply: an echoed address and value line
// followed by the prompt.
func (s *State) Readl(phys uint32) (uint32, error) {
	if _, err := s.p.run(fmt.Sprintf("r %x", phys)); err != nil {
		return 0, fmt.Errorf("debug: readl %#x: %w", phys, err)
	}
	line, err := s.p.gets()
	if err != nil {
		return 0, fmt.Errorf("debug: readl %#x: %w", phys, culverr.ProtocolViolation)
	}
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return 0, fmt.Errorf("debug: readl %#x: malformed reply %q: %w", phys, line, culverr.ProtocolViolation)
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("debug: readl %#x: %w", phys, culverr.ProtocolViolation)
	}
	return uint32(v), nil
}

// Writel implements the "w <addr> <value>" command, skipping the
// prompt-expect when the target is the watchdog reload register being
// zeroed -- that write is about to make the BMC reset, and waiting for a
// prompt that will never come would wedge the session.
func (s *State) Writel(phys uint32, v uint32) error {
	cmd := fmt.Sprintf("w %x %x", phys, v)
	if phys == wdtReloadReg && v == 0 {
		return s.p.runNoPrompt(cmd)
	}
	if _, err := s.p.run(cmd); err != nil {
		return fmt.Errorf("debug: writel %#x: %w", phys, err)
	}
	return nil
}

// Read implements byte reads via "i <addr>" for lengths under 4, one byte
// at a time, and the bulk "d <addr> <len>" path otherwise.
func (s *State) Read(phys uint32, buf []byte) (int, error) {
	if len(buf) < 4 {
		for i := range buf {
			lines, err := s.p.run(fmt.Sprintf("i %x", phys+uint32(i)))
			if err != nil || len(lines) == 0 {
				return i, fmt.Errorf("debug: read %#x: %w", phys, culverr.ProtocolViolation)
			}
			v, err := strconv.ParseUint(strings.TrimSpace(strings.Fields(lines[0])[len(strings.Fields(lines[0]))-1]), 16, 8)
			if err != nil {
				return i, fmt.Errorf("debug: read %#x: %w", phys, culverr.ProtocolViolation)
			}
			buf[i] = byte(v)
		}
		return len(buf), nil
	}
	return s.bulkRead(phys, buf)
}

// bulkRead implements the "d <addr> <len>" command, parsing reply lines
// of the form "<addr>:w0 w1 w2 w3\r\n" (little-endian words), retrying
// once from the failing address on a parse error.
func (s *State) bulkRead(phys uint32, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n := len(buf) - total
		if n > maxBulkRead {
			n = maxBulkRead
		}
		got, err := s.bulkReadChunk(phys+uint32(total), buf[total:total+n])
		if err != nil {
			// retry from the failing address once.
			got, err = s.bulkReadChunk(phys+uint32(total), buf[total:total+n])
			if err != nil {
				return total, err
			}
		}
		total += got
	}
	return total, nil
}

func (s *State) bulkReadChunk(phys uint32, buf []byte) (int, error) {
	lines, err := s.p.run(fmt.Sprintf("d %x %x", phys, len(buf)))
	if err != nil {
		return 0, fmt.Errorf("debug: bulk read %#x: %w", phys, culverr.ProtocolViolation)
	}
	off := 0
	for _, line := range lines {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return off, fmt.Errorf("debug: bulk read %#x: malformed line %q: %w", phys, line, culverr.ProtocolViolation)
		}
		words := strings.Fields(line[colon+1:])
		for _, w := range words {
			if len(w) != 8 {
				return off, fmt.Errorf("debug: bulk read %#x: malformed word %q: %w", phys, w, culverr.ProtocolViolation)
			}
			raw, err := hex.DecodeString(w)
			if err != nil || off+4 > len(buf) {
				return off, fmt.Errorf("debug: bulk read %#x: %w", phys, culverr.ProtocolViolation)
			}
			// Words are little-endian on the wire despite being printed
			// as one big hex string.
			buf[off], buf[off+1], buf[off+2], buf[off+3] = raw[3], raw[2], raw[1], raw[0]
			off += 4
		}
	}
	return off, nil
}

// Write implements byte writes via "o <addr> <byte>" for lengths up to 4,
// and the bulk "u <addr> <len>" path for anything larger.
func (s *State) Write(phys uint32, buf []byte) (int, error) {
	if len(buf) <= 4 {
		for i, b := range buf {
			if _, err := s.p.run(fmt.Sprintf("o %x %x", phys+uint32(i), b)); err != nil {
				return i, fmt.Errorf("debug: write %#x: %w", phys, err)
			}
		}
		return len(buf), nil
	}
	total := 0
	for total < len(buf) {
		n := len(buf) - total
		if n > maxBulkWrite {
			n = maxBulkWrite
		}
		if err := s.p.write(fmt.Sprintf("u %x %x", phys+uint32(total), n)); err != nil {
			return total, err
		}
		if _, err := io.WriteString(s.p.rw, string(buf[total:total+n])); err != nil {
			return total, fmt.Errorf("debug: write %#x: %w", phys, culverr.IOFailure)
		}
		if _, err := s.p.expect(monitorPromp); err != nil {
			return total, fmt.Errorf("debug: write %#x: %w", phys, err)
		}
		total += n
	}
	return total, nil
}

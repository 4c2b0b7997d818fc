package debug

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"culvert.dev/culvert/internal/culverr"
)

// prompt is the line-oriented finite state machine the debug-UART
// transport is built from: explicit expect/gets/write/run primitives
// instead of inlined read loops. It wraps any byte stream: a local TTY
// via github.com/tarm/serial, or a TS16 terminal-server console
// connection.
type prompt struct {
	rw  io.ReadWriter
	r   *bufio.Reader
	buf strings.Builder
}

func newPrompt(rw io.ReadWriter) *prompt {
	return &prompt{rw: rw, r: bufio.NewReader(rw)}
}

// write sends a line to the console, terminated with \r as the BMC debug
// monitor expects.
func (p *prompt) write(s string) error {
	_, err := io.WriteString(p.rw, s+"\r")
	if err != nil {
		return fmt.Errorf("debug: write: %w", culverr.IOFailure)
	}
	return nil
}

// gets reads one line (without the terminator) from the console.
func (p *prompt) gets() (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("debug: gets: %w", culverr.IOFailure)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// expect reads lines until one contains want, returning it. There is no
// hard deadline: a stuck prompt hangs here until the underlying stream
// returns EOF or an error, at which point it is reported as Timeout.
func (p *prompt) expect(want string) (string, error) {
	for {
		line, err := p.gets()
		if err != nil {
			return "", fmt.Errorf("debug: expect %q: %w", want, culverr.Timeout)
		}
		if strings.Contains(line, want) {
			return line, nil
		}
	}
}

// run sends cmd and waits for the monitor's "$ " prompt, returning every
// line seen in between.
func (p *prompt) run(cmd string) ([]string, error) {
	if err := p.write(cmd); err != nil {
		return nil, err
	}
	var lines []string
	for {
		line, err := p.gets()
		if err != nil {
			return lines, fmt.Errorf("debug: run %q: %w", cmd, culverr.Timeout)
		}
		if strings.TrimSpace(line) == "$" || strings.HasSuffix(line, "$ ") {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// runNoPrompt sends cmd without waiting for the trailing "$ " prompt,
// used for the watchdog-reload write that would otherwise wedge the
// session.
func (p *prompt) runNoPrompt(cmd string) error {
	return p.write(cmd)
}

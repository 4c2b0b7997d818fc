package debug

import (
	"fmt"
	"net"
	"time"

	"culvert.dev/culvert/internal/culverr"
)

// ts16 is a console connection to a Digi Portserver TS-16 terminal
// server: a TCP data connection carrying the BMC's UART, plus a way to
// reach the server's control port to change the attached BMC's line
// speed out of band for the 1200-baud unlock handshake.
type ts16 struct {
	conn net.Conn
	host string
	port int
}

func dialTS16(host string, port int) (*ts16, error) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("debug: dial %s:%d: %w", host, port, culverr.IOFailure)
	}
	return &ts16{conn: conn, host: host, port: port}, nil
}

func (t *ts16) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *ts16) Write(p []byte) (int, error) { return t.conn.Write(p) }
func (t *ts16) Close() error                { return t.conn.Close() }

// setBaud reprograms the terminal server's line speed for this port via
// its RFC2217-style control channel. Real Digi hardware exposes this on a
// parallel control connection (typically port+10000); culvert dials it
// fresh for each baud change rather than holding it open, since the
// change is infrequent (twice per debug session: down to 1200 for the
// password handshake, back to 115200 afterwards).
func (t *ts16) setBaud(baud int) error {
	ctl, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", t.host, t.port+10000), 5*time.Second)
	if err != nil {
		return fmt.Errorf("debug: dial ts16 control: %w", culverr.IOFailure)
	}
	defer ctl.Close()
	if _, err := fmt.Fprintf(ctl, "set line baud %d\r\n", baud); err != nil {
		return fmt.Errorf("debug: set baud: %w", culverr.IOFailure)
	}
	return nil
}

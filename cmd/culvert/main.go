// Command culvert opens an AHB bridge to an ASPEED BMC, probes its SoC
// drivers, and exposes the bridge-enforcement, register, and reset
// operations that back the library packages as a handful of
// subcommands.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jessevdk/go-flags"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/discover"
	"culvert.dev/culvert/reset"
	"culvert.dev/culvert/soc"
	_ "culvert.dev/culvert/soc/all"
)

var opts struct {
	Interface     string `short:"i" long:"interface" description:"bridge transport to use (ilpcb, p2ab-vga, devmem, debug); empty probes in discovery order"`
	DebugHost     string `long:"debug-host" description:"terminal-server host, for -i debug"`
	DebugPort     int    `long:"debug-port" default:"5214" description:"terminal-server port, for -i debug"`
	DebugUser     string `long:"debug-user" description:"local serial device for -i debug when --debug-host is empty (default /dev/ttyUSB0); not sent as a login"`
	DebugPassword string `long:"debug-password" description:"debug UART password, for -i debug"`
}

type probeCmd struct{}

func (c *probeCmd) Execute(args []string) error {
	res, err := discover.Open(argsFromOpts(), true)
	if err != nil {
		return err
	}
	defer res.Registry.Destroy()

	s, err := soc.Probe(res.Handle)
	if err != nil {
		return err
	}
	defer s.Destroy()

	fmt.Printf("generation: %s\n", s.Generation)
	fmt.Printf("session: %s\n", s.ID)
	return nil
}

type reportCmd struct{}

func (c *reportCmd) Execute(args []string) error {
	res, err := discover.Open(argsFromOpts(), true)
	if err != nil {
		return err
	}
	defer res.Registry.Destroy()

	s, err := soc.Probe(res.Handle)
	if err != nil {
		return err
	}
	defer s.Destroy()

	for _, b := range s.Bridges {
		if err := b.Report(os.Stdout); err != nil {
			return err
		}
	}
	return nil
}

type resetCmd struct {
	Args struct {
		Watchdog string `positional-arg-name:"watchdog" description:"watchdog instance to reset through (e.g. wdt2)"`
	} `positional-args:"yes" required:"yes"`
}

func (c *resetCmd) Execute(args []string) error {
	res, err := discover.Open(argsFromOpts(), true)
	if err != nil {
		return err
	}
	defer res.Registry.Destroy()

	s, err := soc.Probe(res.Handle)
	if err != nil {
		return err
	}
	defer s.Destroy()

	if err := reset.PreventAll(s); err != nil {
		return fmt.Errorf("prevent firmware watchdogs: %w", err)
	}
	return reset.PerformReset(s, c.Args.Watchdog)
}

type readlCmd struct {
	Args struct {
		Addr string `positional-arg-name:"addr" description:"physical AHB address, hex"`
	} `positional-args:"yes" required:"yes"`
}

func (c *readlCmd) Execute(args []string) error {
	addr, err := parseHex32(c.Args.Addr)
	if err != nil {
		return err
	}
	res, err := discover.Open(argsFromOpts(), false)
	if err != nil {
		return err
	}
	defer res.Registry.Destroy()

	v, err := res.Handle.Readl(addr)
	if err != nil {
		return err
	}
	fmt.Printf("%#08x\n", v)
	return nil
}

type writelCmd struct {
	Args struct {
		Addr  string `positional-arg-name:"addr" description:"physical AHB address, hex"`
		Value string `positional-arg-name:"value" description:"32-bit value, hex"`
	} `positional-args:"yes" required:"yes"`
}

func (c *writelCmd) Execute(args []string) error {
	addr, err := parseHex32(c.Args.Addr)
	if err != nil {
		return err
	}
	v, err := parseHex32(c.Args.Value)
	if err != nil {
		return err
	}
	res, err := discover.Open(argsFromOpts(), true)
	if err != nil {
		return err
	}
	defer res.Registry.Destroy()

	return res.Handle.Writel(addr, v)
}

func argsFromOpts() ahb.Args {
	return ahb.Args{
		Interface:     opts.Interface,
		DebugHost:     opts.DebugHost,
		DebugPort:     opts.DebugPort,
		DebugUser:     opts.DebugUser,
		DebugPassword: opts.DebugPassword,
	}
}

func parseHex32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("culvert: %q is not a valid address or value: %w", s, err)
	}
	return uint32(v), nil
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("probe", "Probe the SoC and print its generation", "", &probeCmd{})
	parser.AddCommand("report", "Print the status of every bridge-enforcement controller", "", &reportCmd{})
	parser.AddCommand("reset", "Reset the SoC via a watchdog", "", &resetCmd{})
	parser.AddCommand("readl", "Read one 32-bit AHB register", "", &readlCmd{})
	parser.AddCommand("writel", "Write one 32-bit AHB register", "", &writelCmd{})

	if _, err := parser.Parse(); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "culvert: %v\n", err)
		os.Exit(1)
	}
}

// package bridgectl defines the uniform bridge-enforcement capability
// shared by the ilpcctl, debugctl, and pciectl SoC drivers.
package bridgectl

import (
	"fmt"
	"io"
)

// Mode is the ordered bridge strictness enum: permissive is the least
// strict (read+write), disabled the most.
type Mode int

const (
	Permissive Mode = iota
	Restricted
	Disabled
)

func (m Mode) String() string {
	switch m {
	case Permissive:
		return "Read-write"
	case Restricted:
		return "Read-only"
	case Disabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}

// AtLeast reports whether m is at least as strict as min, in the
// permissive < restricted < disabled order.
func (m Mode) AtLeast(min Mode) bool { return m >= min }

// Controller is the capability set every bridge-enforcement driver
// implements: enforce a mode, report the actual mode, and print a
// human-readable status line.
type Controller interface {
	Name() string
	Enforce(m Mode) error
	Status() (Mode, error)
	Report(w io.Writer) error
}

// Min returns the least-permissive (i.e. numerically largest) mode across
// every registered controller -- the aggregate discovered mode for a
// session.
func Min(ctls []Controller) (Mode, error) {
	agg := Permissive
	for _, c := range ctls {
		m, err := c.Status()
		if err != nil {
			return 0, fmt.Errorf("bridgectl: status %s: %w", c.Name(), err)
		}
		if m > agg {
			agg = m
		}
	}
	return agg, nil
}

// AtLeast reports whether the discovered aggregate mode across ctls is at
// least as strict as the requested minimum.
func AtLeast(ctls []Controller, requested Mode) (bool, error) {
	agg, err := Min(ctls)
	if err != nil {
		return false, err
	}
	return agg.AtLeast(requested), nil
}

// ReportAll writes one report line per controller to w.
func ReportAll(w io.Writer, ctls []Controller) error {
	for _, c := range ctls {
		if err := c.Report(w); err != nil {
			return err
		}
	}
	return nil
}

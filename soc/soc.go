// package soc implements the devicetree-driven SoC driver framework: a
// driver registry bound to nodes by compatible string, ordered
// instantiation, and region lookups, plus the Session type representing
// one open SoC.
package soc

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/dt"
	"culvert.dev/culvert/internal/culverr"
	"culvert.dev/culvert/soc/bridgectl"
)

// SiliconRevisionAddr is the AHB address of the SCU silicon-revision
// register every generation exposes at the same offset.
const SiliconRevisionAddr = 0x1e6e207c

// Driver is a static descriptor for one SoC driver, registered at
// program start into the process-wide registry.
type Driver struct {
	Name    string
	Matches []dt.Match
	Init    func(s *Session, dev *Device) error
	Destroy func(s *Session, dev *Device) error
}

var registry []*Driver

// Register adds a driver to the process-wide registry. Called from each
// driver package's init().
func Register(d *Driver) {
	registry = append(registry, d)
}

// Device is one instantiated driver instance.
type Device struct {
	Parent  *Session
	Node    *dt.Node
	Driver  *Driver
	Drvdata any
}

// Session is one open SoC.
type Session struct {
	ID         uuid.UUID
	Generation dt.Generation
	Tree       *dt.Tree
	AHB        *ahb.Handle

	devices  []*Device
	Bridges  []bridgectl.Controller
}

// Probe reads the SoC revision through h, selects the matching
// devicetree, and instantiates every registered driver against every
// devicetree node it matches, in registry order.
//
// On a driver Init failure, Probe unwinds every prior successful Init in
// reverse order and returns the first error. An error encountered while
// unwinding is logged but does not replace the first error already being
// returned -- the original source's ast_ahb_init has the same "first rc
// wins" property by accident of a reused goto label; here it is
// explicit.
func Probe(h *ahb.Handle) (*Session, error) {
	rev, err := h.Readl(SiliconRevisionAddr)
	if err != nil {
		return nil, fmt.Errorf("soc: probe: read silicon revision: %w", err)
	}
	gen, err := dt.GenerationFromRevision(rev)
	if err != nil {
		return nil, fmt.Errorf("soc: probe: %w", err)
	}
	tree, err := dt.Load(gen)
	if err != nil {
		return nil, fmt.Errorf("soc: probe: %w", err)
	}
	return ProbeTree(h, tree, gen)
}

// ProbeTree instantiates every registered driver against an
// already-selected devicetree, separated from revision/tree selection so
// the instantiation-and-unwind logic can be exercised directly against a
// synthetic tree in tests.
func ProbeTree(h *ahb.Handle, tree *dt.Tree, gen dt.Generation) (*Session, error) {
	s := &Session{ID: uuid.New(), Generation: gen, Tree: tree, AHB: h}

	var firstErr error
	for _, drv := range registry {
		matches := dt.FindAllCompatible(tree.Root, drv.Matches)
		for _, m := range matches {
			dev := &Device{Parent: s, Node: m.Node, Driver: drv}
			if err := drv.Init(s, dev); err != nil {
				firstErr = fmt.Errorf("soc: init %s at %s: %w", drv.Name, m.Node.Path(), err)
				break
			}
			s.devices = append(s.devices, dev)
			if ctl, ok := dev.Drvdata.(bridgectl.Controller); ok {
				s.Bridges = append(s.Bridges, ctl)
			}
		}
		if firstErr != nil {
			break
		}
	}

	if firstErr != nil {
		s.unwind()
		return nil, firstErr
	}
	return s, nil
}

// unwind calls Destroy on every successfully-initialized device in
// reverse order, logging (not returning) any failure so the first probe
// error set by the caller is preserved.
func (s *Session) unwind() {
	for i := len(s.devices) - 1; i >= 0; i-- {
		dev := s.devices[i]
		if dev.Driver.Destroy == nil {
			continue
		}
		if err := dev.Driver.Destroy(s, dev); err != nil {
			log.Printf("soc: unwind %s at %s: %v", dev.Driver.Name, dev.Node.Path(), err)
		}
	}
	s.devices = nil
}

// Destroy tears down every instantiated device, in reverse
// device-registration order.
func (s *Session) Destroy() error {
	var firstErr error
	for i := len(s.devices) - 1; i >= 0; i-- {
		dev := s.devices[i]
		if dev.Driver.Destroy == nil {
			continue
		}
		if err := dev.Driver.Destroy(s, dev); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("soc: destroy %s at %s: %w", dev.Driver.Name, dev.Node.Path(), err)
		}
	}
	s.devices = nil
	return firstErr
}

// Drvdata returns the first instance of driver name.
func (s *Session) Drvdata(name string) (any, error) {
	for _, dev := range s.devices {
		if dev.Driver.Name == name {
			return dev.Drvdata, nil
		}
	}
	return nil, fmt.Errorf("soc: no instance of %s: %w", name, culverr.NotSupported)
}

// DrvdataByName returns the instance of driver name whose node resolves
// from nodeName via alias or absolute path.
func (s *Session) DrvdataByName(name, nodeName string) (any, error) {
	node, ok := s.Tree.FindByNameOrPath(nodeName)
	if !ok {
		return nil, fmt.Errorf("soc: no node %s: %w", nodeName, culverr.InvalidArgument)
	}
	return s.DrvdataByNode(name, node)
}

// DrvdataByNode returns the driver-name instance bound to an exact node.
func (s *Session) DrvdataByNode(name string, node *dt.Node) (any, error) {
	for _, dev := range s.devices {
		if dev.Driver.Name == name && dev.Node == node {
			return dev.Drvdata, nil
		}
	}
	return nil, fmt.Errorf("soc: no %s instance at %s: %w", name, node.Path(), culverr.NotSupported)
}

// package host implements the bridge-driver registry: an insertion-ordered
// list of bridge drivers, probed through periph's driverreg (which starts
// them concurrently), from which the first successfully attached AHB
// handle in registration order is handed to callers.
//
// The registration and probe-ordering bookkeeping is built directly on
// periph.io/x/conn/v3/driver's Impl interface and its driverreg registry
// -- the same mechanism seedhammer's lcd and input packages ride via
// spireg.Open("") and host.Init() to get "the first thing that answered",
// generalized here from SPI ports and GPIO chips to AHB bridges.
package host

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/driver"
	"periph.io/x/conn/v3/driver/driverreg"

	"culvert.dev/culvert/ahb"
	"culvert.dev/culvert/internal/culverr"
)

// Registry is an ordered set of bridge drivers and the handles, if any,
// that answered the most recent Init.
type Registry struct {
	mu       sync.Mutex
	entries  []*entry
	byDriver map[*ahb.Driver]*entry
}

type entry struct {
	d    *ahb.Driver
	impl *adapter
	h    *ahb.Handle
}

// adapter satisfies periph's driver.Impl so that registration ordering,
// duplicate-name detection, and failure bookkeeping come from periph's
// registry instead of being reimplemented.
type adapter struct {
	d    *ahb.Driver
	args ahb.Args
	h    *ahb.Handle
	err  error
}

var _ driver.Impl = (*adapter)(nil)

func (a *adapter) String() string          { return a.d.Name }
func (a *adapter) Prerequisites() []string { return nil }
func (a *adapter) After() []string         { return nil }

func (a *adapter) Init() (bool, error) {
	h, err := a.d.Probe(a.args)
	if err != nil {
		if errors.Is(err, culverr.NotSupported) || errors.Is(err, culverr.PermissionDenied) {
			// Absent from this host, not a registry failure: discovery
			// treats a transport's NotSupported as "this transport is
			// absent" rather than aborting the whole probe pass.
			return false, nil
		}
		a.err = err
		return false, err
	}
	a.h = h
	return true, nil
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byDriver: map[*ahb.Driver]*entry{}}
}

// Register adds a bridge driver to the registry in the order it should be
// probed.
func (r *Registry) Register(d *ahb.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &entry{d: d}
	r.entries = append(r.entries, e)
	r.byDriver[d] = e
}

// Init walks every registered driver, probing each with args through
// periph's driverreg, and records the ones that return a live handle.
// periph's driverreg resolves its registered set exactly once per
// process and rejects re-registration afterward, so unlike Reprobe below
// this can only be called once per Registry.
func (r *Registry) Init(args ahb.Args) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		a := &adapter{d: e.d, args: args}
		e.impl = a
		if err := driverreg.Register(a); err != nil {
			return fmt.Errorf("host: register %s: %w", e.d.Name, err)
		}
	}

	if _, err := driverreg.Init(); err != nil {
		return fmt.Errorf("host: init: %w", err)
	}

	for _, e := range r.entries {
		if e.impl == nil {
			continue
		}
		if e.impl.h != nil {
			e.h = e.impl.h
		}
	}
	return nil
}

// Reprobe re-runs one driver's Probe directly, bypassing periph's
// registry. driverreg only ever resolves a driver once, at Init, so a
// transport whose availability changes afterward -- because discovery
// just flipped a hardware enable bit through a different transport --
// cannot be re-resolved by calling Init again. Reprobe is how the
// opportunistic-enablement retries in package discover pick such a
// transport back up.
func (r *Registry) Reprobe(name string, args ahb.Args) (*ahb.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.d.Name != name {
			continue
		}
		h, err := e.d.Probe(args)
		if err != nil {
			if errors.Is(err, culverr.NotSupported) || errors.Is(err, culverr.PermissionDenied) {
				return nil, fmt.Errorf("host: reprobe %s: %w", name, culverr.NotSupported)
			}
			return nil, fmt.Errorf("host: reprobe %s: %w", name, err)
		}
		e.h = h
		return h, nil
	}
	return nil, fmt.Errorf("host: reprobe: no driver %s: %w", name, culverr.NotSupported)
}

// GetAHB returns the first attached handle, in registration order,
// optionally restricted to a named driver.
func (r *Registry) GetAHB(prefer string) (*ahb.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.h == nil {
			continue
		}
		if prefer != "" && e.d.Name != prefer {
			continue
		}
		return e.h, nil
	}
	return nil, fmt.Errorf("host: no attached bridge: %w", culverr.NotSupported)
}

// Attached returns the drivers that answered the most recent Init, in
// registration order.
func (r *Registry) Attached() []*ahb.Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ahb.Driver
	for _, e := range r.entries {
		if e.h != nil {
			out = append(out, e.d)
		}
	}
	return out
}

// Destroy tears every attached handle down, in registration order.
func (r *Registry) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, e := range r.entries {
		if e.h == nil {
			continue
		}
		if err := e.h.Destroy(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("host: destroy %s: %w", e.d.Name, err)
		}
		e.h = nil
	}
	return firstErr
}

// ReleaseFromAHB and ReinitFromAHB dispatch the watchdog-reset hooks
// through the driver descriptor the handle itself carries, so the reset
// choreography (package reset) does not need to know which transport is
// current.
func ReleaseFromAHB(h *ahb.Handle) error { return h.Release() }
func ReinitFromAHB(h *ahb.Handle) error  { return h.Reinit() }

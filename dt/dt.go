// package dt implements the devicetree query layer: lookups by compatible
// string, alias, and path over a small node model, treated as an opaque
// read-only query service. This package operates on the parsed node
// model a flattened-devicetree blob would decode to, and Generation
// builds that model directly for the three supported SoC generations
// rather than shipping and decoding a binary .dtb asset.
package dt

import (
	"fmt"

	"culvert.dev/culvert/internal/culverr"
)

// RegRange is one entry of a node's reg property: an (address, length)
// pair assuming #address-cells = #size-cells = 1.
type RegRange struct {
	Start  uint32
	Length uint32
}

// Node is one devicetree node: a name, its compatible strings, optional
// device_type, reg ranges, and a phandle, wired into a tree of children.
type Node struct {
	Name       string
	Compatible []string
	DeviceType string
	Reg        []RegRange
	Phandle    uint32

	Parent   *Node
	Children []*Node
}

// Tree is a full devicetree: a root node plus the alias and path lookup
// tables real devicetrees carry in /aliases and aliasable full paths.
type Tree struct {
	Root    *Node
	Aliases map[string]string // alias name -> absolute path
}

// Path returns the absolute path of a node, e.g. "/ahb/apb/wdt@1e785000".
func (n *Node) Path() string {
	if n.Parent == nil {
		return "/"
	}
	parent := n.Parent.Path()
	if parent == "/" {
		return "/" + n.Name
	}
	return parent + "/" + n.Name
}

// IsCompatible reports whether n's compatible property matches any entry
// of table, returning the matching entry's associated Data -- this is how
// per-SoC register offsets, bit masks, and function pointers are
// delivered to drivers.
func IsCompatible(n *Node, table []Match) (any, bool) {
	for _, m := range table {
		for _, c := range n.Compatible {
			if c == m.Compatible {
				return m.Data, true
			}
		}
	}
	return nil, false
}

// Match pairs a compatible string with opaque per-SoC data a driver wants
// back when it matches.
type Match struct {
	Compatible string
	Data       any
}

// FindCompatible performs a depth-first search (root matched directly)
// for the first node whose compatible property matches any string in
// table.
func FindCompatible(root *Node, table []Match) (*Node, any, bool) {
	if data, ok := IsCompatible(root, table); ok {
		return root, data, true
	}
	for _, c := range root.Children {
		if n, data, ok := FindCompatible(c, table); ok {
			return n, data, ok
		}
	}
	return nil, nil, false
}

// FindAllCompatible returns every node matching table, depth-first, along
// with the Data each one matched on -- used by the SoC driver framework
// to instantiate a driver against every node its compatibles cover.
func FindAllCompatible(root *Node, table []Match) []CompatibleMatch {
	var out []CompatibleMatch
	var walk func(n *Node)
	walk = func(n *Node) {
		if data, ok := IsCompatible(n, table); ok {
			out = append(out, CompatibleMatch{Node: n, Data: data})
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

// CompatibleMatch is one FindAllCompatible result.
type CompatibleMatch struct {
	Node *Node
	Data any
}

// FindDeviceType returns the first node with the given device_type,
// depth-first.
func FindDeviceType(root *Node, deviceType string) (*Node, bool) {
	if root.DeviceType == deviceType {
		return root, true
	}
	for _, c := range root.Children {
		if n, ok := FindDeviceType(c, deviceType); ok {
			return n, ok
		}
	}
	return nil, false
}

// FindPath resolves an absolute path like "/ahb/apb/wdt@1e785000".
func FindPath(root *Node, path string) (*Node, bool) {
	if path == "" || path == "/" {
		return root, true
	}
	cur := root
	seg := ""
	for _, r := range path {
		if r == '/' {
			if seg != "" {
				next, ok := childNamed(cur, seg)
				if !ok {
					return nil, false
				}
				cur = next
				seg = ""
			}
			continue
		}
		seg += string(r)
	}
	if seg != "" {
		next, ok := childNamed(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func childNamed(n *Node, name string) (*Node, bool) {
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// FindAlias resolves a /aliases entry to its target node.
func (t *Tree) FindAlias(alias string) (*Node, bool) {
	path, ok := t.Aliases[alias]
	if !ok {
		return nil, false
	}
	return FindPath(t.Root, path)
}

// FindByNameOrPath resolves name first as an alias, then as an absolute
// path, matching the lookup rules soc.Session.DrvdataByName forwards to.
func (t *Tree) FindByNameOrPath(name string) (*Node, bool) {
	if n, ok := t.FindAlias(name); ok {
		return n, true
	}
	return FindPath(t.Root, name)
}

// FindPhandle resolves a phandle value to its node, depth-first.
func FindPhandle(root *Node, ph uint32) (*Node, bool) {
	if root.Phandle != 0 && root.Phandle == ph {
		return root, true
	}
	for _, c := range root.Children {
		if n, ok := FindPhandle(c, ph); ok {
			return n, ok
		}
	}
	return nil, false
}

// RegAt extracts the index'th (start, length) pair from n's reg property.
func RegAt(n *Node, index int) (RegRange, error) {
	if index < 0 || index >= len(n.Reg) {
		return RegRange{}, fmt.Errorf("dt: %s: reg[%d] out of range: %w", n.Path(), index, culverr.InvalidArgument)
	}
	return n.Reg[index], nil
}

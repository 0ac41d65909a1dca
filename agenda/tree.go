package agenda

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Node is one agenda item placed in the hierarchy. The embedded Item is the
// node's mutable state; only the owning tracker may change it.
type Node struct {
	Item
	Parent   *Node
	Children []*Node
	Depth    int // 0 for roots
}

// Tree is the ordered agenda hierarchy with an id index spanning all levels,
// so callers can treat it as a flat keyspace.
type Tree struct {
	roots []*Node
	index map[string]*Node
}

// NewTree builds a tree from a flat item list. Siblings are ordered by Order,
// ties broken by input position.
func NewTree(items []Item) (*Tree, error) {
	t := &Tree{index: make(map[string]*Node, len(items))}

	position := make(map[string]int, len(items))
	for i, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("%w: item at position %d has no id", ErrInvalidTree, i)
		}
		if _, dup := t.index[it.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidTree, it.ID)
		}
		it = it.Clone()
		if it.Status == "" {
			it.Status = StatusPending
		}
		if it.TimeSegments == nil {
			it.TimeSegments = []TimeRange{}
		}
		t.index[it.ID] = &Node{Item: it}
		position[it.ID] = i
	}

	for _, it := range items {
		n := t.index[it.ID]
		if it.ParentID == "" {
			t.roots = append(t.roots, n)
			continue
		}
		if it.ParentID == it.ID {
			return nil, fmt.Errorf("%w: item %q is its own parent", ErrInvalidTree, it.ID)
		}
		parent, ok := t.index[it.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: parent %q of %q not found", ErrInvalidTree, it.ParentID, it.ID)
		}
		n.Parent = parent
		parent.Children = append(parent.Children, n)
	}

	less := func(nodes []*Node) func(i, j int) bool {
		return func(i, j int) bool {
			if nodes[i].Order != nodes[j].Order {
				return nodes[i].Order < nodes[j].Order
			}
			return position[nodes[i].ID] < position[nodes[j].ID]
		}
	}
	sort.SliceStable(t.roots, less(t.roots))

	// Depth assignment doubles as cycle detection: nodes in a cycle are never
	// reached from a root.
	reached := 0
	var visit func(n *Node, depth int) error
	visit = func(n *Node, depth int) error {
		if depth >= MaxDepth {
			return fmt.Errorf("%w: item %q exceeds %d levels", ErrInvalidTree, n.ID, MaxDepth)
		}
		n.Depth = depth
		reached++
		sort.SliceStable(n.Children, less(n.Children))
		for _, c := range n.Children {
			if err := visit(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range t.roots {
		if err := visit(r, 0); err != nil {
			return nil, err
		}
	}
	if reached != len(t.index) {
		return nil, fmt.Errorf("%w: parent references form a cycle", ErrInvalidTree)
	}

	return t, nil
}

func (t *Tree) Len() int { return len(t.index) }

func (t *Tree) Roots() []*Node { return t.roots }

func (t *Tree) FindByID(id string) (*Node, bool) {
	n, ok := t.index[id]
	return n, ok
}

// FirstID returns the id of the first root item, or "" for an empty tree.
func (t *Tree) FirstID() string {
	if len(t.roots) == 0 {
		return ""
	}
	return t.roots[0].ID
}

// Walk visits every node depth-first in display order. Returning false from
// fn stops the walk.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var visit func(n *Node) bool
	visit = func(n *Node) bool {
		if !fn(n) {
			return false
		}
		for _, c := range n.Children {
			if !visit(c) {
				return false
			}
		}
		return true
	}
	for _, r := range t.roots {
		if !visit(r) {
			return
		}
	}
}

// Items returns deep copies of every item in display order.
func (t *Tree) Items() []Item {
	out := make([]Item, 0, len(t.index))
	t.Walk(func(n *Node) bool {
		out = append(out, n.Item.Clone())
		return true
	})
	return out
}

// Root returns the root ancestor of n (n itself for a root).
func (n *Node) Root() *Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// RootIndexOf returns the position among roots of the nearest root ancestor
// of id, or -1 if id is unknown.
func (t *Tree) RootIndexOf(id string) int {
	n, ok := t.index[id]
	if !ok {
		return -1
	}
	root := n.Root()
	for i, r := range t.roots {
		if r == root {
			return i
		}
	}
	return -1
}

// Number returns the 1-based path number of id, e.g. "2.1.3". It is a
// presentation aid only and changes whenever the tree is reordered.
func (t *Tree) Number(id string) string {
	n, ok := t.index[id]
	if !ok {
		return ""
	}
	var parts []string
	for n != nil {
		siblings := t.roots
		if n.Parent != nil {
			siblings = n.Parent.Children
		}
		for i, s := range siblings {
			if s == n {
				parts = append(parts, strconv.Itoa(i+1))
				break
			}
		}
		n = n.Parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// Numbering returns Number for every item.
func (t *Tree) Numbering() map[string]string {
	out := make(map[string]string, len(t.index))
	var visit func(nodes []*Node, prefix string)
	visit = func(nodes []*Node, prefix string) {
		for i, n := range nodes {
			num := strconv.Itoa(i + 1)
			if prefix != "" {
				num = prefix + "." + num
			}
			out[n.ID] = num
			visit(n.Children, num)
		}
	}
	visit(t.roots, "")
	return out
}

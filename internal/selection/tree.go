// Package selection converts a client's requested field hierarchy into a
// relational fetch plan: the scalar attributes to project and the
// associations to eager-load.
package selection

// Tree is a request-scoped field hierarchy. A node with a child tree selects
// an association; a node without one selects a scalar attribute. Trees are
// built per request and discarded.
type Tree struct {
	names    []string
	children map[string]*Tree
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{children: make(map[string]*Tree)}
}

// FromNames builds a flat tree of scalar selections.
func FromNames(names ...string) *Tree {
	t := NewTree()
	for _, name := range names {
		t.Add(name, nil)
	}
	return t
}

// Add records a selection. Adding an existing name merges the child trees, so
// adding is idempotent.
func (t *Tree) Add(name string, child *Tree) *Tree {
	if existing, ok := t.children[name]; ok {
		t.children[name] = mergeTrees(existing, child)
		return t
	}
	t.names = append(t.names, name)
	t.children[name] = child
	return t
}

// Names returns selected names in insertion order.
func (t *Tree) Names() []string {
	return t.names
}

// Child returns the nested tree for a name, nil for scalar selections.
func (t *Tree) Child(name string) *Tree {
	return t.children[name]
}

// Empty reports whether nothing is selected.
func (t *Tree) Empty() bool {
	return t == nil || len(t.names) == 0
}

// Merge returns a new tree holding the union of both trees. The merge is
// total (either side may be nil) and idempotent: merging a tree with itself,
// or merging twice, yields the same selection.
func (t *Tree) Merge(other *Tree) *Tree {
	return mergeTrees(t, other)
}

func mergeTrees(a, b *Tree) *Tree {
	if a.Empty() && b.Empty() {
		return NewTree()
	}
	merged := NewTree()
	if a != nil {
		for _, name := range a.names {
			merged.Add(name, copyTree(a.children[name]))
		}
	}
	if b != nil {
		for _, name := range b.names {
			merged.Add(name, copyTree(b.children[name]))
		}
	}
	return merged
}

func copyTree(t *Tree) *Tree {
	if t == nil {
		return nil
	}
	out := NewTree()
	for _, name := range t.names {
		out.Add(name, copyTree(t.children[name]))
	}
	return out
}

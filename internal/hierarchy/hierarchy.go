// Package hierarchy builds the namespace/class group tree for one run.
package hierarchy

import (
	"context"
	"fmt"
	"sort"

	"github.com/skdltmxn/classsort/host"
)

// PathSeparator joins node names into paths.
const PathSeparator = "/"

// GroupCreator creates groups in the host. host.Tx satisfies it.
type GroupCreator interface {
	CreateGroup(ctx context.Context, name string, parent host.GroupID) (host.GroupID, error)
}

// Node is a group in the tree.
type Node struct {
	Name   string
	Path   string
	ID     host.GroupID
	Parent *Node

	children map[string]*Node
}

// Children returns the node's children sorted by name.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Builder owns the arena of nodes created during a run. Nodes are keyed by
// their full path, so looking up a path twice returns the same node.
type Builder struct {
	creator GroupCreator
	root    *Node
	nodes   map[string]*Node
}

// New returns a Builder whose root is the already-created group rootID.
func New(creator GroupCreator, rootName string, rootID host.GroupID) *Builder {
	root := &Node{Name: rootName, Path: rootName, ID: rootID, children: map[string]*Node{}}
	return &Builder{
		creator: creator,
		root:    root,
		nodes:   map[string]*Node{root.Path: root},
	}
}

// Root returns the root node.
func (b *Builder) Root() *Node { return b.root }

// Len returns the number of nodes, root included.
func (b *Builder) Len() int { return len(b.nodes) }

// Lookup returns the node at path, if it was created in this run.
func (b *Builder) Lookup(path string) (*Node, bool) {
	n, ok := b.nodes[path]
	return n, ok
}

// EnsurePath descends from the root through segments, creating every
// missing group, and returns the last node.
func (b *Builder) EnsurePath(ctx context.Context, segments []string) (*Node, error) {
	cur := b.root
	for _, seg := range segments {
		path := cur.Path + PathSeparator + seg
		if n, ok := b.nodes[path]; ok {
			cur = n
			continue
		}

		id, err := b.creator.CreateGroup(ctx, seg, cur.ID)
		if err != nil {
			return nil, fmt.Errorf("hierarchy: create group %q: %w", path, err)
		}

		n := &Node{Name: seg, Path: path, ID: id, Parent: cur, children: map[string]*Node{}}
		cur.children[seg] = n
		b.nodes[path] = n
		cur = n
	}
	return cur, nil
}

package graph

import (
	"fmt"
	"slices"
)

// ID identifies a live node. IDs are reused after removal.
type ID int

// NoID is never allocated by AddNode.
const NoID ID = -1

type mark uint8

const (
	unvisited mark = iota
	inProgress
	finished
	// onCycle marks the in-progress node a traversal ran into; it is cleared by
	// the next marker reset.
	onCycle
)

type node[T any] struct {
	value    T
	parents  map[ID]struct{}
	children map[ID]struct{}
	mark     mark
	access   guard
}

// Graph is a directed graph of T values. The zero value is an empty graph.
//
// Graph is not safe for concurrent use; callers serialize access.
type Graph[T any] struct {
	nodes map[ID]*node[T]
}

func New[T any]() *Graph[T] {
	return &Graph[T]{nodes: map[ID]*node[T]{}}
}

func (g *Graph[T]) Len() int { return len(g.nodes) }

func (g *Graph[T]) Contains(id ID) bool {
	_, ok := g.nodes[id]
	return ok
}

// IDs returns every live ID in ascending order.
func (g *Graph[T]) IDs() []ID {
	ids := make([]ID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// AddNode inserts value without edges under the smallest unused ID.
func (g *Graph[T]) AddNode(value T) ID {
	if g.nodes == nil {
		g.nodes = map[ID]*node[T]{}
	}
	id := g.smallestAvailableID()
	g.nodes[id] = newNode(value)
	return id
}

func newNode[T any](value T) *node[T] {
	return &node[T]{
		value:    value,
		parents:  map[ID]struct{}{},
		children: map[ID]struct{}{},
	}
}

// Linear scan; personal task graphs are small.
func (g *Graph[T]) smallestAvailableID() ID {
	n := ID(len(g.nodes))
	for i := ID(0); i < n; i++ {
		if _, ok := g.nodes[i]; !ok {
			return i
		}
	}
	return n
}

// AddEdge records that from depends on to.
//
// Only trivial cycles are rejected here: a self-loop and an edge whose reverse
// already exists. Longer rings are found by Traverse.
func (g *Graph[T]) AddEdge(from, to ID) error {
	fromNode, ok := g.nodes[from]
	if !ok {
		return nonExistent(from)
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return nonExistent(to)
	}
	if from == to {
		return &CycleError{Trace: []ID{from}, Finished: true}
	}
	if _, reciprocal := toNode.children[from]; reciprocal {
		return &CycleError{Trace: []ID{from, to}, Finished: true}
	}
	fromNode.children[to] = struct{}{}
	toNode.parents[from] = struct{}{}
	return nil
}

// RemoveEdge deletes the edge from -> to if present.
func (g *Graph[T]) RemoveEdge(from, to ID) error {
	fromNode, ok := g.nodes[from]
	if !ok {
		return nonExistent(from)
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return nonExistent(to)
	}
	delete(fromNode.children, to)
	delete(toNode.parents, from)
	return nil
}

// SetChildren replaces every outgoing edge of id with edges to children.
// On error the previous edges are restored.
func (g *Graph[T]) SetChildren(id ID, children []ID) error {
	n, ok := g.nodes[id]
	if !ok {
		return nonExistent(id)
	}
	previous := sortedKeys(n.children)
	for _, c := range previous {
		delete(g.nodes[c].parents, id)
	}
	n.children = map[ID]struct{}{}

	for _, c := range children {
		if err := g.AddEdge(id, c); err != nil {
			for _, added := range sortedKeys(n.children) {
				delete(g.nodes[added].parents, id)
			}
			n.children = map[ID]struct{}{}
			for _, c := range previous {
				n.children[c] = struct{}{}
				g.nodes[c].parents[id] = struct{}{}
			}
			return err
		}
	}
	return nil
}

// Remove deletes id and every edge touching it. Unknown IDs are ignored.
func (g *Graph[T]) Remove(id ID) {
	if _, ok := g.nodes[id]; !ok {
		return
	}
	delete(g.nodes, id)
	for _, n := range g.nodes {
		delete(n.children, id)
		delete(n.parents, id)
	}
}

// Get returns a copy of the value stored under id.
func (g *Graph[T]) Get(id ID) (T, error) {
	r, err := g.Borrow(id)
	if err != nil {
		var zero T
		return zero, err
	}
	defer r.Release()
	return r.Value(), nil
}

// Update runs fn with write access to the value stored under id.
func (g *Graph[T]) Update(id ID, fn func(value *T) error) error {
	m, err := g.BorrowMut(id)
	if err != nil {
		return err
	}
	defer m.Release()
	return fn(m.Value())
}

// Children returns the IDs id depends on, ascending.
func (g *Graph[T]) Children(id ID) ([]ID, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, nonExistent(id)
	}
	return sortedKeys(n.children), nil
}

// Parents returns the IDs that depend on id, ascending.
func (g *Graph[T]) Parents(id ID) ([]ID, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, nonExistent(id)
	}
	return sortedKeys(n.parents), nil
}

// Clone returns a structurally identical graph whose values are produced by
// copyValue. Markers and borrows are not carried over.
func (g *Graph[T]) Clone(copyValue func(T) T) *Graph[T] {
	out := &Graph[T]{nodes: make(map[ID]*node[T], len(g.nodes))}
	for id, n := range g.nodes {
		v := n.value
		if copyValue != nil {
			v = copyValue(v)
		}
		c := newNode(v)
		for p := range n.parents {
			c.parents[p] = struct{}{}
		}
		for ch := range n.children {
			c.children[ch] = struct{}{}
		}
		out.nodes[id] = c
	}
	return out
}

func (g *Graph[T]) node(id ID) (*node[T], error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, nonExistent(id)
	}
	return n, nil
}

func (g *Graph[T]) resetMarks() {
	for _, n := range g.nodes {
		n.mark = unvisited
	}
}

// checkMirrored verifies that every child edge has its parent twin and the
// other way round.
func (g *Graph[T]) checkMirrored() error {
	for id, n := range g.nodes {
		for c := range n.children {
			cn, ok := g.nodes[c]
			if !ok {
				return fmt.Errorf("node %d: child %w", id, nonExistent(c))
			}
			if _, ok := cn.parents[id]; !ok {
				return fmt.Errorf("node %d lists child %d but %d does not list %d as parent", id, c, c, id)
			}
		}
		for p := range n.parents {
			pn, ok := g.nodes[p]
			if !ok {
				return fmt.Errorf("node %d: parent %w", id, nonExistent(p))
			}
			if _, ok := pn.children[id]; !ok {
				return fmt.Errorf("node %d lists parent %d but %d does not list %d as child", id, p, p, id)
			}
		}
	}
	return nil
}

func sortedKeys(m map[ID]struct{}) []ID {
	out := make([]ID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

package graph

import "errors"

// MaxCallDepth bounds how deep a traversal may descend below a root.
const MaxCallDepth = 1000

// PreAction runs parent first, with write access to the node and to every
// child it depends on.
type PreAction[T any] func(value *T, children []*T) error

// PostAction runs children first. results holds one entry per child visited
// from this node, in child order; a child already finished through another
// path contributes nothing.
type PostAction[T, R any] func(value *T, results []R) (R, error)

type frame[R any] struct {
	id       ID
	children []ID
	next     int
	results  []R
}

// Traverse walks g depth first from every root (a node without parents), in
// ascending ID order, resetting markers before each root so that a node shared
// by several roots is revisited once per root.
//
// Errors: *CycleError (always finished), *NodeError, ErrStackOverflow,
// *AccessError when a caller holds a borrow the walk needs, and *CallbackError
// wrapping a failure returned by pre or post. Values already mutated before a
// failure keep their new state.
func Traverse[T, R any](g *Graph[T], pre PreAction[T], post PostAction[T, R]) error {
	if g.Len() == 0 {
		return nil
	}
	var roots []ID
	for _, id := range g.IDs() {
		if len(g.nodes[id].parents) == 0 {
			roots = append(roots, id)
		}
	}
	if len(roots) == 0 {
		return findCycle(g, g.IDs(), true)
	}

	reached := make(map[ID]struct{}, g.Len())
	for _, root := range roots {
		g.resetMarks()
		if _, _, err := walk(g, root, pre, post); err != nil {
			return err
		}
		for id, n := range g.nodes {
			if n.mark != unvisited {
				reached[id] = struct{}{}
			}
		}
	}

	// A node no root reaches sits on or below a ring that has no root above it.
	var orphans []ID
	for _, id := range g.IDs() {
		if _, ok := reached[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		return findCycle(g, orphans, false)
	}
	return nil
}

// findCycle walks from each start in turn with no-op actions and returns the
// first cycle found.
func findCycle[T any](g *Graph[T], starts []ID, noRoot bool) error {
	noPre := func(*T, []*T) error { return nil }
	noPost := func(*T, []struct{}) (struct{}, error) { return struct{}{}, nil }
	for _, start := range starts {
		g.resetMarks()
		_, _, err := walk[T, struct{}](g, start, noPre, noPost)
		if err == nil {
			continue
		}
		var ce *CycleError
		if errors.As(err, &ce) {
			ce.NoRoot = noRoot
		}
		return err
	}
	// Unreachable for a graph whose roots were computed from the same edges.
	return &CycleError{Finished: true, NoRoot: noRoot}
}

// walk is the iterative depth-first visit of one start node. It reports
// whether the start produced a result (false when it was already finished).
func walk[T, R any](g *Graph[T], start ID, pre PreAction[T], post PostAction[T, R]) (R, bool, error) {
	var zero R
	var stack []*frame[R]

	f, err := enter[T, R](g, start, 0, pre)
	if err != nil {
		return zero, false, closeTrace(err, stack)
	}
	if f == nil {
		return zero, false, nil
	}
	stack = append(stack, f)

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next < len(top.children) {
			child := top.children[top.next]
			top.next++
			f, err := enter[T, R](g, child, len(stack), pre)
			if err != nil {
				return zero, false, closeTrace(err, stack)
			}
			if f != nil {
				stack = append(stack, f)
			}
			continue
		}

		r, err := leave(g, top, post)
		if err != nil {
			return zero, false, err
		}
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			return r, true, nil
		}
		parent := stack[len(stack)-1]
		parent.results = append(parent.results, r)
	}
	return zero, false, nil
}

// enter checks the marker of id and, for an unvisited node, runs pre and
// returns its frame. A nil frame with a nil error means id is already
// finished.
func enter[T, R any](g *Graph[T], id ID, depth int, pre PreAction[T]) (*frame[R], error) {
	if depth > MaxCallDepth {
		return nil, ErrStackOverflow
	}
	n, err := g.node(id)
	if err != nil {
		return nil, err
	}
	switch n.mark {
	case inProgress, onCycle:
		n.mark = onCycle
		return nil, &CycleError{Trace: []ID{id}}
	case finished:
		return nil, nil
	}

	children := sortedKeys(n.children)
	for _, c := range children {
		if c == id {
			return nil, &CycleError{Trace: []ID{id}, Finished: true}
		}
	}
	n.mark = inProgress

	self, err := g.BorrowMut(id)
	if err != nil {
		return nil, err
	}
	refs, err := g.borrowAll(children)
	if err != nil {
		self.Release()
		return nil, err
	}
	values := make([]*T, len(refs))
	for i, m := range refs {
		values[i] = m.Value()
	}
	err = pre(self.Value(), values)
	releaseAll(refs)
	self.Release()
	if err != nil {
		return nil, &CallbackError{Err: err}
	}
	return &frame[R]{id: id, children: children, results: make([]R, 0, len(children))}, nil
}

func leave[T, R any](g *Graph[T], f *frame[R], post PostAction[T, R]) (R, error) {
	var zero R
	n, err := g.node(f.id)
	if err != nil {
		return zero, err
	}
	self, err := g.BorrowMut(f.id)
	if err != nil {
		return zero, err
	}
	r, err := post(self.Value(), f.results)
	self.Release()
	if err != nil {
		return zero, &CallbackError{Err: err}
	}
	n.mark = finished
	return r, nil
}

// closeTrace unwinds stack from the top, extending an unfinished cycle trace
// with each frame until the ring closes on the node it started from.
func closeTrace[R any](err error, stack []*frame[R]) error {
	ce, ok := err.(*CycleError)
	if !ok || ce.Finished {
		return err
	}
	for i := len(stack) - 1; i >= 0; i-- {
		id := stack[i].id
		if ce.Trace[0] == id {
			ce.Finished = true
			return ce
		}
		ce.Trace = append(ce.Trace, id)
	}
	return ce
}

// PossibleChildren returns, ascending, every ID that from could gain as a new
// child without closing a cycle. Ancestors are marked by walking parent edges
// from from; the candidates are the unmarked nodes that are not already
// direct children.
func PossibleChildren[T any](g *Graph[T], from ID) ([]ID, error) {
	n, err := g.node(from)
	if err != nil {
		return nil, err
	}
	g.resetMarks()
	ancestors := map[ID]struct{}{}
	stack := []ID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cur := g.nodes[id]
		if cur.mark != unvisited {
			continue
		}
		cur.mark = finished
		ancestors[id] = struct{}{}
		for _, p := range sortedKeys(cur.parents) {
			if g.nodes[p].mark == unvisited {
				stack = append(stack, p)
			}
		}
	}
	g.resetMarks()

	var out []ID
	for _, id := range g.IDs() {
		if _, isAncestor := ancestors[id]; isAncestor {
			continue
		}
		if _, isChild := n.children[id]; isChild {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

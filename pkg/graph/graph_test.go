package graph

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
)

func TestAddNodeReusesSmallestFreeID(t *testing.T) {
	t.Parallel()
	g := New[string]()
	for i, name := range []string{"a", "b", "c"} {
		if got := g.AddNode(name); got != ID(i) {
			t.Fatalf("AddNode(%q) = %d, want %d", name, got, i)
		}
	}
	g.Remove(1)
	if got := g.AddNode("d"); got != 1 {
		t.Fatalf("AddNode after Remove(1) = %d, want 1", got)
	}
	g.Remove(0)
	g.Remove(2)
	g.Remove(42)
	for _, want := range []ID{0, 2, 3} {
		if got := g.AddNode("x"); got != want {
			t.Fatalf("AddNode = %d, want %d", got, want)
		}
	}
}

func TestZeroGraphIsUsable(t *testing.T) {
	t.Parallel()
	var g Graph[int]
	if g.Len() != 0 {
		t.Fatalf("Len = %d, want 0", g.Len())
	}
	if id := g.AddNode(1); id != 0 {
		t.Fatalf("AddNode = %d, want 0", id)
	}
}

func TestAddEdgeRejectsTrivialCycles(t *testing.T) {
	t.Parallel()
	g := New[int]()
	n0, n1, n2 := g.AddNode(0), g.AddNode(1), g.AddNode(2)

	var ce *CycleError
	if err := g.AddEdge(n0, n0); !errors.As(err, &ce) {
		t.Fatalf("AddEdge(n0, n0) = %v, want *CycleError", err)
	}
	if !ce.Finished || !slices.Equal(ce.Trace, []ID{n0}) {
		t.Fatalf("self loop trace = %v finished=%v, want [0] finished", ce.Trace, ce.Finished)
	}

	if err := g.AddEdge(n0, n1); err != nil {
		t.Fatalf("AddEdge(n0, n1): %v", err)
	}
	if err := g.AddEdge(n1, n0); !errors.As(err, &ce) {
		t.Fatalf("AddEdge(n1, n0) = %v, want *CycleError", err)
	}
	if !ce.Finished || !slices.Equal(ce.Trace, []ID{n1, n0}) {
		t.Fatalf("reciprocal trace = %v finished=%v, want [1 0] finished", ce.Trace, ce.Finished)
	}

	if err := g.AddEdge(n1, n2); err != nil {
		t.Fatalf("AddEdge(n1, n2): %v", err)
	}
	if err := g.AddEdge(n2, n0); err != nil {
		t.Fatalf("AddEdge(n2, n0) = %v, want nil (only trivial cycles are rejected)", err)
	}
}

func TestAddEdgeNonExistentNode(t *testing.T) {
	t.Parallel()
	g := New[int]()
	n0 := g.AddNode(0)
	tests := []struct {
		from, to ID
		missing  ID
	}{
		{n0, 100, 100},
		{100, n0, 100},
		{100, 200, 100},
		{7, 7, 7},
	}
	for _, tt := range tests {
		err := g.AddEdge(tt.from, tt.to)
		var ne *NodeError
		if !errors.As(err, &ne) || ne.ID != tt.missing {
			t.Fatalf("AddEdge(%d, %d) = %v, want NodeError(%d)", tt.from, tt.to, err, tt.missing)
		}
		if !errors.Is(err, ErrNonExistentNode) {
			t.Fatalf("errors.Is(%v, ErrNonExistentNode) = false", err)
		}
	}
}

func TestRemoveStripsEdges(t *testing.T) {
	t.Parallel()
	g := New[int]()
	a, b, c := g.AddNode(0), g.AddNode(1), g.AddNode(2)
	mustEdge(t, g, a, b)
	mustEdge(t, g, b, c)
	g.Remove(b)

	if children, _ := g.Children(a); len(children) != 0 {
		t.Fatalf("Children(a) = %v, want empty", children)
	}
	if parents, _ := g.Parents(c); len(parents) != 0 {
		t.Fatalf("Parents(c) = %v, want empty", parents)
	}
	if _, err := g.Get(b); !errors.Is(err, ErrNonExistentNode) {
		t.Fatalf("Get(removed) = %v, want ErrNonExistentNode", err)
	}
}

func TestSetChildrenRestoresEdgesOnError(t *testing.T) {
	t.Parallel()
	g := New[int]()
	a, b, c := g.AddNode(0), g.AddNode(1), g.AddNode(2)
	mustEdge(t, g, a, b)

	if err := g.SetChildren(a, []ID{c, a}); !errors.Is(err, ErrCycle) {
		t.Fatalf("SetChildren with self loop = %v, want ErrCycle", err)
	}
	if children, _ := g.Children(a); !slices.Equal(children, []ID{b}) {
		t.Fatalf("Children(a) = %v, want [%d]", children, b)
	}
	if parents, _ := g.Parents(c); len(parents) != 0 {
		t.Fatalf("Parents(c) = %v, want empty", parents)
	}

	if err := g.SetChildren(a, []ID{c}); err != nil {
		t.Fatalf("SetChildren: %v", err)
	}
	if children, _ := g.Children(a); !slices.Equal(children, []ID{c}) {
		t.Fatalf("Children(a) = %v, want [%d]", children, c)
	}
	if parents, _ := g.Parents(b); len(parents) != 0 {
		t.Fatalf("Parents(b) = %v, want empty", parents)
	}
}

func TestAccessGuard(t *testing.T) {
	t.Parallel()
	g := New[int]()
	id := g.AddNode(1)

	r1, err := g.Borrow(id)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	r2, err := g.Borrow(id)
	if err != nil {
		t.Fatalf("second Borrow: %v", err)
	}
	if _, err := g.BorrowMut(id); !errors.Is(err, ErrAliasing) {
		t.Fatalf("BorrowMut with readers = %v, want ErrAliasing", err)
	}
	r1.Release()
	r1.Release()
	if _, err := g.BorrowMut(id); !errors.Is(err, ErrAliasing) {
		t.Fatalf("BorrowMut with one reader left = %v, want ErrAliasing", err)
	}
	r2.Release()

	m, err := g.BorrowMut(id)
	if err != nil {
		t.Fatalf("BorrowMut: %v", err)
	}
	*m.Value() = 5
	if _, err := g.Get(id); !errors.Is(err, ErrAliasing) {
		t.Fatalf("Get while written = %v, want ErrAliasing", err)
	}
	err = g.Update(id, func(*int) error { return nil })
	var ae *AccessError
	if !errors.As(err, &ae) || !ae.Write || ae.ID != id {
		t.Fatalf("Update while written = %v, want write AccessError", err)
	}
	m.Release()

	if v, err := g.Get(id); err != nil || v != 5 {
		t.Fatalf("Get = %d, %v, want 5", v, err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	g := New[[]int]()
	a, b := g.AddNode([]int{1}), g.AddNode([]int{2})
	mustEdge(t, g, a, b)

	c := g.Clone(func(v []int) []int { return slices.Clone(v) })
	if err := c.Update(a, func(v *[]int) error { (*v)[0] = 9; return nil }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	c.Remove(b)

	if v, _ := g.Get(a); v[0] != 1 {
		t.Fatalf("original value = %v, want [1]", v)
	}
	if children, _ := g.Children(a); !slices.Equal(children, []ID{b}) {
		t.Fatalf("original Children(a) = %v, want [%d]", children, b)
	}
}

func TestJSONWireShape(t *testing.T) {
	t.Parallel()
	g := New[int]()
	a, b := g.AddNode(5), g.AddNode(6)
	mustEdge(t, g, a, b)

	got, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"0":{"value":5,"parents":[],"children":[1]},"1":{"value":6,"parents":[0],"children":[]}}`
	if string(got) != want {
		t.Fatalf("Marshal = %s, want %s", got, want)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()
	g := binaryTree(t)
	g.Remove(4)

	b, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back := New[int]()
	if err := json.Unmarshal(b, back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !slices.Equal(back.IDs(), g.IDs()) {
		t.Fatalf("IDs = %v, want %v", back.IDs(), g.IDs())
	}
	for _, id := range g.IDs() {
		wantV, _ := g.Get(id)
		gotV, _ := back.Get(id)
		if gotV != wantV {
			t.Fatalf("value %d = %d, want %d", id, gotV, wantV)
		}
		wantP, _ := g.Parents(id)
		gotP, _ := back.Parents(id)
		if !slices.Equal(gotP, wantP) {
			t.Fatalf("parents %d = %v, want %v", id, gotP, wantP)
		}
		wantC, _ := g.Children(id)
		gotC, _ := back.Children(id)
		if !slices.Equal(gotC, wantC) {
			t.Fatalf("children %d = %v, want %v", id, gotC, wantC)
		}
	}
	if next := back.AddNode(0); next != 4 {
		t.Fatalf("AddNode after decode = %d, want 4", next)
	}
}

func TestJSONRejectsBrokenEdges(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
	}{
		{"one sided", `{"0":{"value":1,"parents":[],"children":[1]},"1":{"value":2,"parents":[],"children":[]}}`},
		{"dangling", `{"0":{"value":1,"parents":[],"children":[3]}}`},
		{"bad key", `{"x":{"value":1,"parents":[],"children":[]}}`},
		{"negative key", `{"-1":{"value":1,"parents":[],"children":[]}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := New[int]()
			if err := json.Unmarshal([]byte(tt.in), g); err == nil {
				t.Fatalf("Unmarshal(%s) succeeded, want error", tt.in)
			}
		})
	}
}

func mustEdge[T any](t *testing.T, g *Graph[T], from, to ID) {
	t.Helper()
	if err := g.AddEdge(from, to); err != nil {
		t.Fatalf("AddEdge(%d, %d): %v", from, to, err)
	}
}

//	        n0(3)
//	      /       \
//	n1(10)         n2(-2)
//	 /  \           /  \
//	n3(7) n4(4)  n5(11) n6(0)
func binaryTree(t *testing.T) *Graph[int] {
	t.Helper()
	g := New[int]()
	for _, v := range []int{3, 10, -2, 7, 4, 11, 0} {
		g.AddNode(v)
	}
	mustEdge(t, g, 0, 1)
	mustEdge(t, g, 0, 2)
	mustEdge(t, g, 1, 3)
	mustEdge(t, g, 1, 4)
	mustEdge(t, g, 2, 5)
	mustEdge(t, g, 2, 6)
	return g
}

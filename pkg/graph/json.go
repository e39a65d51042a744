package graph

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type wireNode[T any] struct {
	Value    T    `json:"value"`
	Parents  []ID `json:"parents"`
	Children []ID `json:"children"`
}

// MarshalJSON encodes the graph as an object keyed by decimal ID. Markers and
// borrows are not encoded.
func (g *Graph[T]) MarshalJSON() ([]byte, error) {
	out := make(map[string]wireNode[T], len(g.nodes))
	for id, n := range g.nodes {
		out[strconv.Itoa(int(id))] = wireNode[T]{
			Value:    n.value,
			Parents:  sortedKeys(n.parents),
			Children: sortedKeys(n.children),
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON replaces g with the decoded graph. Every edge must be listed
// on both of its ends.
func (g *Graph[T]) UnmarshalJSON(b []byte) error {
	var in map[string]wireNode[T]
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	nodes := make(map[ID]*node[T], len(in))
	for key, w := range in {
		raw, err := strconv.Atoi(key)
		if err != nil || raw < 0 {
			return fmt.Errorf("graph: invalid node id %q", key)
		}
		n := newNode(w.Value)
		for _, p := range w.Parents {
			n.parents[p] = struct{}{}
		}
		for _, c := range w.Children {
			n.children[c] = struct{}{}
		}
		nodes[ID(raw)] = n
	}
	decoded := Graph[T]{nodes: nodes}
	if err := decoded.checkMirrored(); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	g.nodes = nodes
	return nil
}

// Package graph stores values of any type as nodes of a directed graph.
//
// Nodes are keyed by small non-negative integer IDs; AddNode always takes the
// smallest unused ID, so IDs are reused after Remove. Edges are kept as two
// mirrored ID sets per node (parents and children), which lets a graph be
// cyclic before a traversal detects and reports it.
//
// Each node carries an access guard: any number of read borrows or exactly one
// write borrow may be live at a time, and a conflicting borrow fails with
// ErrAliasing instead of silently aliasing. Traverse takes the same borrows, so
// a caller holding a borrow across a traversal gets an error rather than a
// corrupted value.
//
// Traverse walks the graph depth first from every root, calling a pre action
// (parent first, with write access to its children) and a post action
// (children first, receiving the children's results). The walk is iterative
// with an explicit frame stack and a depth ceiling, and reports cycles as an
// exact ring of IDs.
package graph

package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrCycle           = errors.New("cycle detected")
	ErrNonExistentNode = errors.New("non-existent node")
	ErrNoRoot          = errors.New("graph has no root")
	ErrStackOverflow   = errors.New("call depth limit exceeded")
	ErrAliasing        = errors.New("conflicting node access")
)

// CycleError carries the ring of IDs that closes a dependency cycle.
//
// A finished trace is a complete ring: the last ID depends on the first one.
// An unfinished trace is still being assembled while a traversal unwinds and
// never escapes Traverse.
type CycleError struct {
	Trace    []ID
	Finished bool
	// NoRoot is set when the cycle was found by the scan that runs because no
	// node is free of parents.
	NoRoot bool
}

func (e *CycleError) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, len(e.Trace)+1)
	for _, id := range e.Trace {
		parts = append(parts, strconv.Itoa(int(id)))
	}
	if e.Finished && len(e.Trace) > 0 {
		parts = append(parts, strconv.Itoa(int(e.Trace[0])))
	}
	msg := ErrCycle.Error() + ": " + strings.Join(parts, " -> ")
	if !e.Finished {
		msg += " (unfinished)"
	}
	if e.NoRoot {
		msg = ErrNoRoot.Error() + ": " + msg
	}
	return msg
}

func (e *CycleError) Is(target error) bool {
	if target == ErrCycle {
		return true
	}
	return e.NoRoot && target == ErrNoRoot
}

// NodeError reports a reference to an ID that is not in the graph.
type NodeError struct {
	ID ID
}

func (e *NodeError) Error() string { return fmt.Sprintf("%s: %d", ErrNonExistentNode, e.ID) }
func (e *NodeError) Unwrap() error { return ErrNonExistentNode }

// CallbackError wraps a failure returned by a traversal action.
type CallbackError struct {
	Err error
}

func (e *CallbackError) Error() string {
	if e == nil || e.Err == nil {
		return "traversal callback failed"
	}
	return e.Err.Error()
}

func (e *CallbackError) Unwrap() error { return e.Err }

// AccessError reports a borrow that conflicts with one already live.
type AccessError struct {
	ID    ID
	Write bool
}

func (e *AccessError) Error() string {
	mode := "read"
	if e.Write {
		mode = "write"
	}
	return fmt.Sprintf("%s: %s access to node %d", ErrAliasing, mode, e.ID)
}

func (e *AccessError) Unwrap() error { return ErrAliasing }

func nonExistent(id ID) error { return &NodeError{ID: id} }

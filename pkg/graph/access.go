package graph

// guard counts live borrows of one node.
type guard struct {
	readers int
	writer  bool
}

func (a *guard) acquire(write bool) bool {
	if a.writer {
		return false
	}
	if write {
		if a.readers > 0 {
			return false
		}
		a.writer = true
		return true
	}
	a.readers++
	return true
}

func (a *guard) release(write bool) {
	if write {
		a.writer = false
		return
	}
	if a.readers > 0 {
		a.readers--
	}
}

// Ref is a read borrow of a node's value. Release it when done; releasing twice
// is harmless.
type Ref[T any] struct {
	n        *node[T]
	released bool
}

func (r *Ref[T]) Value() T { return r.n.value }

func (r *Ref[T]) Release() {
	if r == nil || r.released {
		return
	}
	r.released = true
	r.n.access.release(false)
}

// MutRef is the single write borrow of a node's value.
type MutRef[T any] struct {
	n        *node[T]
	released bool
}

// Value points at the stored value. The pointer must not outlive Release.
func (m *MutRef[T]) Value() *T { return &m.n.value }

func (m *MutRef[T]) Release() {
	if m == nil || m.released {
		return
	}
	m.released = true
	m.n.access.release(true)
}

// Borrow takes a read borrow of id. It fails with an *AccessError while a
// write borrow is live.
func (g *Graph[T]) Borrow(id ID) (*Ref[T], error) {
	n, err := g.node(id)
	if err != nil {
		return nil, err
	}
	if !n.access.acquire(false) {
		return nil, &AccessError{ID: id}
	}
	return &Ref[T]{n: n}, nil
}

// BorrowMut takes the write borrow of id. It fails with an *AccessError while
// any other borrow is live.
func (g *Graph[T]) BorrowMut(id ID) (*MutRef[T], error) {
	n, err := g.node(id)
	if err != nil {
		return nil, err
	}
	if !n.access.acquire(true) {
		return nil, &AccessError{ID: id, Write: true}
	}
	return &MutRef[T]{n: n}, nil
}

// borrowAll takes write borrows of every id, in order. On failure the borrows
// already taken are released.
func (g *Graph[T]) borrowAll(ids []ID) ([]*MutRef[T], error) {
	refs := make([]*MutRef[T], 0, len(ids))
	for _, id := range ids {
		m, err := g.BorrowMut(id)
		if err != nil {
			releaseAll(refs)
			return nil, err
		}
		refs = append(refs, m)
	}
	return refs, nil
}

func releaseAll[T any](refs []*MutRef[T]) {
	for _, m := range refs {
		m.Release()
	}
}

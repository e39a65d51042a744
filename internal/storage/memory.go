package storage

import (
	"context"
	"sync"
)

type memStore struct {
	mu       sync.Mutex
	closed   bool
	snapshot []byte
	audit    []AuditEntry
}

func newMemStore() *memStore { return &memStore{} }

func (s *memStore) LoadSnapshot(context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	if s.snapshot == nil {
		return nil, false, nil
	}
	return append([]byte(nil), s.snapshot...), true, nil
}

func (s *memStore) SaveSnapshot(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.snapshot = append([]byte(nil), data...)
	return nil
}

func (s *memStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.audit = append(s.audit, stamp(e))
	return nil
}

func (s *memStore) RecentAudit(_ context.Context, n int) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return append([]AuditEntry(nil), lastN(s.audit, n)...), nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

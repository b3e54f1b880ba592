package storage

import (
	"context"
	"sync"

	"github.com/registrar-io/registrar/internal/registration"
)

// MemoryRegistrationStore provides a thread-safe in-memory
// registration.Store for tests. Like the persistent store, writes are
// buffered and only become visible after Flush.
type MemoryRegistrationStore struct {
	mu        sync.Mutex
	committed map[registration.Key]*registration.Registration

	inserts []*registration.Registration
	updates []*registration.Registration
	deletes []*registration.Registration

	flushCount int

	// FlushErr, when set, makes the next Flush fail after discarding the
	// batch.
	FlushErr error
}

// NewMemoryRegistrationStore creates an empty in-memory registration store.
func NewMemoryRegistrationStore() *MemoryRegistrationStore {
	return &MemoryRegistrationStore{
		committed: make(map[registration.Key]*registration.Registration),
	}
}

// Seed places a registration directly into committed state, bypassing the
// write buffers.
func (s *MemoryRegistrationStore) Seed(reg *registration.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *reg
	s.committed[reg.Key] = &copied
}

// FindExisting reads committed state only; buffered writes are not visible.
func (s *MemoryRegistrationStore) FindExisting(ctx context.Context, key registration.Key) (*registration.Registration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.committed[key]
	if !ok {
		return nil, false, nil
	}

	copied := *reg

	return &copied, true, nil
}

// Insert buffers a new registration.
func (s *MemoryRegistrationStore) Insert(reg *registration.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inserts = append(s.inserts, reg)
}

// Update buffers an update.
func (s *MemoryRegistrationStore) Update(reg *registration.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates = append(s.updates, reg)
}

// Delete buffers a deletion.
func (s *MemoryRegistrationStore) Delete(reg *registration.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletes = append(s.deletes, reg)
}

// Flush applies all buffered writes to committed state. Inserts overwrite an
// existing row with the same key, matching the persistent store's
// conflict-safe insert.
func (s *MemoryRegistrationStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserts, updates, deletes := s.inserts, s.updates, s.deletes
	s.inserts, s.updates, s.deletes = nil, nil, nil
	s.flushCount++

	if s.FlushErr != nil {
		err := s.FlushErr
		s.FlushErr = nil

		return err
	}

	for _, reg := range inserts {
		copied := *reg
		s.committed[reg.Key] = &copied
	}

	for _, reg := range updates {
		copied := *reg
		s.committed[reg.Key] = &copied
	}

	for _, reg := range deletes {
		delete(s.committed, reg.Key)
	}

	return nil
}

// Get returns the committed registration for key, if any.
func (s *MemoryRegistrationStore) Get(key registration.Key) (*registration.Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.committed[key]
	if !ok {
		return nil, false
	}

	copied := *reg

	return &copied, true
}

// Count returns the number of committed registrations.
func (s *MemoryRegistrationStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.committed)
}

// FlushCount returns how many times Flush ran.
func (s *MemoryRegistrationStore) FlushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flushCount
}

// Buffered returns the counts of pending inserts, updates and deletes.
func (s *MemoryRegistrationStore) Buffered() (inserts, updates, deletes int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.inserts), len(s.updates), len(s.deletes)
}

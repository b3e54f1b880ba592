package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/registrar-io/registrar/internal/metadata"
)

// MemoryMetadataStore provides a thread-safe in-memory metadata.Store for
// tests and local development. Periods are parsed and assigned ids on first
// fetch, mirroring the persistent store.
type MemoryMetadataStore struct {
	mu           sync.RWMutex
	objects      map[metadata.Kind][]metadata.Object
	periods      map[string]*metadata.Period
	nextPeriodID int64

	// fetchAllCalls counts FetchAll invocations per kind, observable by
	// tests asserting on cache heating behavior.
	fetchAllCalls map[metadata.Kind]int
}

// NewMemoryMetadataStore creates an empty in-memory metadata store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{
		objects:       make(map[metadata.Kind][]metadata.Object),
		periods:       make(map[string]*metadata.Period),
		nextPeriodID:  1,
		fetchAllCalls: make(map[metadata.Kind]int),
	}
}

// AddDataSet registers a data set.
func (s *MemoryMetadataStore) AddDataSet(ds *metadata.DataSet) {
	s.add(metadata.KindDataSet, ds)
}

// AddOrganisationUnit registers an organisation unit.
func (s *MemoryMetadataStore) AddOrganisationUnit(ou *metadata.OrganisationUnit) {
	s.add(metadata.KindOrganisationUnit, ou)
}

// AddAttributeOptionCombo registers a category option combo.
func (s *MemoryMetadataStore) AddAttributeOptionCombo(combo *metadata.CategoryOptionCombo) {
	s.add(metadata.KindAttributeOptionCombo, combo)
}

// AddOrganisationUnitGroup registers an organisation unit group.
func (s *MemoryMetadataStore) AddOrganisationUnitGroup(group *metadata.OrganisationUnitGroup) {
	s.add(metadata.KindOrganisationUnitGroup, group)
}

func (s *MemoryMetadataStore) add(kind metadata.Kind, obj metadata.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[kind] = append(s.objects[kind], obj)
}

// FetchOne resolves an object by its identifier under scheme, returning
// metadata.ErrNotFound when nothing matches.
func (s *MemoryMetadataStore) FetchOne(ctx context.Context, kind metadata.Kind, scheme metadata.IDScheme, id string) (metadata.Object, error) {
	if kind == metadata.KindPeriod {
		return s.fetchPeriod(id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, obj := range s.objects[kind] {
		if obj.PropertyValue(scheme) == id {
			return obj, nil
		}
	}

	return nil, fmt.Errorf("%s %q: %w", kind, id, metadata.ErrNotFound)
}

// FetchAll returns every registered object of kind.
func (s *MemoryMetadataStore) FetchAll(ctx context.Context, kind metadata.Kind) ([]metadata.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchAllCalls[kind]++

	if kind == metadata.KindPeriod {
		objects := make([]metadata.Object, 0, len(s.periods))
		for _, p := range s.periods {
			objects = append(objects, p)
		}

		return objects, nil
	}

	return append([]metadata.Object(nil), s.objects[kind]...), nil
}

// FetchAllCalls returns how many times FetchAll ran for kind.
func (s *MemoryMetadataStore) FetchAllCalls(kind metadata.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.fetchAllCalls[kind]
}

func (s *MemoryMetadataStore) fetchPeriod(iso string) (metadata.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.periods[iso]; ok {
		return p, nil
	}

	p, err := metadata.ParsePeriod(iso)
	if err != nil {
		return nil, fmt.Errorf("period %q: %w", iso, metadata.ErrNotFound)
	}

	p.ID = s.nextPeriodID
	s.nextPeriodID++
	s.periods[p.ISO] = p

	return p, nil
}

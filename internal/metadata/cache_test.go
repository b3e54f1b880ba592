package metadata

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeStore is a scriptable Store for cache tests.
type fakeStore struct {
	objects map[Kind][]Object

	fetchOneCalls int
	fetchAllCalls map[Kind]int
	fetchAllErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:       make(map[Kind][]Object),
		fetchAllCalls: make(map[Kind]int),
	}
}

func (s *fakeStore) FetchOne(_ context.Context, kind Kind, scheme IDScheme, id string) (Object, error) {
	s.fetchOneCalls++

	for _, obj := range s.objects[kind] {
		if obj.PropertyValue(scheme) == id {
			return obj, nil
		}
	}

	return nil, fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

func (s *fakeStore) FetchAll(_ context.Context, kind Kind) ([]Object, error) {
	s.fetchAllCalls[kind]++

	if s.fetchAllErr != nil {
		return nil, s.fetchAllErr
	}

	return s.objects[kind], nil
}

func TestCachingMapGet(t *testing.T) {
	t.Run("caches hits and misses", func(t *testing.T) {
		m := NewCachingMap()
		ds := NewDataSet(1, "lyLU2wR22tC", "", "ART", PeriodTypeMonthly, "bjDvmb4bfuf")

		loads := 0
		load := func() (Object, error) {
			loads++
			return ds, nil
		}

		if got := m.Get("lyLU2wR22tC", load); got != Object(ds) {
			t.Fatalf("Get returned %v, want the data set", got)
		}

		// Second lookup must not consult the loader
		m.Get("lyLU2wR22tC", load)

		if loads != 1 {
			t.Errorf("loader ran %d times, want 1", loads)
		}

		if m.MissCount() != 1 {
			t.Errorf("MissCount = %d, want 1", m.MissCount())
		}
	})

	t.Run("caches known absence", func(t *testing.T) {
		m := NewCachingMap()

		loads := 0
		notFound := func() (Object, error) {
			loads++
			return nil, fmt.Errorf("missing: %w", ErrNotFound)
		}

		if got := m.Get("ghost", notFound); got != nil {
			t.Fatalf("Get returned %v, want nil", got)
		}

		if got := m.Get("ghost", notFound); got != nil {
			t.Fatalf("repeat Get returned %v, want nil", got)
		}

		if loads != 1 {
			t.Errorf("loader ran %d times, want 1: absence must be cached", loads)
		}
	})

	t.Run("blank key resolves to nil without loading", func(t *testing.T) {
		m := NewCachingMap()

		if got := m.Get("", func() (Object, error) {
			t.Fatal("loader must not run for blank keys")
			return nil, nil
		}); got != nil {
			t.Fatalf("Get(\"\") = %v, want nil", got)
		}

		if m.MissCount() != 0 {
			t.Errorf("MissCount = %d, want 0", m.MissCount())
		}
	})

	t.Run("loaded map is authoritative", func(t *testing.T) {
		m := NewCachingMap()
		ds := NewDataSet(1, "lyLU2wR22tC", "", "ART", PeriodTypeMonthly, "bjDvmb4bfuf")
		m.Load([]Object{ds}, SchemeUID)

		if got := m.Get("lyLU2wR22tC", nil); got != Object(ds) {
			t.Fatalf("Get after Load returned %v, want the data set", got)
		}

		// A miss after a full load is an authoritative absence: no loader call
		if got := m.Get("ghost", func() (Object, error) {
			t.Fatal("loader must not run after a full load")
			return nil, nil
		}); got != nil {
			t.Fatalf("Get(ghost) after Load = %v, want nil", got)
		}
	})
}

func TestBoolCache(t *testing.T) {
	c := NewBoolCache()

	computes := 0
	compute := func() bool {
		computes++
		return true
	}

	if !c.Get("k", compute) || !c.Get("k", compute) {
		t.Fatal("Get should return the computed value")
	}

	if computes != 1 {
		t.Errorf("compute ran %d times, want 1", computes)
	}
}

func TestCachesResolve(t *testing.T) {
	store := newFakeStore()
	ds := NewDataSet(1, "lyLU2wR22tC", "DS_190320", "ART", PeriodTypeMonthly, "bjDvmb4bfuf")
	store.objects[KindDataSet] = []Object{ds}

	caches := NewCaches(nil)
	ctx := context.Background()

	if got := caches.Resolve(ctx, store, KindDataSet, SchemeCode, "DS_190320"); got != Object(ds) {
		t.Fatalf("Resolve by code returned %v, want the data set", got)
	}

	caches.Resolve(ctx, store, KindDataSet, SchemeCode, "DS_190320")

	if store.fetchOneCalls != 1 {
		t.Errorf("FetchOne ran %d times, want 1", store.fetchOneCalls)
	}

	if got := caches.Resolve(ctx, store, KindDataSet, SchemeCode, "ghost"); got != nil {
		t.Errorf("Resolve of unknown id = %v, want nil", got)
	}
}

func TestCachesHeatThreshold(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping threshold test in short mode")
	}

	store := newFakeStore()
	ds := NewDataSet(1, "lyLU2wR22tC", "", "ART", PeriodTypeMonthly, "bjDvmb4bfuf")
	store.objects[KindDataSet] = []Object{ds}

	caches := NewCaches(nil)
	ctx := context.Background()
	schemes := Schemes{DataSet: SchemeUID, OrgUnit: SchemeUID, AttributeOptionCombo: SchemeUID}

	// Drive exactly MissThreshold misses: still below the trigger
	for i := 0; i < MissThreshold; i++ {
		caches.Resolve(ctx, store, KindDataSet, SchemeUID, fmt.Sprintf("ghost-%d", i))
		caches.Heat(ctx, store, schemes)
	}

	if store.fetchAllCalls[KindDataSet] != 0 {
		t.Fatalf("full load ran at %d misses, must only run above the threshold", MissThreshold)
	}

	// One more miss crosses the threshold
	caches.Resolve(ctx, store, KindDataSet, SchemeUID, "one-more")
	caches.Heat(ctx, store, schemes)

	if store.fetchAllCalls[KindDataSet] != 1 {
		t.Fatalf("full load ran %d times after crossing the threshold, want 1",
			store.fetchAllCalls[KindDataSet])
	}

	if !caches.DataSets.IsLoaded() {
		t.Error("data set cache should be fully loaded after heating")
	}

	// Once loaded, further Heat calls never reload
	caches.Heat(ctx, store, schemes)

	if store.fetchAllCalls[KindDataSet] != 1 {
		t.Errorf("full load ran again on a loaded cache: %d calls", store.fetchAllCalls[KindDataSet])
	}

	// Other kinds saw no misses and must stay cold
	if store.fetchAllCalls[KindOrganisationUnit] != 0 {
		t.Error("organisation unit cache heated without crossing its own threshold")
	}
}

func TestCachesHeatFailureIsNotFatal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping threshold test in short mode")
	}

	store := newFakeStore()
	store.fetchAllErr = errors.New("connection reset")

	caches := NewCaches(nil)
	ctx := context.Background()
	schemes := Schemes{DataSet: SchemeUID, OrgUnit: SchemeUID, AttributeOptionCombo: SchemeUID}

	for i := 0; i <= MissThreshold; i++ {
		caches.Resolve(ctx, store, KindDataSet, SchemeUID, fmt.Sprintf("ghost-%d", i))
	}

	// The failing full load is logged, not returned
	caches.Heat(ctx, store, schemes)

	if caches.DataSets.IsLoaded() {
		t.Error("cache must not be marked loaded after a failed full load")
	}

	// A later Heat retries once the store recovers
	store.fetchAllErr = nil
	caches.Heat(ctx, store, schemes)

	if !caches.DataSets.IsLoaded() {
		t.Error("cache should heat on retry after the store recovers")
	}
}

func TestCachesPreheat(t *testing.T) {
	store := newFakeStore()
	store.objects[KindDataSet] = []Object{
		NewDataSet(1, "lyLU2wR22tC", "", "ART", PeriodTypeMonthly, "bjDvmb4bfuf"),
	}
	store.objects[KindOrganisationUnit] = []Object{
		NewOrganisationUnit(2, "ImspTQPwCqd", "", "Sierra Leone", "/ImspTQPwCqd"),
	}
	store.objects[KindAttributeOptionCombo] = []Object{
		NewCategoryOptionCombo(3, "HllvX50cXC0", "", "default", "bjDvmb4bfuf"),
	}

	caches := NewCaches(nil)
	schemes := Schemes{DataSet: SchemeUID, OrgUnit: SchemeUID, AttributeOptionCombo: SchemeUID}

	if err := caches.Preheat(context.Background(), store, schemes); err != nil {
		t.Fatalf("Preheat returned error: %v", err)
	}

	if !caches.DataSets.IsLoaded() || !caches.OrgUnits.IsLoaded() || !caches.AttrOptionCombos.IsLoaded() {
		t.Error("preheat must fully load data sets, organisation units and combos")
	}

	// The period table is unbounded and never preheated
	if caches.Periods.IsLoaded() {
		t.Error("preheat must not load the period cache")
	}

	if store.fetchOneCalls != 0 {
		t.Errorf("preheat made %d FetchOne calls, want 0", store.fetchOneCalls)
	}
}

package metadata

import (
	"context"
	"errors"
	"log/slog"
)

// MissThreshold is the number of cache misses for one metadata kind after
// which the engine loads the full table instead of continuing with per-object
// round trips.
const MissThreshold = 500

// CachingMap is a lazily populated lookup map over one metadata kind.
//
// Entries are keyed by the identifier under the run's configured scheme. A nil
// value records an authoritative "does not exist" so repeated lookups of a
// missing identifier cost one round trip, not many. After Load the map is
// fully loaded and a literal miss means the object does not exist; the loader
// is never consulted again.
//
// CachingMap is not safe for concurrent use. Each import run owns its own
// instance, which is the concurrency contract of this engine.
type CachingMap struct {
	entries   map[string]Object
	loaded    bool
	missCount int
}

// NewCachingMap creates an empty caching map.
func NewCachingMap() *CachingMap {
	return &CachingMap{entries: make(map[string]Object)}
}

// Get returns the object for key, consulting load on first sight of the key.
// A blank key and a failing loader both resolve to nil. Interface-typed nil
// results from load are normalized so callers can compare against plain nil.
func (m *CachingMap) Get(key string, load func() (Object, error)) Object {
	if key == "" {
		return nil
	}

	if obj, ok := m.entries[key]; ok {
		return obj
	}

	if m.loaded {
		// Fully loaded: a literal miss is an authoritative absence
		return nil
	}

	m.missCount++

	obj, err := load()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("Metadata fetch failed, treating as not found",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}

		obj = nil
	}

	m.entries[key] = obj

	return obj
}

// Load replaces the map contents with the full object set, keyed by the given
// scheme, and marks the map fully loaded. Objects without a value under the
// scheme are skipped.
func (m *CachingMap) Load(objects []Object, scheme IDScheme) {
	m.entries = make(map[string]Object, len(objects))

	for _, obj := range objects {
		if key := obj.PropertyValue(scheme); key != "" {
			m.entries[key] = obj
		}
	}

	m.loaded = true
}

// IsLoaded reports whether the full table has been loaded into the map.
func (m *CachingMap) IsLoaded() bool { return m.loaded }

// MissCount returns the number of loader round trips taken so far. The
// counter is independent of map size and keeps counting after a full load
// never happens.
func (m *CachingMap) MissCount() int { return m.missCount }

// BoolCache memoizes expensive boolean derived facts by composite string key.
type BoolCache struct {
	entries map[string]bool
}

// NewBoolCache creates an empty boolean fact cache.
func NewBoolCache() *BoolCache {
	return &BoolCache{entries: make(map[string]bool)}
}

// Get returns the memoized value for key, computing it on first sight.
func (c *BoolCache) Get(key string, compute func() bool) bool {
	if v, ok := c.entries[key]; ok {
		return v
	}

	v := compute()
	c.entries[key] = v

	return v
}

// Schemes carries the identifier schemes under which each cached kind is keyed
// for one import run. Periods are always keyed by ISO form.
type Schemes struct {
	DataSet              IDScheme
	OrgUnit              IDScheme
	AttributeOptionCombo IDScheme
}

// Caches bundles the per-run resolution caches for the four metadata kinds
// plus the two boolean derived-fact caches. Created at run start, discarded at
// run end; never shared across runs.
type Caches struct {
	DataSets         *CachingMap
	OrgUnits         *CachingMap
	AttrOptionCombos *CachingMap
	Periods          *CachingMap

	// OrgUnitInHierarchy memoizes "is this organisation unit inside the
	// current actor's hierarchy" by organisation unit UID.
	OrgUnitInHierarchy *BoolCache

	// AttrOptComboOrgUnit memoizes "is this organisation unit valid for this
	// combo" by combo UID + organisation unit UID.
	AttrOptComboOrgUnit *BoolCache

	logger *slog.Logger
}

// NewCaches creates empty caches for one import run.
func NewCaches(logger *slog.Logger) *Caches {
	if logger == nil {
		logger = slog.Default()
	}

	return &Caches{
		DataSets:            NewCachingMap(),
		OrgUnits:            NewCachingMap(),
		AttrOptionCombos:    NewCachingMap(),
		Periods:             NewCachingMap(),
		OrgUnitInHierarchy:  NewBoolCache(),
		AttrOptComboOrgUnit: NewBoolCache(),
		logger:              logger,
	}
}

// kindMap returns the caching map serving the given kind, or nil for kinds
// that are not cached (organisation unit groups).
func (c *Caches) kindMap(kind Kind) *CachingMap {
	switch kind {
	case KindDataSet:
		return c.DataSets
	case KindOrganisationUnit:
		return c.OrgUnits
	case KindAttributeOptionCombo:
		return c.AttrOptionCombos
	case KindPeriod:
		return c.Periods
	default:
		return nil
	}
}

// Resolve looks up one object of the given kind through the cache, fetching
// from the store on a miss. Absence and fetch failure both yield nil; the
// import engine turns nil into a per-record conflict, never a fatal error.
func (c *Caches) Resolve(ctx context.Context, store Store, kind Kind, scheme IDScheme, id string) Object {
	m := c.kindMap(kind)
	if m == nil {
		return nil
	}

	return m.Get(id, func() (Object, error) {
		return store.FetchOne(ctx, kind, scheme, id)
	})
}

// Preheat eagerly loads data sets, organisation units and attribute option
// combos into the cache up front. Periods are left to lazy resolution: the
// period table is unbounded and almost never worth a full load.
func (c *Caches) Preheat(ctx context.Context, store Store, schemes Schemes) error {
	for _, target := range []struct {
		kind   Kind
		m      *CachingMap
		scheme IDScheme
	}{
		{KindDataSet, c.DataSets, schemes.DataSet},
		{KindOrganisationUnit, c.OrgUnits, schemes.OrgUnit},
		{KindAttributeOptionCombo, c.AttrOptionCombos, schemes.AttributeOptionCombo},
	} {
		objects, err := store.FetchAll(ctx, target.kind)
		if err != nil {
			return err
		}

		target.m.Load(objects, target.scheme)
	}

	return nil
}

// Heat performs the threshold-triggered full load for any kind whose miss
// counter has crossed MissThreshold. Called after every record; each kind is
// loaded at most once per run. A failing full load is logged and retried on a
// later call rather than failing the record.
func (c *Caches) Heat(ctx context.Context, store Store, schemes Schemes) {
	c.heatKind(ctx, store, KindDataSet, c.DataSets, schemes.DataSet)
	c.heatKind(ctx, store, KindOrganisationUnit, c.OrgUnits, schemes.OrgUnit)
	c.heatKind(ctx, store, KindAttributeOptionCombo, c.AttrOptionCombos, schemes.AttributeOptionCombo)
	c.heatKind(ctx, store, KindPeriod, c.Periods, SchemeUID)
}

func (c *Caches) heatKind(ctx context.Context, store Store, kind Kind, m *CachingMap, scheme IDScheme) {
	if m.IsLoaded() || m.MissCount() <= MissThreshold {
		return
	}

	objects, err := store.FetchAll(ctx, kind)
	if err != nil {
		c.logger.Warn("Full metadata load failed, continuing with per-object lookups",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))

		return
	}

	m.Load(objects, scheme)

	c.logger.Info("Metadata cache heated after cache miss threshold reached",
		slog.String("kind", string(kind)),
		slog.Int("objects", len(objects)))
}

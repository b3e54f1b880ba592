package metadata

import (
	"context"
	"errors"
)

// Sentinel errors for metadata lookups.
var (
	// ErrNotFound is returned when no object matches the identifier. Callers
	// that tolerate absence (the resolution cache) check for this explicitly.
	ErrNotFound = errors.New("metadata object not found")

	// ErrUnknownKind is returned for a kind the store does not serve.
	ErrUnknownKind = errors.New("unknown metadata kind")
)

// Store defines the interface for metadata lookups.
//
// The engine defines this interface to specify what it needs for reference
// resolution, without depending on concrete implementations. PostgreSQL and
// in-memory implementations live in internal/storage.
//
// Implementations must:
//   - Return ErrNotFound (possibly wrapped) for a missing object, reserving
//     other errors for infrastructure failures
//   - Resolve KindPeriod identifiers as ISO period strings, creating the
//     period on first use where the backing schema requires a row to exist
type Store interface {
	// FetchOne resolves a single object of the given kind by its identifier
	// under the given scheme.
	FetchOne(ctx context.Context, kind Kind, scheme IDScheme, id string) (Object, error)

	// FetchAll returns every object of the given kind. Used by the resolution
	// cache for preheating.
	FetchAll(ctx context.Context, kind Kind) ([]Object, error)
}

package registration

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrEndOfSource is returned by a Source when the record stream is exhausted.
var ErrEndOfSource = errors.New("end of record source")

// Source yields registration records one at a time: finite, forward-only, not
// restartable within one run. Implementations typically wrap an already
// deserialized payload; parsing is not this engine's concern.
type Source interface {
	// Next returns the next record, or ErrEndOfSource when the stream is
	// exhausted. Any other error aborts the run.
	Next(ctx context.Context) (*Record, error)
}

// SliceSource adapts an in-memory record slice to the Source interface.
type SliceSource struct {
	records []*Record
	pos     int
}

// NewSliceSource creates a Source over the given records.
func NewSliceSource(records ...*Record) *SliceSource {
	return &SliceSource{records: records}
}

// Next returns the next record in slice order.
func (s *SliceSource) Next(context.Context) (*Record, error) {
	if s.pos >= len(s.records) {
		return nil, ErrEndOfSource
	}

	rec := s.records[s.pos]
	s.pos++

	return rec, nil
}

// Store defines the interface for registration persistence (the write-target
// store). Insert, Update and Delete buffer their writes; Flush executes the
// buffered writes once, after the full record stream is consumed. This bounds
// round trips to O(1) flush operations regardless of record count.
//
// Implementations must make Insert conflict-safe at flush time: when the
// engine skipped the existence check, an insert against an existing key must
// behave as an update, never a constraint violation.
type Store interface {
	// FindExisting looks up the persisted registration for the composite key.
	// The bool result distinguishes absence from an infrastructure error.
	FindExisting(ctx context.Context, key Key) (*Registration, bool, error)

	// Insert buffers a new registration for the next Flush.
	Insert(reg *Registration)

	// Update buffers new values over an existing registration for the next Flush.
	Update(reg *Registration)

	// Delete buffers removal of an existing registration for the next Flush.
	Delete(reg *Registration)

	// Flush executes all buffered writes. A flush failure is fatal for the
	// remainder of unflushed writes in the batch.
	Flush(ctx context.Context) error
}

// Notifier receives coarse-grained lifecycle events for one import run. The
// engine never formats user-facing messages beyond the structured conflicts
// in the Summary; a Notifier implementation decides how to render or route
// the events.
type Notifier interface {
	// Started signals that the run has begun.
	Started(run uuid.UUID)

	// Progress reports a coarse-grained phase change.
	Progress(run uuid.UUID, message string)

	// Done delivers the final outcome of a completed run.
	Done(run uuid.UUID, summary *Summary)

	// Failed reports a fatal configuration or infrastructure error. Counters
	// accumulated before the failure are discarded.
	Failed(run uuid.UUID, err error)
}

// NoopNotifier discards all events.
type NoopNotifier struct{}

// Started implements Notifier.
func (NoopNotifier) Started(uuid.UUID) {}

// Progress implements Notifier.
func (NoopNotifier) Progress(uuid.UUID, string) {}

// Done implements Notifier.
func (NoopNotifier) Done(uuid.UUID, *Summary) {}

// Failed implements Notifier.
func (NoopNotifier) Failed(uuid.UUID, error) {}

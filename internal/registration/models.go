// Package registration provides the complete data set registration domain
// model and the import reconciliation engine.
//
// This package defines the Store, Source and Notifier interfaces which
// represent what the engine needs from its collaborators, following the
// Dependency Inversion Principle. Concrete implementations (PostgreSQL,
// in-memory, Kafka) live in internal/storage and internal/notify.
package registration

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Import statuses reported in a Summary.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// Sentinel errors for strategy parsing.
var (
	// ErrUnknownStrategy is returned when parsing an unrecognized strategy string.
	ErrUnknownStrategy = errors.New("unknown import strategy")
)

// Strategy is the configured policy governing how a resolved record
// reconciles against an existing registration.
type Strategy string

// Import strategies.
const (
	StrategyCreate          Strategy = "CREATE"
	StrategyUpdate          Strategy = "UPDATE"
	StrategyCreateAndUpdate Strategy = "CREATE_AND_UPDATE"
	StrategyDelete          Strategy = "DELETE"
)

// ParseStrategy parses a strategy string such as "CREATE" or
// "create_and_update". A blank input yields the zero strategy, which callers
// treat as "not specified".
func ParseStrategy(s string) (Strategy, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", nil
	}

	switch Strategy(strings.ToUpper(trimmed)) {
	case StrategyCreate:
		return StrategyCreate, nil
	case StrategyUpdate:
		return StrategyUpdate, nil
	case StrategyCreateAndUpdate, Strategy("NEW_AND_UPDATES"):
		return StrategyCreateAndUpdate, nil
	case StrategyDelete, Strategy("DELETES"):
		return StrategyDelete, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// IsCreate reports whether the strategy permits inserting new registrations only.
func (s Strategy) IsCreate() bool { return s == StrategyCreate }

// IsUpdate reports whether the strategy permits updating existing registrations only.
func (s Strategy) IsUpdate() bool { return s == StrategyUpdate }

// IsCreateAndUpdate reports whether the strategy permits both inserts and updates.
func (s Strategy) IsCreateAndUpdate() bool { return s == StrategyCreateAndUpdate }

// IsDelete reports whether the strategy deletes existing registrations.
func (s Strategy) IsDelete() bool { return s == StrategyDelete }

// Record is one incoming complete data set registration as produced by a
// Source: a flat tuple of reference strings interpreted under the run's
// identifier schemes, not yet resolved against metadata.
type Record struct {
	DataSet              string `json:"dataSet"`
	Period               string `json:"period"`
	OrganisationUnit     string `json:"organisationUnit"`
	AttributeOptionCombo string `json:"attributeOptionCombo,omitempty"`

	// Date is the completion date in "2006-01-02" form; blank means "now".
	Date string `json:"date,omitempty"`

	StoredBy      string `json:"storedBy,omitempty"`
	LastUpdatedBy string `json:"lastUpdatedBy,omitempty"`

	// Completed defaults to true when omitted.
	Completed *bool `json:"completed,omitempty"`
}

// Key is the natural composite key of a persisted registration. At most one
// registration exists per key at any time.
type Key struct {
	DataSetID              int64
	PeriodID               int64
	OrgUnitID              int64
	AttributeOptionComboID int64
}

// Registration is the canonical persisted form of one record, carrying both
// the surrogate composite key and the UIDs used for diagnostics.
type Registration struct {
	Key

	DataSetUID              string
	PeriodISO               string
	OrgUnitUID              string
	AttributeOptionComboUID string

	Date          time.Time
	StoredBy      string
	LastUpdatedBy string
	Completed     bool
}

// Conflict is a structured, non-fatal validation failure attached to one
// record. Object names the offending reference, Value is the human-readable
// reason, Code is a stable machine-readable reason code.
type Conflict struct {
	Object string `json:"object"`
	Value  string `json:"value"`
	Code   string `json:"code"`
}

// Counts holds the reconciliation counters for one run.
type Counts struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Ignored  int `json:"ignored"`
}

// Summary is the sole contract for import results: counters plus the ordered
// per-record conflict list.
type Summary struct {
	Status      string     `json:"status"`
	Description string     `json:"description"`
	Counts      Counts     `json:"importCount"`
	Conflicts   []Conflict `json:"conflicts,omitempty"`
	Total       int        `json:"total"`
}

// AddConflict appends one conflict in input-stream order.
func (s *Summary) AddConflict(object, value, code string) {
	s.Conflicts = append(s.Conflicts, Conflict{Object: object, Value: value, Code: code})
}

// finalize derives the ignored counter and the run status. Ignored is always
// total minus the other three counters, never tracked independently.
func (s *Summary) finalize(total, imported, updated, deleted int) {
	s.Total = total
	s.Counts = Counts{
		Imported: imported,
		Updated:  updated,
		Deleted:  deleted,
		Ignored:  total - imported - updated - deleted,
	}

	if total > 0 && s.Counts.Ignored == total {
		s.Status = StatusError
	} else {
		s.Status = StatusSuccess
	}

	s.Description = "Import process complete."
}

// Actor is the current user on whose behalf a run executes: the username used
// for stored-by defaulting, and the hierarchy paths of the user's assigned
// organisation units. Consumed read-only.
type Actor struct {
	Username     string
	OrgUnitPaths []string
}

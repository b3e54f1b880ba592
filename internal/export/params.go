// Package export compiles declarative registration queries into a single
// parameterized read and streams the result through a caller-supplied sink.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/registrar-io/registrar/internal/metadata"
	"github.com/registrar-io/registrar/internal/registration"
)

// Stable error codes for query validation failures.
const (
	ErrCodeNoDataSets          = "E2013"
	ErrCodeNoTimeDimension     = "E2002"
	ErrCodePeriodAndDates      = "E2003"
	ErrCodeStartAfterEnd       = "E2004"
	ErrCodeInvalidDuration     = "E2005"
	ErrCodeNoOrgDimension      = "E2006"
	ErrCodeGroupsWithChildren  = "E2007"
	ErrCodeChildrenWithoutUnit = "E2008"
	ErrCodeNegativeLimit       = "E2009"
	ErrCodeOrgUnitNotInScope   = "E2012"
)

// IllegalQueryError rejects a query before any row is read. The whole query
// fails; there is no per-row conflict reporting on the export path.
type IllegalQueryError struct {
	Code    string
	Message string
}

func (e *IllegalQueryError) Error() string {
	return e.Code + ": " + e.Message
}

func illegalQuery(code, format string, args ...any) *IllegalQueryError {
	return &IllegalQueryError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Params is the declarative export query as received from the caller.
// References are unresolved identifier strings under the UID scheme.
type Params struct {
	DataSets      []string `json:"dataSet"`
	OrgUnits      []string `json:"orgUnit"`
	OrgUnitGroups []string `json:"orgUnitGroup"`
	Periods       []string `json:"period"`

	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`

	Created         *time.Time `json:"created,omitempty"`
	CreatedDuration string     `json:"createdDuration,omitempty"`

	IncludeChildren bool `json:"children"`
	Limit           *int `json:"limit,omitempty"`

	Output OutputSchemes `json:"-"`
}

// OutputSchemes selects how each referenced entity is projected in the
// result. Per-object schemes fall back to the generic scheme, then UID.
// Schemes outside {UID, code, name} are clamped to UID before compiling.
type OutputSchemes struct {
	IDScheme                     metadata.IDScheme
	DataSetIDScheme              metadata.IDScheme
	OrgUnitIDScheme              metadata.IDScheme
	AttributeOptionComboIDScheme metadata.IDScheme
}

// schemeFor resolves the effective output scheme for one projected entity.
func (o OutputSchemes) schemeFor(specific metadata.IDScheme) metadata.IDScheme {
	scheme := specific
	if scheme.IsZero() {
		scheme = o.IDScheme
	}

	if scheme.IsZero() || !scheme.Exportable() {
		return metadata.SchemeUID
	}

	return scheme
}

// query is the resolved form of Params: references looked up against the
// metadata store, with unknown identifiers dropped.
type query struct {
	dataSets      []*metadata.DataSet
	orgUnits      []*metadata.OrganisationUnit
	orgUnitGroups []*metadata.OrganisationUnitGroup
	periods       []*metadata.Period

	startDate *time.Time
	endDate   *time.Time

	created         *time.Time
	createdDuration string

	includeChildren bool
	limit           *int

	dataSetScheme metadata.IDScheme
	orgUnitScheme metadata.IDScheme
	comboScheme   metadata.IDScheme
}

func (q *query) hasStartEndDate() bool {
	return q.startDate != nil && q.endDate != nil
}

func (q *query) hasTimeDimension() bool {
	return len(q.periods) > 0 || q.hasStartEndDate() || q.created != nil || q.createdDuration != ""
}

// validate checks the resolved query against the mutual-exclusion and
// mandatory-dimension rules, in a fixed order so a query with multiple
// problems always reports the same one.
func (q *query) validate() error {
	if len(q.dataSets) == 0 {
		return illegalQuery(ErrCodeNoDataSets, "At least one data set must be specified")
	}

	if !q.hasTimeDimension() {
		return illegalQuery(ErrCodeNoTimeDimension,
			"At least one valid period, start/end dates or created duration must be specified")
	}

	if len(q.periods) > 0 && q.hasStartEndDate() {
		return illegalQuery(ErrCodePeriodAndDates, "Both periods and start/end date cannot be specified")
	}

	if q.hasStartEndDate() && q.startDate.After(*q.endDate) {
		return illegalQuery(ErrCodeStartAfterEnd, "Start date must be before end date")
	}

	if q.createdDuration != "" {
		if _, err := parseDuration(q.createdDuration); err != nil {
			return illegalQuery(ErrCodeInvalidDuration, "Duration is not valid: %s", q.createdDuration)
		}
	}

	if len(q.orgUnits) == 0 && len(q.orgUnitGroups) == 0 {
		return illegalQuery(ErrCodeNoOrgDimension, "At least one valid organisation unit must be specified")
	}

	if len(q.orgUnitGroups) > 0 && q.includeChildren {
		return illegalQuery(ErrCodeGroupsWithChildren,
			"Organisation unit children cannot be included with organisation unit groups")
	}

	if q.includeChildren && len(q.orgUnits) == 0 {
		return illegalQuery(ErrCodeChildrenWithoutUnit,
			"At least one organisation unit must be specified when children are included")
	}

	if q.limit != nil && *q.limit < 0 {
		return illegalQuery(ErrCodeNegativeLimit, "Limit cannot be less than zero: %d", *q.limit)
	}

	return nil
}

// decideAccess rejects the whole query when any named organisation unit falls
// outside the actor's hierarchy. Unlike the import path, out-of-scope units
// are never silently filtered out.
func (q *query) decideAccess(actor registration.Actor) error {
	for _, ou := range q.orgUnits {
		if !ou.DescendantOfAny(actor.OrgUnitPaths) {
			return illegalQuery(ErrCodeOrgUnitNotInScope,
				"User is not allowed to view org unit: %s", ou.UID)
		}
	}

	return nil
}

// Store executes a compiled query, decoding each row into a registration
// record and handing it to fn in row-arrival order. A non-nil error from fn
// aborts the stream.
type Store interface {
	Stream(ctx context.Context, q *CompiledQuery, fn func(*registration.Record) error) error
}

// Sink receives the export output: one header, then one record per result
// row in arrival order.
type Sink interface {
	WriteHeader(Header) error
	WriteRecord(*registration.Record) error
}

// Package metadata provides the slowly-changing metadata model referenced by
// complete data set registrations, identifier-scheme resolution, and the
// per-run resolution cache used by the import engine.
//
// This package defines the Store interface which represents what the engine
// needs for metadata lookups. Concrete implementations (PostgreSQL, in-memory)
// live in the internal/storage package.
package metadata

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies one of the metadata object kinds served by a Store.
type Kind string

// Metadata kinds. The first four are cached per import run; organisation unit
// groups are only resolved on the export path.
const (
	KindDataSet               Kind = "dataSet"
	KindOrganisationUnit      Kind = "organisationUnit"
	KindAttributeOptionCombo  Kind = "attributeOptionCombo"
	KindPeriod                Kind = "period"
	KindOrganisationUnitGroup Kind = "organisationUnitGroup"
)

// Sentinel errors for identifier scheme handling.
var (
	// ErrUnknownIDScheme is returned when parsing an unrecognized scheme string.
	ErrUnknownIDScheme = errors.New("unknown identifier scheme")

	// ErrBlankAttributeUID is returned for an attribute scheme without a UID.
	ErrBlankAttributeUID = errors.New("attribute scheme requires an attribute UID")
)

// IDScheme is the convention used to interpret a metadata reference string:
// UID, code, name, or an attribute-backed scheme ("attribute:<uid>").
type IDScheme struct {
	property  string
	attribute string
}

// Built-in identifier schemes.
var (
	SchemeUID  = IDScheme{property: "uid"}
	SchemeCode = IDScheme{property: "code"}
	SchemeName = IDScheme{property: "name"}
)

// ParseIDScheme parses a scheme string such as "UID", "code", "name" or
// "ATTRIBUTE:dycoTCtRMM3". A blank input yields the zero scheme, which callers
// treat as "not specified".
func ParseIDScheme(s string) (IDScheme, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return IDScheme{}, nil
	}

	lower := strings.ToLower(trimmed)

	switch lower {
	case "uid", "id":
		return SchemeUID, nil
	case "code":
		return SchemeCode, nil
	case "name":
		return SchemeName, nil
	}

	if strings.HasPrefix(lower, "attribute:") {
		// Attribute UIDs are case-sensitive, so cut from the original input
		uid := strings.TrimSpace(trimmed[len("attribute:"):])

		if uid == "" {
			return IDScheme{}, ErrBlankAttributeUID
		}

		return IDScheme{property: "attribute", attribute: uid}, nil
	}

	return IDScheme{}, fmt.Errorf("%w: %q", ErrUnknownIDScheme, s)
}

// IsZero reports whether the scheme was not specified.
func (s IDScheme) IsZero() bool { return s.property == "" }

// IsAttribute reports whether this is an attribute-backed scheme.
func (s IDScheme) IsAttribute() bool { return s.property == "attribute" }

// Attribute returns the attribute UID for attribute-backed schemes.
func (s IDScheme) Attribute() string { return s.attribute }

// Exportable reports whether the scheme may be used for export projection.
// Only UID, code and name are allowed on the way out.
func (s IDScheme) Exportable() bool {
	switch s.property {
	case "uid", "code", "name":
		return true
	default:
		return false
	}
}

// String returns the canonical scheme string.
func (s IDScheme) String() string {
	if s.property == "attribute" {
		return "ATTRIBUTE:" + s.attribute
	}

	return strings.ToUpper(s.property)
}

// Object is one identifiable metadata object, resolvable under any scheme.
type Object interface {
	// DatabaseID returns the internal surrogate key for the object.
	DatabaseID() int64

	// PropertyValue returns the object's identifier under the given scheme,
	// or "" when the object has no value for that scheme.
	PropertyValue(scheme IDScheme) string
}

// identity carries the identifiers shared by all metadata kinds.
type identity struct {
	ID         int64
	UID        string
	Code       string
	Name       string
	Attributes map[string]string // attribute UID -> value
}

func (i identity) DatabaseID() int64 { return i.ID }

func (i identity) PropertyValue(scheme IDScheme) string {
	switch {
	case scheme.IsAttribute():
		return i.Attributes[scheme.Attribute()]
	case scheme == SchemeCode:
		return i.Code
	case scheme == SchemeName:
		return i.Name
	default:
		return i.UID
	}
}

// DataSet is a collection of data entry fields with a fixed reporting
// frequency (period type) and a category combo qualifying its data.
type DataSet struct {
	identity

	PeriodType       string
	CategoryComboUID string
}

// NewDataSet constructs a data set with the given identifiers.
func NewDataSet(id int64, uid, code, name, periodType, categoryComboUID string) *DataSet {
	return &DataSet{
		identity:         identity{ID: id, UID: uid, Code: code, Name: name},
		PeriodType:       periodType,
		CategoryComboUID: categoryComboUID,
	}
}

// OrganisationUnit is one node in the organisational hierarchy. Path is the
// materialized hierarchy path of UIDs, e.g. "/O6uvpzGd5pu/fdc6uOvgoji".
type OrganisationUnit struct {
	identity

	Path        string
	DataSetUIDs []string
}

// NewOrganisationUnit constructs an organisation unit with the given identifiers.
func NewOrganisationUnit(id int64, uid, code, name, path string) *OrganisationUnit {
	return &OrganisationUnit{
		identity: identity{ID: id, UID: uid, Code: code, Name: name},
		Path:     path,
	}
}

// HasDataSet reports whether the data set is assigned to this organisation unit.
func (ou *OrganisationUnit) HasDataSet(dataSetUID string) bool {
	for _, uid := range ou.DataSetUIDs {
		if uid == dataSetUID {
			return true
		}
	}

	return false
}

// DescendantOfPath reports whether this unit equals or lies below the unit
// with the given hierarchy path.
func (ou *OrganisationUnit) DescendantOfPath(path string) bool {
	if path == "" {
		return false
	}

	return ou.Path == path || strings.HasPrefix(ou.Path, path+"/")
}

// DescendantOfAny reports whether this unit equals or lies below any of the
// units with the given hierarchy paths.
func (ou *OrganisationUnit) DescendantOfAny(paths []string) bool {
	for _, p := range paths {
		if ou.DescendantOfPath(p) {
			return true
		}
	}

	return false
}

// CategoryOptionCombo qualifies a registration beyond data set, period and
// organisation unit (e.g. a funding source or project). A combo may carry a
// validity window and may be restricted to a subtree of organisation units.
type CategoryOptionCombo struct {
	identity

	CategoryComboUID string
	ValidFrom        *time.Time
	ValidTo          *time.Time

	// OrgUnitPaths restricts the combo to descendants of these units.
	// Nil means unrestricted.
	OrgUnitPaths []string
}

// NewCategoryOptionCombo constructs a category option combo with the given identifiers.
func NewCategoryOptionCombo(id int64, uid, code, name, categoryComboUID string) *CategoryOptionCombo {
	return &CategoryOptionCombo{
		identity:         identity{ID: id, UID: uid, Code: code, Name: name},
		CategoryComboUID: categoryComboUID,
	}
}

// ContainsPeriod reports whether the combo's validity window, where present,
// contains the full period range.
func (coc *CategoryOptionCombo) ContainsPeriod(p *Period) bool {
	if coc.ValidFrom != nil && coc.ValidFrom.After(p.StartDate) {
		return false
	}

	if coc.ValidTo != nil && coc.ValidTo.Before(p.EndDate) {
		return false
	}

	return true
}

// ValidForOrgUnit reports whether the organisation unit is acceptable under
// the combo's organisation unit restriction, if any.
func (coc *CategoryOptionCombo) ValidForOrgUnit(ou *OrganisationUnit) bool {
	if coc.OrgUnitPaths == nil {
		return true
	}

	return ou.DescendantOfAny(coc.OrgUnitPaths)
}

// OrganisationUnitGroup is a flat grouping of organisation units, used as an
// alternative organisation dimension on the export path.
type OrganisationUnitGroup struct {
	identity
}

// NewOrganisationUnitGroup constructs an organisation unit group.
func NewOrganisationUnitGroup(id int64, uid, code, name string) *OrganisationUnitGroup {
	return &OrganisationUnitGroup{identity{ID: id, UID: uid, Code: code, Name: name}}
}

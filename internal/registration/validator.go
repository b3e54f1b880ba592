package registration

import (
	"fmt"
	"strings"

	"github.com/registrar-io/registrar/internal/metadata"
)

// Stable conflict reason codes.
const (
	CodeDataSetNotFound         = "dataset_not_found"
	CodePeriodNotValid          = "period_not_valid"
	CodeOrgUnitNotFound         = "org_unit_not_found"
	CodeAttrOptComboRequired    = "attribute_option_combo_required"
	CodeOrgUnitNotInHierarchy   = "org_unit_not_in_user_hierarchy"
	CodeCategoryComboMismatch   = "category_combo_mismatch"
	CodePeriodOutsideComboRange = "period_outside_combo_range"
	CodeOrgUnitInvalidForCombo  = "org_unit_not_valid_for_combo"
	CodePeriodTypeMismatch      = "period_type_mismatch"
	CodeDataSetNotAssigned      = "data_set_not_assigned_to_org_unit"
	CodeStoredByInvalid         = "stored_by_invalid"
)

// maxStoredByLength is the syntactic limit on stored-by strings.
const maxStoredByLength = 255

// properties carries the resolved metadata objects for one record. DataSet,
// period and organisation unit must be non-nil for the record to proceed; the
// combo may be defaulted from config.
type properties struct {
	dataSet      *metadata.DataSet
	period       *metadata.Period
	orgUnit      *metadata.OrganisationUnit
	attrOptCombo *metadata.CategoryOptionCombo
}

// recordState is the per-record working state threaded through the validator
// chain. Stages read the record and resolved properties and may fill in the
// defaulted fields (combo, stored-by, completed).
type recordState struct {
	record *Record
	props  *properties
	cfg    *ImportConfig
	caches *metadata.Caches
	actor  Actor

	storedBy      string
	lastUpdatedBy string
	completed     bool
}

// stage is one named validation step. A nil return means the check passed;
// a Conflict short-circuits the chain for this record.
type stage struct {
	name  string
	check func(*recordState) *Conflict
}

// validators is the ordered validation chain applied to every record.
//
// Cheap cache-backed existence checks run first so a record that cannot
// possibly succeed fails with the most specific conflict (a missing data set
// is reported instead of a downstream period-type mismatch that is merely a
// consequence of it). Strictness-gated checks no-op unless enabled in config.
var validators = []stage{
	{"existence", checkExistence},
	{"attribute-option-combo-presence", checkComboPresence},
	{"user-hierarchy", checkUserHierarchy},
	{"category-combo-consistency", checkCategoryComboConsistency},
	{"combo-validity", checkComboValidity},
	{"period-type-consistency", checkPeriodTypeConsistency},
	{"data-set-assignment", checkDataSetAssignment},
	{"stored-by", checkStoredBy},
}

// validate runs the chain, short-circuiting at the first failing stage.
func validate(st *recordState) *Conflict {
	for _, v := range validators {
		if conflict := v.check(st); conflict != nil {
			return conflict
		}
	}

	return nil
}

func checkExistence(st *recordState) *Conflict {
	if st.props.dataSet == nil {
		return &Conflict{
			Object: st.record.DataSet,
			Value:  "Data set not found or not accessible",
			Code:   CodeDataSetNotFound,
		}
	}

	if st.props.period == nil {
		return &Conflict{
			Object: st.record.Period,
			Value:  "Period not valid",
			Code:   CodePeriodNotValid,
		}
	}

	if st.props.orgUnit == nil {
		return &Conflict{
			Object: st.record.OrganisationUnit,
			Value:  "Organisation unit not found or not accessible",
			Code:   CodeOrgUnitNotFound,
		}
	}

	return nil
}

func checkComboPresence(st *recordState) *Conflict {
	if st.props.attrOptCombo != nil {
		return nil
	}

	if st.cfg.RequireAttrOptionCombo {
		return &Conflict{
			Object: "Attribute option combo",
			Value:  "Attribute option combo is required but is not specified",
			Code:   CodeAttrOptComboRequired,
		}
	}

	st.props.attrOptCombo = st.cfg.FallbackCombo

	return nil
}

func checkUserHierarchy(st *recordState) *Conflict {
	ou := st.props.orgUnit

	inHierarchy := st.caches.OrgUnitInHierarchy.Get(ou.UID, func() bool {
		return ou.DescendantOfAny(st.actor.OrgUnitPaths)
	})

	if !inHierarchy {
		return &Conflict{
			Object: ou.UID,
			Value:  "Organisation unit is not in hierarchy of user: " + st.actor.Username,
			Code:   CodeOrgUnitNotInHierarchy,
		}
	}

	return nil
}

func checkCategoryComboConsistency(st *recordState) *Conflict {
	if !st.cfg.StrictAttrOptionCombos {
		return nil
	}

	aocCC := st.props.attrOptCombo.CategoryComboUID
	dsCC := st.props.dataSet.CategoryComboUID

	if aocCC != dsCC {
		return &Conflict{
			Object: aocCC,
			Value: fmt.Sprintf("Attribute option combo: %s must have category combo: %s",
				st.props.attrOptCombo.UID, dsCC),
			Code: CodeCategoryComboMismatch,
		}
	}

	return nil
}

func checkComboValidity(st *recordState) *Conflict {
	aoc := st.props.attrOptCombo
	pe := st.props.period
	ou := st.props.orgUnit

	if !aoc.ContainsPeriod(pe) {
		return &Conflict{
			Object: pe.ISO,
			Value: fmt.Sprintf("Period: %s is not within range of attribute option combo: %s",
				pe.ISO, aoc.UID),
			Code: CodePeriodOutsideComboRange,
		}
	}

	validForOrgUnit := st.caches.AttrOptComboOrgUnit.Get(aoc.UID+ou.UID, func() bool {
		return aoc.ValidForOrgUnit(ou)
	})

	if !validForOrgUnit {
		return &Conflict{
			Object: ou.UID,
			Value: fmt.Sprintf("Organisation unit: %s is not valid for attribute option combo %s",
				ou.UID, aoc.UID),
			Code: CodeOrgUnitInvalidForCombo,
		}
	}

	return nil
}

func checkPeriodTypeConsistency(st *recordState) *Conflict {
	if !st.cfg.StrictPeriods {
		return nil
	}

	if st.props.dataSet.PeriodType != st.props.period.Type {
		return &Conflict{
			Object: st.props.period.ISO,
			Value: fmt.Sprintf("Period type of period: %s is not equal to the period type of data set: %s",
				st.props.period.ISO, st.props.dataSet.PeriodType),
			Code: CodePeriodTypeMismatch,
		}
	}

	return nil
}

func checkDataSetAssignment(st *recordState) *Conflict {
	if !st.cfg.StrictOrgUnits {
		return nil
	}

	ds := st.props.dataSet
	ou := st.props.orgUnit

	if !ou.HasDataSet(ds.UID) {
		return &Conflict{
			Object: ds.UID,
			Value: fmt.Sprintf("Data set %s is not assigned to organisation unit %s",
				ds.UID, ou.UID),
			Code: CodeDataSetNotAssigned,
		}
	}

	return nil
}

// checkStoredBy validates the syntax of stored-by and last-updated-by when
// present. Defaulting to the actor's username happens after validation; the
// default itself is never validated.
func checkStoredBy(st *recordState) *Conflict {
	for _, value := range []string{st.record.StoredBy, st.record.LastUpdatedBy} {
		if reason := storedByInvalidReason(value); reason != "" {
			return &Conflict{Object: value, Value: reason, Code: CodeStoredByInvalid}
		}
	}

	st.storedBy = defaultIfBlank(st.record.StoredBy, st.actor.Username)
	st.lastUpdatedBy = defaultIfBlank(st.record.LastUpdatedBy, st.actor.Username)

	st.completed = true
	if st.record.Completed != nil {
		st.completed = *st.record.Completed
	}

	return nil
}

// storedByInvalidReason returns a human-readable reason when the stored-by
// string fails the syntactic check, or "" when valid. Blank is valid: it
// means "default to the current user".
func storedByInvalidReason(storedBy string) string {
	if len(storedBy) > maxStoredByLength {
		return fmt.Sprintf("Stored by is longer than %d characters", maxStoredByLength)
	}

	return ""
}

func defaultIfBlank(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

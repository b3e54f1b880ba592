package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/registrar-io/registrar/internal/metadata"
)

// Header carries values uniform across every result row, lifted out of the
// per-record stream so encodings can write them once on the envelope. A
// field is blank when the corresponding dimension is not single-valued.
type Header struct {
	DataSet              string `json:"dataSet,omitempty"`
	Period               string `json:"period,omitempty"`
	OrgUnit              string `json:"orgUnit,omitempty"`
	AttributeOptionCombo string `json:"attributeOptionCombo,omitempty"`
}

// CompiledQuery is one parameterized read over the registration relation,
// executed exactly once by a Store.
type CompiledQuery struct {
	SQL    string
	Args   []any
	Header Header
}

// compile translates a validated query into SQL. Relative created durations
// are resolved against now exactly once, here, not per row.
func compile(q *query, now time.Time) (*CompiledQuery, error) {
	b := &sqlBuilder{}

	b.write("SELECT ")
	b.write(schemeColumn("ds", q.dataSetScheme))
	b.write(" AS data_set, pe.iso AS period, ")
	b.write(schemeColumn("ou", q.orgUnitScheme))
	b.write(" AS org_unit, ")
	b.write(schemeColumn("aoc", q.comboScheme))
	b.write(` AS attribute_option_combo,
  cr.completion_date, cr.stored_by, cr.last_updated_by, cr.completed
FROM complete_registration cr
  JOIN data_set ds ON ds.id = cr.data_set_id
  JOIN period pe ON pe.id = cr.period_id
  JOIN organisation_unit ou ON ou.id = cr.org_unit_id
  JOIN category_option_combo aoc ON aoc.id = cr.attribute_option_combo_id
WHERE cr.data_set_id = ANY(`)
	b.arg(databaseIDs(q.dataSets))
	b.write(")")

	compileOrgUnitFilter(b, q)
	compilePeriodFilter(b, q)

	if created, ok := resolveCreated(q, now); ok {
		b.write(" AND cr.created >= ")
		b.arg(created)
	}

	if q.limit != nil {
		b.write(" LIMIT ")
		b.arg(*q.limit)
	}

	return &CompiledQuery{SQL: b.sql.String(), Args: b.args, Header: buildHeader(q)}, nil
}

// compileOrgUnitFilter appends one of the two mutually exclusive org-unit
// shapes: a path-prefix disjunction over the named roots (descendants), or
// direct membership optionally unioned with group membership.
func compileOrgUnitFilter(b *sqlBuilder, q *query) {
	if q.includeChildren {
		b.write(" AND (")

		for i, root := range q.orgUnits {
			if i > 0 {
				b.write(" OR ")
			}

			b.write("ou.path LIKE ")
			b.arg(root.Path + "%")
		}

		b.write(")")

		return
	}

	var clauses []string

	if len(q.orgUnits) > 0 {
		clauses = append(clauses, "cr.org_unit_id = ANY("+b.placeholder(databaseIDs(q.orgUnits))+")")
	}

	if len(q.orgUnitGroups) > 0 {
		clauses = append(clauses,
			"cr.org_unit_id IN (SELECT org_unit_id FROM org_unit_group_member WHERE group_id = ANY("+
				b.placeholder(databaseIDs(q.orgUnitGroups))+"))")
	}

	b.write(" AND (" + strings.Join(clauses, " OR ") + ")")
}

func compilePeriodFilter(b *sqlBuilder, q *query) {
	if len(q.periods) > 0 {
		b.write(" AND cr.period_id = ANY(")
		b.arg(databaseIDs(q.periods))
		b.write(")")

		return
	}

	if q.hasStartEndDate() {
		b.write(" AND pe.start_date >= ")
		b.arg(*q.startDate)
		b.write(" AND pe.end_date <= ")
		b.arg(*q.endDate)
	}
}

func resolveCreated(q *query, now time.Time) (time.Time, bool) {
	if q.created != nil {
		return *q.created, true
	}

	if q.createdDuration != "" {
		// Already validated; a parse failure here cannot happen.
		d, _ := parseDuration(q.createdDuration)
		return now.Add(-d), true
	}

	return time.Time{}, false
}

// buildHeader lifts single-valued filter dimensions into the header,
// projected under the query's output schemes.
func buildHeader(q *query) Header {
	var h Header

	if len(q.dataSets) == 1 {
		h.DataSet = q.dataSets[0].PropertyValue(q.dataSetScheme)
	}

	if len(q.periods) == 1 {
		h.Period = q.periods[0].ISO
	}

	if len(q.orgUnits) == 1 && !q.includeChildren && len(q.orgUnitGroups) == 0 {
		h.OrgUnit = q.orgUnits[0].PropertyValue(q.orgUnitScheme)
	}

	return h
}

// schemeColumn selects the projected column for an exportable scheme.
// Callers clamp schemes before compiling, so the default branch only sees
// UID.
func schemeColumn(alias string, scheme metadata.IDScheme) string {
	switch scheme {
	case metadata.SchemeCode:
		return alias + ".code"
	case metadata.SchemeName:
		return alias + ".name"
	default:
		return alias + ".uid"
	}
}

// databaseIDs projects metadata objects to their internal ids for ANY()
// binding.
func databaseIDs[T metadata.Object](objects []T) pq.Int64Array {
	ids := make(pq.Int64Array, 0, len(objects))
	for _, obj := range objects {
		ids = append(ids, obj.DatabaseID())
	}

	return ids
}

// sqlBuilder accumulates SQL text and positional arguments.
type sqlBuilder struct {
	sql  strings.Builder
	args []any
}

func (b *sqlBuilder) write(s string) {
	b.sql.WriteString(s)
}

// arg binds a value and writes its placeholder inline.
func (b *sqlBuilder) arg(value any) {
	b.write(b.placeholder(value))
}

// placeholder binds a value and returns its placeholder for manual
// interpolation into a larger clause.
func (b *sqlBuilder) placeholder(value any) string {
	b.args = append(b.args, value)
	return "$" + strconv.Itoa(len(b.args))
}

// parseDuration parses relative created durations of the form <n><unit>,
// where unit is one of s, m, h, d or w.
func parseDuration(raw string) (time.Duration, error) {
	if len(raw) < 2 {
		return 0, fmt.Errorf("duration too short: %q", raw)
	}

	value, err := strconv.Atoi(raw[:len(raw)-1])
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid duration value: %q", raw)
	}

	var unit time.Duration

	switch raw[len(raw)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid duration unit: %q", raw)
	}

	return time.Duration(value) * unit, nil
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/registrar-io/registrar/internal/metadata"
)

// MetadataStore implements metadata.Store over the normalized PostgreSQL
// schema. Periods are created on first fetch; all other kinds are read-only.
type MetadataStore struct {
	conn *Connection
}

// NewMetadataStore creates a metadata store over the given connection.
func NewMetadataStore(conn *Connection) *MetadataStore {
	return &MetadataStore{conn: conn}
}

// FetchOne resolves a single object of kind by its identifier under scheme.
// Returns metadata.ErrNotFound when no object matches.
func (s *MetadataStore) FetchOne(ctx context.Context, kind metadata.Kind, scheme metadata.IDScheme, id string) (metadata.Object, error) {
	if kind == metadata.KindPeriod {
		return s.fetchPeriod(ctx, id)
	}

	shape, err := queryShape(kind)
	if err != nil {
		return nil, err
	}

	where, args := schemePredicate(shape.alias, kind, scheme, id)
	query := shape.selectFrom + " WHERE " + where + shape.groupBy

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s by %s: %w", kind, scheme, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying %s by %s: %w", kind, scheme, err)
		}

		return nil, fmt.Errorf("%s %q: %w", kind, id, metadata.ErrNotFound)
	}

	return shape.scan(rows)
}

// FetchAll loads every object of kind, used by the cache heating path.
func (s *MetadataStore) FetchAll(ctx context.Context, kind metadata.Kind) ([]metadata.Object, error) {
	if kind == metadata.KindPeriod {
		return s.fetchAllPeriods(ctx)
	}

	shape, err := queryShape(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, shape.selectFrom+shape.groupBy)
	if err != nil {
		return nil, fmt.Errorf("loading all %s: %w", kind, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var objects []metadata.Object

	for rows.Next() {
		obj, err := shape.scan(rows)
		if err != nil {
			return nil, err
		}

		objects = append(objects, obj)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading all %s: %w", kind, err)
	}

	return objects, nil
}

// fetchPeriod parses the ISO identifier and upserts the period row, so a
// period exists in the database from its first use. An unparseable
// identifier maps to metadata.ErrNotFound.
func (s *MetadataStore) fetchPeriod(ctx context.Context, iso string) (metadata.Object, error) {
	period, err := metadata.ParsePeriod(iso)
	if err != nil {
		return nil, fmt.Errorf("period %q: %w", iso, metadata.ErrNotFound)
	}

	query := `
		INSERT INTO period (iso, period_type, start_date, end_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (iso) DO UPDATE SET iso = EXCLUDED.iso
		RETURNING id
	`

	err = s.conn.QueryRowContext(ctx, query, period.ISO, period.Type, period.StartDate, period.EndDate).
		Scan(&period.ID)
	if err != nil {
		return nil, fmt.Errorf("upserting period %q: %w", iso, err)
	}

	return period, nil
}

func (s *MetadataStore) fetchAllPeriods(ctx context.Context) ([]metadata.Object, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT id, iso, period_type, start_date, end_date FROM period")
	if err != nil {
		return nil, fmt.Errorf("loading all periods: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var objects []metadata.Object

	for rows.Next() {
		var p metadata.Period

		if err := rows.Scan(&p.ID, &p.ISO, &p.Type, &p.StartDate, &p.EndDate); err != nil {
			return nil, fmt.Errorf("scanning period: %w", err)
		}

		objects = append(objects, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading all periods: %w", err)
	}

	return objects, nil
}

// kindShape bundles the reusable parts of one kind's lookup query.
type kindShape struct {
	alias      string
	selectFrom string
	groupBy    string
	scan       func(*sql.Rows) (metadata.Object, error)
}

var errUnsupportedKind = errors.New("unsupported metadata kind")

func queryShape(kind metadata.Kind) (*kindShape, error) {
	switch kind {
	case metadata.KindDataSet:
		return dataSetShape, nil
	case metadata.KindOrganisationUnit:
		return orgUnitShape, nil
	case metadata.KindAttributeOptionCombo:
		return comboShape, nil
	case metadata.KindOrganisationUnitGroup:
		return groupShape, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedKind, kind)
	}
}

// schemePredicate builds the WHERE fragment selecting one object under the
// given identifier scheme. Arguments are numbered from $1; callers must not
// bind other parameters in the same query.
func schemePredicate(alias string, kind metadata.Kind, scheme metadata.IDScheme, id string) (string, []any) {
	switch {
	case scheme.IsAttribute():
		predicate := alias + `.id IN (
			SELECT object_id FROM attribute_value
			WHERE object_kind = $1 AND attribute_uid = $2 AND value = $3)`

		return predicate, []any{string(kind), scheme.Attribute(), id}
	case scheme == metadata.SchemeCode:
		return alias + ".code = $1", []any{id}
	case scheme == metadata.SchemeName:
		return alias + ".name = $1", []any{id}
	default:
		return alias + ".uid = $1", []any{id}
	}
}

var dataSetShape = &kindShape{
	alias: "ds",
	selectFrom: `
		SELECT ds.id, ds.uid, ds.code, ds.name, ds.period_type, cc.uid, ` + attributesColumn("dataSet", "ds") + `
		FROM data_set ds
		JOIN category_combo cc ON cc.id = ds.category_combo_id`,
	groupBy: " GROUP BY ds.id, cc.uid",
	scan: func(rows *sql.Rows) (metadata.Object, error) {
		var (
			id                    int64
			uid, name, periodType string
			code                  sql.NullString
			categoryComboUID      string
			attrs                 []byte
		)

		err := rows.Scan(&id, &uid, &code, &name, &periodType, &categoryComboUID, &attrs)
		if err != nil {
			return nil, fmt.Errorf("scanning data set: %w", err)
		}

		ds := metadata.NewDataSet(id, uid, code.String, name, periodType, categoryComboUID)

		if ds.Attributes, err = decodeAttributes(attrs); err != nil {
			return nil, err
		}

		return ds, nil
	},
}

var orgUnitShape = &kindShape{
	alias: "ou",
	selectFrom: `
		SELECT ou.id, ou.uid, ou.code, ou.name, ou.path,
			COALESCE(array_agg(DISTINCT ds.uid) FILTER (WHERE ds.uid IS NOT NULL), '{}'),
			` + attributesColumn("organisationUnit", "ou") + `
		FROM organisation_unit ou
		LEFT JOIN data_set_org_unit dso ON dso.org_unit_id = ou.id
		LEFT JOIN data_set ds ON ds.id = dso.data_set_id`,
	groupBy: " GROUP BY ou.id",
	scan: func(rows *sql.Rows) (metadata.Object, error) {
		var (
			id          int64
			uid, name   string
			code        sql.NullString
			path        string
			dataSetUIDs pq.StringArray
			attrs       []byte
		)

		err := rows.Scan(&id, &uid, &code, &name, &path, &dataSetUIDs, &attrs)
		if err != nil {
			return nil, fmt.Errorf("scanning organisation unit: %w", err)
		}

		ou := metadata.NewOrganisationUnit(id, uid, code.String, name, path)
		ou.DataSetUIDs = dataSetUIDs

		if ou.Attributes, err = decodeAttributes(attrs); err != nil {
			return nil, err
		}

		return ou, nil
	},
}

var comboShape = &kindShape{
	alias: "aoc",
	selectFrom: `
		SELECT aoc.id, aoc.uid, aoc.code, aoc.name, cc.uid, aoc.valid_from, aoc.valid_to,
			array_agg(DISTINCT restr.org_unit_path) FILTER (WHERE restr.org_unit_path IS NOT NULL),
			` + attributesColumn("attributeOptionCombo", "aoc") + `
		FROM category_option_combo aoc
		JOIN category_combo cc ON cc.id = aoc.category_combo_id
		LEFT JOIN category_option_combo_org_unit restr ON restr.combo_id = aoc.id`,
	groupBy: " GROUP BY aoc.id, cc.uid",
	scan: func(rows *sql.Rows) (metadata.Object, error) {
		var (
			id                 int64
			uid, name          string
			code               sql.NullString
			categoryComboUID   string
			validFrom, validTo sql.NullTime
			orgUnitPaths       pq.StringArray
			attrs              []byte
		)

		err := rows.Scan(&id, &uid, &code, &name, &categoryComboUID, &validFrom, &validTo, &orgUnitPaths, &attrs)
		if err != nil {
			return nil, fmt.Errorf("scanning category option combo: %w", err)
		}

		combo := metadata.NewCategoryOptionCombo(id, uid, code.String, name, categoryComboUID)

		if validFrom.Valid {
			combo.ValidFrom = &validFrom.Time
		}

		if validTo.Valid {
			combo.ValidTo = &validTo.Time
		}

		// A NULL aggregate means no restriction rows: unrestricted combo.
		if len(orgUnitPaths) > 0 {
			combo.OrgUnitPaths = orgUnitPaths
		}

		if combo.Attributes, err = decodeAttributes(attrs); err != nil {
			return nil, err
		}

		return combo, nil
	},
}

var groupShape = &kindShape{
	alias: "g",
	selectFrom: `
		SELECT g.id, g.uid, g.code, g.name, ` + attributesColumn("organisationUnitGroup", "g") + `
		FROM org_unit_group g`,
	groupBy: " GROUP BY g.id",
	scan: func(rows *sql.Rows) (metadata.Object, error) {
		var (
			id        int64
			uid, name string
			code      sql.NullString
			attrs     []byte
		)

		if err := rows.Scan(&id, &uid, &code, &name, &attrs); err != nil {
			return nil, fmt.Errorf("scanning organisation unit group: %w", err)
		}

		group := metadata.NewOrganisationUnitGroup(id, uid, code.String, name)

		var err error
		if group.Attributes, err = decodeAttributes(attrs); err != nil {
			return nil, err
		}

		return group, nil
	},
}

// attributesColumn aggregates an object's attribute values into one JSONB
// document so every lookup carries the data needed for attribute schemes.
func attributesColumn(objectKind, alias string) string {
	return `COALESCE((
		SELECT jsonb_object_agg(av.attribute_uid, av.value)
		FROM attribute_value av
		WHERE av.object_kind = '` + objectKind + `' AND av.object_id = ` + alias + `.id), '{}'::jsonb)`
}

func decodeAttributes(raw []byte) (map[string]string, error) {
	attrs := map[string]string{}

	if len(raw) == 0 {
		return attrs, nil
	}

	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("decoding attribute values: %w", err)
	}

	return attrs, nil
}

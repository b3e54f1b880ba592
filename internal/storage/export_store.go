package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/registrar-io/registrar/internal/export"
	"github.com/registrar-io/registrar/internal/registration"
)

// exportDateLayout is the date-only form registrations carry on the wire.
const exportDateLayout = "2006-01-02"

// ExportStore implements export.Store: it executes a compiled query and
// decodes each row into a registration record without buffering the result
// set.
type ExportStore struct {
	conn *Connection
}

// NewExportStore creates an export store over the given connection.
func NewExportStore(conn *Connection) *ExportStore {
	return &ExportStore{conn: conn}
}

// Stream executes the compiled query once and hands each decoded record to
// fn in row-arrival order. A non-nil error from fn aborts the stream.
func (s *ExportStore) Stream(ctx context.Context, q *export.CompiledQuery, fn func(*registration.Record) error) error {
	rows, err := s.conn.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return fmt.Errorf("executing export query: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		record, err := scanExportRow(rows)
		if err != nil {
			return err
		}

		if err := fn(record); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading export rows: %w", err)
	}

	return nil
}

func scanExportRow(rows *sql.Rows) (*registration.Record, error) {
	var (
		record         registration.Record
		completionDate time.Time
		storedBy       sql.NullString
		lastUpdatedBy  sql.NullString
		completed      bool
	)

	err := rows.Scan(
		&record.DataSet, &record.Period, &record.OrganisationUnit, &record.AttributeOptionCombo,
		&completionDate, &storedBy, &lastUpdatedBy, &completed)
	if err != nil {
		return nil, fmt.Errorf("scanning export row: %w", err)
	}

	// Completion dates are date-only on the wire.
	record.Date = completionDate.Format(exportDateLayout)
	record.StoredBy = storedBy.String
	record.LastUpdatedBy = lastUpdatedBy.String
	record.Completed = &completed

	return &record, nil
}

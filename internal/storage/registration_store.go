package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/registrar-io/registrar/internal/registration"
)

// RegistrationStore implements registration.Store. Writes are buffered in
// memory and applied in one transaction on Flush; a failed flush discards
// the batch.
type RegistrationStore struct {
	conn *Connection

	mu      sync.Mutex
	inserts []*registration.Registration
	updates []*registration.Registration
	deletes []*registration.Registration
}

// NewRegistrationStore creates a registration store over the given connection.
func NewRegistrationStore(conn *Connection) *RegistrationStore {
	return &RegistrationStore{conn: conn}
}

// FindExisting reads the persisted registration for a composite key, bypassing
// any buffered writes.
func (s *RegistrationStore) FindExisting(ctx context.Context, key registration.Key) (*registration.Registration, bool, error) {
	query := `
		SELECT ds.uid, pe.iso, ou.uid, aoc.uid,
			cr.completion_date, cr.stored_by, cr.last_updated_by, cr.completed
		FROM complete_registration cr
			JOIN data_set ds ON ds.id = cr.data_set_id
			JOIN period pe ON pe.id = cr.period_id
			JOIN organisation_unit ou ON ou.id = cr.org_unit_id
			JOIN category_option_combo aoc ON aoc.id = cr.attribute_option_combo_id
		WHERE cr.data_set_id = $1 AND cr.period_id = $2
			AND cr.org_unit_id = $3 AND cr.attribute_option_combo_id = $4
	`

	reg := &registration.Registration{Key: key}

	err := s.conn.QueryRowContext(ctx, query,
		key.DataSetID, key.PeriodID, key.OrgUnitID, key.AttributeOptionComboID).
		Scan(&reg.DataSetUID, &reg.PeriodISO, &reg.OrgUnitUID, &reg.AttributeOptionComboUID,
			&reg.Date, &reg.StoredBy, &reg.LastUpdatedBy, &reg.Completed)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("finding registration: %w", err)
	}

	return reg, true, nil
}

// Insert buffers a new registration. The flushed statement is conflict-safe:
// a concurrent or pre-existing row with the same key is overwritten rather
// than violating the primary key.
func (s *RegistrationStore) Insert(reg *registration.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inserts = append(s.inserts, reg)
}

// Update buffers an update of an existing registration.
func (s *RegistrationStore) Update(reg *registration.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates = append(s.updates, reg)
}

// Delete buffers a deletion.
func (s *RegistrationStore) Delete(reg *registration.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletes = append(s.deletes, reg)
}

// Flush applies all buffered writes in one transaction. The buffers are
// cleared whether or not the transaction succeeds; callers treat a flush
// failure as fatal for the batch.
func (s *RegistrationStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserts, updates, deletes := s.inserts, s.updates, s.deletes
	s.inserts, s.updates, s.deletes = nil, nil, nil

	if len(inserts) == 0 && len(updates) == 0 && len(deletes) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting flush transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if err := flushInserts(ctx, tx, inserts); err != nil {
		return err
	}

	if err := flushUpdates(ctx, tx, updates); err != nil {
		return err
	}

	if err := flushDeletes(ctx, tx, deletes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing flush: %w", err)
	}

	return nil
}

func flushInserts(ctx context.Context, tx *sql.Tx, regs []*registration.Registration) error {
	if len(regs) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO complete_registration
			(data_set_id, period_id, org_unit_id, attribute_option_combo_id,
			 completion_date, stored_by, last_updated_by, completed, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (data_set_id, period_id, org_unit_id, attribute_option_combo_id)
		DO UPDATE SET
			completion_date = EXCLUDED.completion_date,
			stored_by = EXCLUDED.stored_by,
			last_updated_by = EXCLUDED.last_updated_by,
			completed = EXCLUDED.completed,
			last_updated = now()
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}

	defer func() {
		_ = stmt.Close()
	}()

	for _, reg := range regs {
		_, err := stmt.ExecContext(ctx,
			reg.DataSetID, reg.PeriodID, reg.OrgUnitID, reg.AttributeOptionComboID,
			reg.Date, reg.StoredBy, reg.LastUpdatedBy, reg.Completed)
		if err != nil {
			return fmt.Errorf("inserting registration %s/%s/%s: %w",
				reg.DataSetUID, reg.PeriodISO, reg.OrgUnitUID, err)
		}
	}

	return nil
}

func flushUpdates(ctx context.Context, tx *sql.Tx, regs []*registration.Registration) error {
	if len(regs) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE complete_registration SET
			completion_date = $5,
			stored_by = $6,
			last_updated_by = $7,
			completed = $8,
			last_updated = now()
		WHERE data_set_id = $1 AND period_id = $2
			AND org_unit_id = $3 AND attribute_option_combo_id = $4
	`)
	if err != nil {
		return fmt.Errorf("preparing update: %w", err)
	}

	defer func() {
		_ = stmt.Close()
	}()

	for _, reg := range regs {
		_, err := stmt.ExecContext(ctx,
			reg.DataSetID, reg.PeriodID, reg.OrgUnitID, reg.AttributeOptionComboID,
			reg.Date, reg.StoredBy, reg.LastUpdatedBy, reg.Completed)
		if err != nil {
			return fmt.Errorf("updating registration %s/%s/%s: %w",
				reg.DataSetUID, reg.PeriodISO, reg.OrgUnitUID, err)
		}
	}

	return nil
}

func flushDeletes(ctx context.Context, tx *sql.Tx, regs []*registration.Registration) error {
	if len(regs) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		DELETE FROM complete_registration
		WHERE data_set_id = $1 AND period_id = $2
			AND org_unit_id = $3 AND attribute_option_combo_id = $4
	`)
	if err != nil {
		return fmt.Errorf("preparing delete: %w", err)
	}

	defer func() {
		_ = stmt.Close()
	}()

	for _, reg := range regs {
		_, err := stmt.ExecContext(ctx,
			reg.DataSetID, reg.PeriodID, reg.OrgUnitID, reg.AttributeOptionComboID)
		if err != nil {
			return fmt.Errorf("deleting registration %s/%s/%s: %w",
				reg.DataSetUID, reg.PeriodISO, reg.OrgUnitUID, err)
		}
	}

	return nil
}

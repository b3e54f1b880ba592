package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/registrar-io/registrar/internal/export"
	"github.com/registrar-io/registrar/internal/metadata"
	"github.com/registrar-io/registrar/internal/registration"
)

// seedPeriod materializes an iso period and returns its database id.
func seedPeriod(ctx context.Context, t *testing.T, store *MetadataStore, iso string) int64 {
	t.Helper()

	obj, err := store.FetchOne(ctx, metadata.KindPeriod, metadata.SchemeUID, iso)
	require.NoError(t, err)

	return obj.DatabaseID()
}

func TestRegistrationStoreFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := setupIntegrationConnection(ctx, t)
	seedMetadata(ctx, t, conn)

	periodID := seedPeriod(ctx, t, NewMetadataStore(conn), "202401")
	store := NewRegistrationStore(conn)

	key := registration.Key{
		DataSetID:              1,
		PeriodID:               periodID,
		OrgUnitID:              2,
		AttributeOptionComboID: 1,
	}

	completionDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	reg := &registration.Registration{
		Key:                     key,
		DataSetUID:              "lyLU2wR22tC",
		PeriodISO:               "202401",
		OrgUnitUID:              "fdc6uOvgoji",
		AttributeOptionComboUID: "HllvX50cXC0",
		Date:                    completionDate,
		StoredBy:                "admin",
		LastUpdatedBy:           "admin",
		Completed:               true,
	}

	// Nothing is visible before flush.
	_, found, err := store.FindExisting(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	store.Insert(reg)
	require.NoError(t, store.Flush(ctx))

	got, found, err := store.FindExisting(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "lyLU2wR22tC", got.DataSetUID)
	assert.Equal(t, "202401", got.PeriodISO)
	assert.Equal(t, "admin", got.StoredBy)
	assert.True(t, got.Completed)
	assert.WithinDuration(t, completionDate, got.Date, time.Second)

	// Inserting over the same key is conflict-safe and behaves as an update.
	again := *reg
	again.StoredBy = "second-import"
	store.Insert(&again)
	require.NoError(t, store.Flush(ctx))

	got, _, err = store.FindExisting(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "second-import", got.StoredBy)

	updated := *reg
	updated.LastUpdatedBy = "editor"
	updated.Completed = false
	store.Update(&updated)
	require.NoError(t, store.Flush(ctx))

	got, _, err = store.FindExisting(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "editor", got.LastUpdatedBy)
	assert.False(t, got.Completed)

	store.Delete(reg)
	require.NoError(t, store.Flush(ctx))

	_, found, err = store.FindExisting(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegistrationStoreEmptyFlush(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := setupIntegrationConnection(ctx, t)

	store := NewRegistrationStore(conn)
	require.NoError(t, store.Flush(ctx))
}

// collectingSink gathers the export output in memory.
type collectingSink struct {
	header  export.Header
	records []*registration.Record
}

func (s *collectingSink) WriteHeader(h export.Header) error {
	s.header = h
	return nil
}

func (s *collectingSink) WriteRecord(rec *registration.Record) error {
	s.records = append(s.records, rec)
	return nil
}

func TestExportRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := setupIntegrationConnection(ctx, t)
	seedMetadata(ctx, t, conn)

	metaStore := NewMetadataStore(conn)
	periodID := seedPeriod(ctx, t, metaStore, "202401")

	regStore := NewRegistrationStore(conn)
	regStore.Insert(&registration.Registration{
		Key: registration.Key{
			DataSetID:              1,
			PeriodID:               periodID,
			OrgUnitID:              2,
			AttributeOptionComboID: 1,
		},
		Date:          time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		StoredBy:      "admin",
		LastUpdatedBy: "admin",
		Completed:     true,
	})
	require.NoError(t, regStore.Flush(ctx))

	svc := export.NewService(metaStore, NewExportStore(conn))

	sink := &collectingSink{}
	actor := registration.Actor{Username: "admin", OrgUnitPaths: []string{"/ImspTQPwCqd"}}

	err := svc.Write(ctx, export.Params{
		DataSets: []string{"lyLU2wR22tC"},
		OrgUnits: []string{"ImspTQPwCqd"},
		Periods:  []string{"202401"},

		IncludeChildren: true,
	}, actor, sink)
	require.NoError(t, err)

	require.Len(t, sink.records, 1)

	rec := sink.records[0]
	assert.Equal(t, "lyLU2wR22tC", rec.DataSet)
	assert.Equal(t, "202401", rec.Period)
	assert.Equal(t, "fdc6uOvgoji", rec.OrganisationUnit)
	assert.Equal(t, "HllvX50cXC0", rec.AttributeOptionCombo)
	assert.Equal(t, "2024-01-15", rec.Date)
	assert.Equal(t, "admin", rec.StoredBy)

	require.NotNil(t, rec.Completed)
	assert.True(t, *rec.Completed)

	assert.Equal(t, "lyLU2wR22tC", sink.header.DataSet)
	assert.Equal(t, "202401", sink.header.Period)
}

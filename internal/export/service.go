package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/registrar-io/registrar/internal/metadata"
	"github.com/registrar-io/registrar/internal/registration"
)

// Service validates, compiles and executes export queries.
type Service struct {
	metadata metadata.Store
	store    Store
	logger   *slog.Logger
	clock    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// withClock overrides the time source, for tests.
func withClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = now }
}

// NewService creates an export service over the given metadata and
// registration read stores.
func NewService(meta metadata.Store, store Store, opts ...ServiceOption) *Service {
	s := &Service{
		metadata: meta,
		store:    store,
		logger:   slog.Default(),
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Write resolves, validates and compiles params, then streams every matching
// registration into sink. The header is written before the first record.
// Validation and access failures are returned as *IllegalQueryError before
// any row is read.
func (s *Service) Write(ctx context.Context, params Params, actor registration.Actor, sink Sink) error {
	compiled, err := s.Compile(ctx, params, actor)
	if err != nil {
		return err
	}

	if err := sink.WriteHeader(compiled.Header); err != nil {
		return fmt.Errorf("writing export header: %w", err)
	}

	written := 0

	err = s.store.Stream(ctx, compiled, func(record *registration.Record) error {
		written++
		return sink.WriteRecord(record)
	})
	if err != nil {
		return fmt.Errorf("streaming registrations: %w", err)
	}

	s.logger.Info("export finished", "records", written)

	return nil
}

// Compile resolves and validates params and returns the parameterized read
// without executing it.
func (s *Service) Compile(ctx context.Context, params Params, actor registration.Actor) (*CompiledQuery, error) {
	q, err := s.resolve(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := q.validate(); err != nil {
		return nil, err
	}

	if err := q.decideAccess(actor); err != nil {
		return nil, err
	}

	return compile(q, s.clock())
}

// resolve looks every referenced identifier up under the UID scheme.
// Unknown identifiers are dropped rather than failing the query; an empty
// mandatory dimension then surfaces through validation.
func (s *Service) resolve(ctx context.Context, params Params) (*query, error) {
	q := &query{
		startDate:       params.StartDate,
		endDate:         params.EndDate,
		created:         params.Created,
		createdDuration: params.CreatedDuration,
		includeChildren: params.IncludeChildren,
		limit:           params.Limit,
		dataSetScheme:   params.Output.schemeFor(params.Output.DataSetIDScheme),
		orgUnitScheme:   params.Output.schemeFor(params.Output.OrgUnitIDScheme),
		comboScheme:     params.Output.schemeFor(params.Output.AttributeOptionComboIDScheme),
	}

	for _, id := range params.DataSets {
		obj, err := s.fetch(ctx, metadata.KindDataSet, id)
		if err != nil {
			return nil, err
		}

		if obj != nil {
			q.dataSets = append(q.dataSets, obj.(*metadata.DataSet))
		}
	}

	for _, id := range params.OrgUnits {
		obj, err := s.fetch(ctx, metadata.KindOrganisationUnit, id)
		if err != nil {
			return nil, err
		}

		if obj != nil {
			q.orgUnits = append(q.orgUnits, obj.(*metadata.OrganisationUnit))
		}
	}

	for _, id := range params.OrgUnitGroups {
		obj, err := s.fetch(ctx, metadata.KindOrganisationUnitGroup, id)
		if err != nil {
			return nil, err
		}

		if obj != nil {
			q.orgUnitGroups = append(q.orgUnitGroups, obj.(*metadata.OrganisationUnitGroup))
		}
	}

	for _, iso := range params.Periods {
		obj, err := s.fetch(ctx, metadata.KindPeriod, iso)
		if err != nil {
			return nil, err
		}

		if obj != nil {
			q.periods = append(q.periods, obj.(*metadata.Period))
		}
	}

	return q, nil
}

// fetch returns nil for unknown identifiers and propagates infrastructure
// errors.
func (s *Service) fetch(ctx context.Context, kind metadata.Kind, id string) (metadata.Object, error) {
	obj, err := s.metadata.FetchOne(ctx, kind, metadata.SchemeUID, id)
	if errors.Is(err, metadata.ErrNotFound) {
		s.logger.Warn("dropping unknown export filter reference", "kind", string(kind), "id", id)
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("resolving %s %q: %w", kind, id, err)
	}

	return obj, nil
}

package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/registrar-io/registrar/internal/config"
	"github.com/registrar-io/registrar/internal/metadata"
)

// completionDateLayout is the wire format for completion dates.
const completionDateLayout = "2006-01-02"

// Engine drives a registration import run: it streams records from a Source,
// resolves their references against metadata, validates them, and applies the
// configured import strategy through a buffered Store.
type Engine struct {
	metadata metadata.Store
	store    Store
	notifier Notifier
	logger   *slog.Logger
	settings config.Settings
	clock    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the run lifecycle notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSettings sets the system settings that participate in import config
// resolution.
func WithSettings(s config.Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// withClock overrides the time source, for tests.
func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// NewEngine creates an import engine over the given metadata and registration
// stores.
func NewEngine(meta metadata.Store, store Store, opts ...Option) *Engine {
	e := &Engine{
		metadata: meta,
		store:    store,
		notifier: NoopNotifier{},
		logger:   slog.Default(),
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run executes one import. Per-record problems become conflicts on the
// summary and the run continues; configuration resolution, source, lookup and
// flush failures abort the run with an error after notifying Failed.
func (e *Engine) Run(ctx context.Context, source Source, envelope *Envelope, options Options, actor Actor) (*Summary, error) {
	runID := uuid.New()
	start := e.clock()

	e.notifier.Started(runID)
	e.logger.Info("import started", "run_id", runID, "strategy", string(options.Strategy))

	cfg, err := ResolveImportConfig(ctx, envelope, options, &e.settings, e.metadata)
	if err != nil {
		e.notifier.Failed(runID, err)
		return nil, fmt.Errorf("resolving import config: %w", err)
	}

	caches := metadata.NewCaches(e.logger)

	if options.Preheat {
		if err := caches.Preheat(ctx, e.metadata, cfg.Schemes); err != nil {
			e.logger.Warn("cache preheat failed, continuing with lazy loading", "run_id", runID, "error", err)
		}
	}

	e.notifier.Progress(runID, "Importing complete data set registrations")

	summary := &Summary{}

	var total, imported, updated, deleted int

	for {
		record, err := source.Next(ctx)
		if errors.Is(err, ErrEndOfSource) {
			break
		}

		if err != nil {
			e.notifier.Failed(runID, err)
			return nil, fmt.Errorf("reading record %d: %w", total+1, err)
		}

		total++

		outcome, err := e.importRecord(ctx, record, cfg, caches, actor, summary)
		if err != nil {
			e.notifier.Failed(runID, err)
			return nil, err
		}

		switch outcome {
		case outcomeImported:
			imported++
		case outcomeUpdated:
			updated++
		case outcomeDeleted:
			deleted++
		}

		caches.Heat(ctx, e.metadata, cfg.Schemes)
	}

	if !cfg.DryRun {
		if err := e.store.Flush(ctx); err != nil {
			e.notifier.Failed(runID, err)
			return nil, fmt.Errorf("flushing registrations: %w", err)
		}
	}

	summary.finalize(total, imported, updated, deleted)
	e.notifier.Done(runID, summary)

	e.logger.Info("import finished",
		"run_id", runID,
		"status", summary.Status,
		"total", summary.Total,
		"imported", summary.Counts.Imported,
		"updated", summary.Counts.Updated,
		"deleted", summary.Counts.Deleted,
		"ignored", summary.Counts.Ignored,
		"conflicts", len(summary.Conflicts),
		"dry_run", cfg.DryRun,
		"duration", e.clock().Sub(start))

	return summary, nil
}

type outcome int

const (
	outcomeIgnored outcome = iota
	outcomeImported
	outcomeUpdated
	outcomeDeleted
)

// importRecord processes a single record. An ignored record (validation
// conflict or strategy mismatch) returns outcomeIgnored with a nil error;
// only infrastructure failures return a non-nil error.
func (e *Engine) importRecord(ctx context.Context, record *Record, cfg *ImportConfig, caches *metadata.Caches, actor Actor, summary *Summary) (outcome, error) {
	st := &recordState{
		record: record,
		props:  e.resolveProperties(ctx, record, cfg, caches),
		cfg:    cfg,
		caches: caches,
		actor:  actor,
	}

	if conflict := validate(st); conflict != nil {
		summary.AddConflict(conflict.Object, conflict.Value, conflict.Code)
		return outcomeIgnored, nil
	}

	reg := e.buildRegistration(st)

	if cfg.SkipExistingCheck {
		// Without the lookup the record behaves as not-found: only creating
		// strategies write, as a conflict-safe insert on the composite key.
		if !cfg.Strategy.IsCreate() && !cfg.Strategy.IsCreateAndUpdate() {
			return outcomeIgnored, nil
		}

		if !cfg.DryRun {
			e.store.Insert(reg)
		}

		return outcomeImported, nil
	}

	existing, found, err := e.store.FindExisting(ctx, reg.Key)
	if err != nil {
		return outcomeIgnored, fmt.Errorf("looking up existing registration: %w", err)
	}

	switch {
	case cfg.Strategy.IsDelete():
		if !found {
			return outcomeIgnored, nil
		}

		if !cfg.DryRun {
			e.store.Delete(reg)
		}

		return outcomeDeleted, nil

	case found:
		if !cfg.Strategy.IsUpdate() && !cfg.Strategy.IsCreateAndUpdate() {
			return outcomeIgnored, nil
		}

		// Preserve the original stored-by audit trail on update.
		reg.StoredBy = existing.StoredBy

		if !cfg.DryRun {
			e.store.Update(reg)
		}

		return outcomeUpdated, nil

	default:
		if !cfg.Strategy.IsCreate() && !cfg.Strategy.IsCreateAndUpdate() {
			return outcomeIgnored, nil
		}

		if !cfg.DryRun {
			e.store.Insert(reg)
		}

		return outcomeImported, nil
	}
}

// resolveProperties looks up the record's references through the caches.
// Missing objects come back nil and are reported by the validator.
func (e *Engine) resolveProperties(ctx context.Context, record *Record, cfg *ImportConfig, caches *metadata.Caches) *properties {
	props := &properties{}

	if obj := caches.Resolve(ctx, e.metadata, metadata.KindDataSet, cfg.Schemes.DataSet, strings.TrimSpace(record.DataSet)); obj != nil {
		props.dataSet = obj.(*metadata.DataSet)
	}

	if obj := caches.Resolve(ctx, e.metadata, metadata.KindPeriod, metadata.SchemeUID, strings.TrimSpace(record.Period)); obj != nil {
		props.period = obj.(*metadata.Period)
	}

	if obj := caches.Resolve(ctx, e.metadata, metadata.KindOrganisationUnit, cfg.Schemes.OrgUnit, strings.TrimSpace(record.OrganisationUnit)); obj != nil {
		props.orgUnit = obj.(*metadata.OrganisationUnit)
	}

	if combo := strings.TrimSpace(record.AttributeOptionCombo); combo != "" {
		if obj := caches.Resolve(ctx, e.metadata, metadata.KindAttributeOptionCombo, cfg.Schemes.AttributeOptionCombo, combo); obj != nil {
			props.attrOptCombo = obj.(*metadata.CategoryOptionCombo)
		}
	}

	return props
}

// buildRegistration converts a validated record into its persisted form.
// Only called after validation, so all properties are non-nil.
func (e *Engine) buildRegistration(st *recordState) *Registration {
	date := e.clock()

	if raw := strings.TrimSpace(st.record.Date); raw != "" {
		if parsed, err := time.Parse(completionDateLayout, raw); err == nil {
			date = parsed
		}
	}

	return &Registration{
		Key: Key{
			DataSetID:              st.props.dataSet.DatabaseID(),
			PeriodID:               st.props.period.DatabaseID(),
			OrgUnitID:              st.props.orgUnit.DatabaseID(),
			AttributeOptionComboID: st.props.attrOptCombo.DatabaseID(),
		},
		DataSetUID:              st.props.dataSet.UID,
		PeriodISO:               st.props.period.ISO,
		OrgUnitUID:              st.props.orgUnit.UID,
		AttributeOptionComboUID: st.props.attrOptCombo.UID,
		Date:                    date,
		StoredBy:                st.storedBy,
		LastUpdatedBy:           st.lastUpdatedBy,
		Completed:               st.completed,
	}
}

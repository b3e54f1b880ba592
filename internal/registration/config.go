package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/registrar-io/registrar/internal/config"
	"github.com/registrar-io/registrar/internal/metadata"
)

// FallbackComboName is the name of the system-wide default category option
// combo, substituted when a record omits its attribute option combo and the
// run does not require one.
const FallbackComboName = "default"

// Sentinel errors for import configuration resolution.
var (
	// ErrFallbackComboUnavailable is returned when the default category
	// option combo cannot be resolved. Fatal for the run: there is nothing to
	// fall back to when a record omits its combo.
	ErrFallbackComboUnavailable = errors.New("fallback category option combo unavailable")
)

// Options are the caller-supplied options for one import run. Zero values
// mean "not specified" and fall through to system defaults.
type Options struct {
	// IDScheme is the generic identifier scheme, used for any object kind
	// without a more specific scheme.
	IDScheme                     string
	DataSetIDScheme              string
	OrgUnitIDScheme              string
	AttributeOptionComboIDScheme string

	Strategy Strategy
	DryRun   bool

	// Preheat requests eager full-table cache loading before the first record.
	Preheat bool

	// SkipExistingCheck skips the per-record read against the write-target
	// store. Writes remain conflict-safe: an insert over an existing key
	// behaves as an update at flush time.
	SkipExistingCheck bool

	StrictPeriods          bool
	StrictAttrOptionCombos bool
	StrictOrgUnits         bool
	RequireAttrOptionCombo bool
}

// Envelope carries payload-level overrides: attributes the record stream
// itself declares on its envelope (outer element or top-level fields). A
// non-blank envelope value wins over the corresponding caller option.
type Envelope struct {
	IDScheme                     string
	DataSetIDScheme              string
	OrgUnitIDScheme              string
	AttributeOptionComboIDScheme string

	Strategy string
	DryRun   *bool
}

// ImportConfig is the effective configuration for one import run: derived
// once from (payload overrides, caller options, system defaults, in that
// precedence) and immutable thereafter. Downstream components never read
// ambient settings directly.
type ImportConfig struct {
	Schemes metadata.Schemes

	Strategy          Strategy
	DryRun            bool
	SkipExistingCheck bool

	StrictPeriods          bool
	StrictAttrOptionCombos bool
	StrictOrgUnits         bool
	RequireAttrOptionCombo bool

	FallbackCombo *metadata.CategoryOptionCombo
}

// ResolveImportConfig derives the effective configuration for one run.
//
// Identifier schemes, strategy and dry-run: envelope wins when non-blank,
// then caller options, then UID / create-and-update / false. Strictness and
// requiredness booleans: logical OR of the caller option and the system
// setting, so an administrator can force strictness globally. The fallback
// combo is resolved eagerly; its absence is fatal for the run.
func ResolveImportConfig(
	ctx context.Context,
	envelope *Envelope,
	options Options,
	settings *config.Settings,
	store metadata.Store,
) (*ImportConfig, error) {
	if envelope == nil {
		envelope = &Envelope{}
	}

	if settings == nil {
		settings = &config.Settings{}
	}

	genericScheme, err := resolveScheme(envelope.IDScheme, options.IDScheme, metadata.SchemeUID)
	if err != nil {
		return nil, err
	}

	dsScheme, err := resolveScheme(envelope.DataSetIDScheme, options.DataSetIDScheme, genericScheme)
	if err != nil {
		return nil, err
	}

	ouScheme, err := resolveScheme(envelope.OrgUnitIDScheme, options.OrgUnitIDScheme, genericScheme)
	if err != nil {
		return nil, err
	}

	aocScheme, err := resolveScheme(
		envelope.AttributeOptionComboIDScheme, options.AttributeOptionComboIDScheme, genericScheme)
	if err != nil {
		return nil, err
	}

	strategy := options.Strategy
	if envelope.Strategy != "" {
		strategy, err = ParseStrategy(envelope.Strategy)
		if err != nil {
			return nil, err
		}
	}

	if strategy == "" {
		strategy = StrategyCreateAndUpdate
	}

	dryRun := options.DryRun
	if envelope.DryRun != nil {
		dryRun = *envelope.DryRun
	}

	obj, err := store.FetchOne(
		ctx, metadata.KindAttributeOptionCombo, metadata.SchemeName, FallbackComboName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFallbackComboUnavailable, err)
	}

	fallback, ok := obj.(*metadata.CategoryOptionCombo)
	if !ok || fallback == nil {
		return nil, ErrFallbackComboUnavailable
	}

	return &ImportConfig{
		Schemes: metadata.Schemes{
			DataSet:              dsScheme,
			OrgUnit:              ouScheme,
			AttributeOptionCombo: aocScheme,
		},
		Strategy:               strategy,
		DryRun:                 dryRun,
		SkipExistingCheck:      options.SkipExistingCheck,
		StrictPeriods:          options.StrictPeriods || settings.StrictPeriods,
		StrictAttrOptionCombos: options.StrictAttrOptionCombos || settings.StrictAttrOptionCombos,
		StrictOrgUnits:         options.StrictOrgUnits || settings.StrictOrgUnits,
		RequireAttrOptionCombo: options.RequireAttrOptionCombo || settings.RequireAttrOptionCombo,
		FallbackCombo:          fallback,
	}, nil
}

// resolveScheme picks the first non-blank scheme string of (payload, caller),
// falling back to the given default.
func resolveScheme(payload, caller string, fallback metadata.IDScheme) (metadata.IDScheme, error) {
	for _, candidate := range []string{payload, caller} {
		scheme, err := metadata.ParseIDScheme(candidate)
		if err != nil {
			return metadata.IDScheme{}, err
		}

		if !scheme.IsZero() {
			return scheme, nil
		}
	}

	return fallback, nil
}

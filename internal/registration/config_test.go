package registration

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/registrar-io/registrar/internal/config"
	"github.com/registrar-io/registrar/internal/metadata"
)

// fakeMetadataStore is a minimal metadata.Store for resolver and engine tests.
type fakeMetadataStore struct {
	objects map[metadata.Kind][]metadata.Object

	periods      map[string]*metadata.Period
	nextPeriodID int64

	fetchAllCalls map[metadata.Kind]int
	fetchOneErr   error
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{
		objects:       make(map[metadata.Kind][]metadata.Object),
		periods:       make(map[string]*metadata.Period),
		nextPeriodID:  1,
		fetchAllCalls: make(map[metadata.Kind]int),
	}
}

func (s *fakeMetadataStore) add(kind metadata.Kind, obj metadata.Object) {
	s.objects[kind] = append(s.objects[kind], obj)
}

func (s *fakeMetadataStore) FetchOne(_ context.Context, kind metadata.Kind, scheme metadata.IDScheme, id string) (metadata.Object, error) {
	if s.fetchOneErr != nil {
		return nil, s.fetchOneErr
	}

	if kind == metadata.KindPeriod {
		if p, ok := s.periods[id]; ok {
			return p, nil
		}

		p, err := metadata.ParsePeriod(id)
		if err != nil {
			return nil, fmt.Errorf("period %q: %w", id, metadata.ErrNotFound)
		}

		p.ID = s.nextPeriodID
		s.nextPeriodID++
		s.periods[id] = p

		return p, nil
	}

	for _, obj := range s.objects[kind] {
		if obj.PropertyValue(scheme) == id {
			return obj, nil
		}
	}

	return nil, fmt.Errorf("%s %q: %w", kind, id, metadata.ErrNotFound)
}

func (s *fakeMetadataStore) FetchAll(_ context.Context, kind metadata.Kind) ([]metadata.Object, error) {
	s.fetchAllCalls[kind]++

	return s.objects[kind], nil
}

// storeWithFallback returns a fake store holding only the default combo.
func storeWithFallback() (*fakeMetadataStore, *metadata.CategoryOptionCombo) {
	store := newFakeMetadataStore()
	fallback := metadata.NewCategoryOptionCombo(99, "HllvX50cXC0", "", FallbackComboName, "bjDvmb4bfuf")
	store.add(metadata.KindAttributeOptionCombo, fallback)

	return store, fallback
}

func TestResolveImportConfigDefaults(t *testing.T) {
	store, fallback := storeWithFallback()

	cfg, err := ResolveImportConfig(context.Background(), nil, Options{}, nil, store)
	if err != nil {
		t.Fatalf("ResolveImportConfig returned error: %v", err)
	}

	if cfg.Schemes.DataSet != metadata.SchemeUID ||
		cfg.Schemes.OrgUnit != metadata.SchemeUID ||
		cfg.Schemes.AttributeOptionCombo != metadata.SchemeUID {
		t.Errorf("default schemes = %+v, want UID everywhere", cfg.Schemes)
	}

	if cfg.Strategy != StrategyCreateAndUpdate {
		t.Errorf("default strategy = %q, want %q", cfg.Strategy, StrategyCreateAndUpdate)
	}

	if cfg.DryRun || cfg.SkipExistingCheck {
		t.Error("dry-run and skip-existing-check must default to false")
	}

	if cfg.StrictPeriods || cfg.StrictAttrOptionCombos || cfg.StrictOrgUnits || cfg.RequireAttrOptionCombo {
		t.Error("strictness flags must default to false")
	}

	if cfg.FallbackCombo != fallback {
		t.Errorf("FallbackCombo = %v, want the default combo", cfg.FallbackCombo)
	}
}

func TestResolveImportConfigPrecedence(t *testing.T) {
	store, _ := storeWithFallback()
	ctx := context.Background()

	t.Run("envelope scheme beats option scheme", func(t *testing.T) {
		envelope := &Envelope{DataSetIDScheme: "CODE"}
		options := Options{DataSetIDScheme: "NAME", OrgUnitIDScheme: "NAME"}

		cfg, err := ResolveImportConfig(ctx, envelope, options, nil, store)
		if err != nil {
			t.Fatalf("ResolveImportConfig returned error: %v", err)
		}

		if cfg.Schemes.DataSet != metadata.SchemeCode {
			t.Errorf("DataSet scheme = %v, want code (envelope wins)", cfg.Schemes.DataSet)
		}

		if cfg.Schemes.OrgUnit != metadata.SchemeName {
			t.Errorf("OrgUnit scheme = %v, want name (option applies)", cfg.Schemes.OrgUnit)
		}
	})

	t.Run("specific scheme beats generic scheme", func(t *testing.T) {
		options := Options{IDScheme: "CODE", OrgUnitIDScheme: "NAME"}

		cfg, err := ResolveImportConfig(ctx, nil, options, nil, store)
		if err != nil {
			t.Fatalf("ResolveImportConfig returned error: %v", err)
		}

		if cfg.Schemes.OrgUnit != metadata.SchemeName {
			t.Errorf("OrgUnit scheme = %v, want name", cfg.Schemes.OrgUnit)
		}

		if cfg.Schemes.DataSet != metadata.SchemeCode {
			t.Errorf("DataSet scheme = %v, want the generic code scheme", cfg.Schemes.DataSet)
		}
	})

	t.Run("envelope strategy and dry run override options", func(t *testing.T) {
		dry := true
		envelope := &Envelope{Strategy: "DELETES", DryRun: &dry}
		options := Options{Strategy: StrategyCreate, DryRun: false}

		cfg, err := ResolveImportConfig(ctx, envelope, options, nil, store)
		if err != nil {
			t.Fatalf("ResolveImportConfig returned error: %v", err)
		}

		if cfg.Strategy != StrategyDelete {
			t.Errorf("Strategy = %q, want DELETE (envelope alias wins)", cfg.Strategy)
		}

		if !cfg.DryRun {
			t.Error("DryRun = false, want true from envelope")
		}
	})

	t.Run("invalid envelope scheme is fatal", func(t *testing.T) {
		envelope := &Envelope{IDScheme: "sequence"}

		_, err := ResolveImportConfig(ctx, envelope, Options{}, nil, store)
		if !errors.Is(err, metadata.ErrUnknownIDScheme) {
			t.Fatalf("error = %v, want ErrUnknownIDScheme", err)
		}
	})
}

func TestResolveImportConfigStrictnessOR(t *testing.T) {
	store, _ := storeWithFallback()

	settings := &config.Settings{StrictPeriods: true, RequireAttrOptionCombo: true}
	options := Options{StrictOrgUnits: true}

	cfg, err := ResolveImportConfig(context.Background(), nil, options, settings, store)
	if err != nil {
		t.Fatalf("ResolveImportConfig returned error: %v", err)
	}

	if !cfg.StrictPeriods {
		t.Error("StrictPeriods should be forced by system settings")
	}

	if !cfg.StrictOrgUnits {
		t.Error("StrictOrgUnits should be enabled by options")
	}

	if !cfg.RequireAttrOptionCombo {
		t.Error("RequireAttrOptionCombo should be forced by system settings")
	}

	if cfg.StrictAttrOptionCombos {
		t.Error("StrictAttrOptionCombos should stay false when neither side sets it")
	}
}

func TestResolveImportConfigFallbackComboUnavailable(t *testing.T) {
	store := newFakeMetadataStore() // no default combo registered

	_, err := ResolveImportConfig(context.Background(), nil, Options{}, nil, store)
	if !errors.Is(err, ErrFallbackComboUnavailable) {
		t.Fatalf("error = %v, want ErrFallbackComboUnavailable", err)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Strategy
		wantErr bool
	}{
		{name: "blank", input: "", want: ""},
		{name: "create", input: "CREATE", want: StrategyCreate},
		{name: "lowercase", input: "update", want: StrategyUpdate},
		{name: "create and update", input: "CREATE_AND_UPDATE", want: StrategyCreateAndUpdate},
		{name: "new and updates alias", input: "NEW_AND_UPDATES", want: StrategyCreateAndUpdate},
		{name: "deletes alias", input: "deletes", want: StrategyDelete},
		{name: "unknown", input: "MERGE", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)

			if tt.wantErr {
				if !errors.Is(err, ErrUnknownStrategy) {
					t.Fatalf("ParseStrategy(%q) error = %v, want ErrUnknownStrategy", tt.input, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseStrategy(%q) returned error: %v", tt.input, err)
			}

			if got != tt.want {
				t.Errorf("ParseStrategy(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

package main

import (
	"strings"
	"testing"
	"testing/fstest"
)

func migrationFS(names ...string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for _, name := range names {
		fsys[name] = &fstest.MapFile{Data: []byte("SELECT 1;")}
	}

	return fsys
}

func TestValidateEmbeddedMigrations(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		wantErr string
	}{
		{
			name: "valid pair",
			files: []string{
				"001_create_metadata_schema.up.sql",
				"001_create_metadata_schema.down.sql",
			},
		},
		{
			name: "valid multi sequence",
			files: []string{
				"001_a.up.sql", "001_a.down.sql",
				"002_b.up.sql", "002_b.down.sql",
				"003_c.up.sql", "003_c.down.sql",
			},
		},
		{
			name:    "empty set",
			files:   nil,
			wantErr: "no embedded migration files found",
		},
		{
			name:    "orphaned up",
			files:   []string{"001_a.up.sql"},
			wantErr: "missing down migration",
		},
		{
			name:    "orphaned down",
			files:   []string{"001_a.down.sql"},
			wantErr: "missing up migration",
		},
		{
			name: "sequence does not start at 001",
			files: []string{
				"002_b.up.sql", "002_b.down.sql",
			},
			wantErr: "should start with 001",
		},
		{
			name: "gap in sequence",
			files: []string{
				"001_a.up.sql", "001_a.down.sql",
				"003_c.up.sql", "003_c.down.sql",
			},
			wantErr: "gap in migration sequence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedded := NewEmbeddedMigration(migrationFS(tt.files...))

			err := embedded.ValidateEmbeddedMigrations()

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateEmbeddedMigrations returned error: %v", err)
				}

				return
			}

			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestListEmbeddedMigrationsIgnoresForeignFiles(t *testing.T) {
	fsys := migrationFS(
		"001_a.up.sql",
		"001_a.down.sql",
		"notes.sql",
		"01_short_sequence.up.sql",
		"002-dashed-name.up.sql",
		"README.md",
	)

	embedded := NewEmbeddedMigration(fsys)

	files, err := embedded.ListEmbeddedMigrations()
	if err != nil {
		t.Fatalf("ListEmbeddedMigrations returned error: %v", err)
	}

	want := []string{"001_a.down.sql", "001_a.up.sql"}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}

	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q (sorted)", i, files[i], want[i])
		}
	}
}

func TestShippedMigrationsAreValid(t *testing.T) {
	embedded := NewEmbeddedMigration(nil)

	if err := embedded.ValidateEmbeddedMigrations(); err != nil {
		t.Fatalf("shipped migrations failed validation: %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	embedded := NewEmbeddedMigration(migrationFS())

	info, err := embedded.parseMigrationFilename("002_create_complete_registration.up.sql")
	if err != nil {
		t.Fatalf("parseMigrationFilename returned error: %v", err)
	}

	if info.Sequence != 2 || info.Name != "create_complete_registration" || info.Direction != "up" {
		t.Errorf("parsed = %+v", info)
	}

	if _, err := embedded.parseMigrationFilename("bad.sql"); err == nil {
		t.Error("parseMigrationFilename should reject non-conforming names")
	}
}

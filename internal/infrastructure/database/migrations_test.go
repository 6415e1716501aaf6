package database

import (
	"context"
	"testing"
	"testing/fstest"
)

var testMigrations = fstest.MapFS{
	"20260101_000000_create_doors.up.sql": {Data: []byte(
		`CREATE TABLE doors (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`)},
	"20260101_000000_create_doors.down.sql": {Data: []byte(
		`DROP TABLE doors;`)},
	"20260102_000000_add_location.up.sql": {Data: []byte(
		`ALTER TABLE doors ADD COLUMN location TEXT;`)},
	"README.md": {Data: []byte("not a migration")},
}

// useMigrations swaps the package migration source for the duration of a test.
func useMigrations(t *testing.T, fsys fstest.MapFS) {
	t.Helper()
	prevFS, prevDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = fsys, "."
	t.Cleanup(func() { MigrationsFS, MigrationsDir = prevFS, prevDir })
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		filename      string
		wantVersion   string
		wantName      string
		wantDirection string
		wantOK        bool
	}{
		{"20260301_120000_door_events.up.sql", "20260301_120000", "door_events", "up", true},
		{"20260301_120000_door_events.down.sql", "20260301_120000", "door_events", "down", true},
		{"20260301_door_events.up.sql", "", "", "", false},
		{"20260301_120000_.up.sql", "", "", "", false},
		{"20260301_120000_door_events.sql", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, direction, ok := parseMigrationName(tt.filename)
			if ok != tt.wantOK || version != tt.wantVersion || name != tt.wantName || direction != tt.wantDirection {
				t.Errorf("parseMigrationName(%q) = (%q, %q, %q, %v), want (%q, %q, %q, %v)",
					tt.filename, version, name, direction, ok,
					tt.wantVersion, tt.wantName, tt.wantDirection, tt.wantOK)
			}
		})
	}
}

func TestMigrate_AppliesInOrder(t *testing.T) {
	useMigrations(t, testMigrations)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// The second migration depends on the first.
	if _, err := db.ExecContext(ctx, "INSERT INTO doors (name, location) VALUES ('main', 'garage')"); err != nil {
		t.Fatalf("insert after migrate: %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Fatalf("applied = %d, pending = %d, want 2 and 0", len(applied), len(pending))
	}
	if applied[0].Version != "20260101_000000" {
		t.Errorf("applied[0].Version = %q", applied[0].Version)
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("applied[0].AppliedAt is zero")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	useMigrations(t, testMigrations)
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260101_000000_good.up.sql": {Data: []byte(`CREATE TABLE good (id INTEGER);`)},
		"20260102_000000_bad.up.sql":  {Data: []byte(`CREATE TABLE oops (;`)},
	})
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() expected error for bad SQL, got nil")
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied = %d, pending = %d, want 1 and 1", len(applied), len(pending))
	}
}

func TestMigrateDown(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260101_000000_create_doors.up.sql":   testMigrations["20260101_000000_create_doors.up.sql"],
		"20260101_000000_create_doors.down.sql": testMigrations["20260101_000000_create_doors.down.sql"],
	})
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'doors'").Scan(&count)
	if err != nil {
		t.Fatalf("checking table: %v", err)
	}
	if count != 0 {
		t.Error("doors table still exists after MigrateDown")
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260101_000000_one_way.up.sql": {Data: []byte(`CREATE TABLE one_way (id INTEGER);`)},
	})
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err == nil {
		t.Error("MigrateDown() expected error without down SQL, got nil")
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	useMigrations(t, nil)
	MigrationsFS = nil
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate() with no migrations error = %v", err)
	}
}

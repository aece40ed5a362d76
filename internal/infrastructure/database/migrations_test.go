package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

// useMigrations swaps in fsys for the duration of the test.
func useMigrations(t *testing.T, fsys fstest.MapFS, dir string) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})
	MigrationsFS = fsys
	MigrationsDir = dir
}

func credentialMigrations() fstest.MapFS {
	return fstest.MapFS{
		"sql/20261019_000001_bridge_credentials.up.sql": {
			Data: []byte(`CREATE TABLE bridge_credentials (
				bridge_type TEXT NOT NULL,
				bridge_id TEXT NOT NULL,
				bundle TEXT NOT NULL,
				PRIMARY KEY (bridge_type, bridge_id)
			)`),
		},
		"sql/20261019_000001_bridge_credentials.down.sql": {
			Data: []byte(`DROP TABLE bridge_credentials`),
		},
		"sql/20261020_000001_bridge_address.up.sql": {
			Data: []byte(`ALTER TABLE bridge_credentials ADD COLUMN address TEXT`),
		},
		"sql/README.md": {Data: []byte("not a migration")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, credentialMigrations(), "sql")

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if !tableExists(t, db, "bridge_credentials") {
		t.Fatal("table bridge_credentials not created")
	}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO bridge_credentials (bridge_type, bridge_id, bundle, address) VALUES (?, ?, ?, ?)",
		"lutron", "0A1B2C3D", "{}", "10.0.0.5",
	); err != nil {
		t.Fatalf("second migration not applied: %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}
	if applied[0].Version != "20261019_000001" || applied[0].AppliedAt.IsZero() {
		t.Errorf("applied[0] = %+v", applied[0])
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	fsys := credentialMigrations()
	fsys["sql/20261021_000001_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE (")}
	useMigrations(t, fsys, "sql")

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() error = nil, want failure on broken migration")
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 2 and 1", len(applied), len(pending))
	}
}

func TestMigrateDown(t *testing.T) {
	fsys := credentialMigrations()
	delete(fsys, "sql/20261020_000001_bridge_address.up.sql")
	useMigrations(t, fsys, "sql")

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "bridge_credentials") {
		t.Error("table bridge_credentials should have been dropped")
	}

	applied, _, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected 0 applied migrations after rollback, got %d", len(applied))
	}

	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20261019_000001_only_up.up.sql": {Data: []byte("CREATE TABLE only_up (id INTEGER)")},
	}, ".")

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err == nil {
		t.Error("MigrateDown() error = nil, want missing down SQL error")
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	origFS := MigrationsFS
	t.Cleanup(func() { MigrationsFS = origFS })
	MigrationsFS = nil

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

func TestMigrationStatus(t *testing.T) {
	useMigrations(t, credentialMigrations(), "sql")

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.createMigrationsTable(ctx); err != nil {
		t.Fatalf("createMigrationsTable() error = %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected 0 applied, got %d", len(applied))
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	if pending[0].Name != "bridge_credentials" || pending[1].Name != "bridge_address" {
		t.Errorf("pending names = %q, %q", pending[0].Name, pending[1].Name)
	}
	if pending[0].DownSQL == "" || pending[1].DownSQL != "" {
		t.Error("down SQL not paired by version")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     migrationFile
		wantOk   bool
	}{
		{"20261019_000001_bridge_credentials.up.sql", migrationFile{"20261019_000001", "bridge_credentials", true}, true},
		{"20261019_000001_bridge_credentials.down.sql", migrationFile{"20261019_000001", "bridge_credentials", false}, true},
		{"20261020_000001_add_address_to_bridges.up.sql", migrationFile{"20261020_000001", "add_address_to_bridges", true}, true},
		{"readme.txt", migrationFile{}, false},
		{"20261019_000001_bridge_credentials.sql", migrationFile{}, false},
		{"invalid.up.sql", migrationFile{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if got != tt.want {
				t.Errorf("parseMigrationFilename(%q) = %+v, want %+v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestLoadMigrations_OrphanDownIgnored(t *testing.T) {
	fsys := fstest.MapFS{
		"20261019_000001_a.up.sql":   {Data: []byte("SELECT 1")},
		"20261018_000001_b.down.sql": {Data: []byte("SELECT 1")},
	}
	got, err := loadMigrations(fsys, ".")
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "a" {
		t.Errorf("loadMigrations() = %+v, want only a", got)
	}
}

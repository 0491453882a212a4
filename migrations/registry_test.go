package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	droplet "github.com/goliatone/go-droplet"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestCoreSchemaMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := droplet.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_droplet_core_schema.up.sql",
		"data/sql/migrations/00001_droplet_core_schema.down.sql",
		"data/sql/migrations/sqlite/00001_droplet_core_schema.up.sql",
		"data/sql/migrations/sqlite/00001_droplet_core_schema.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestRateLimitStatesMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := droplet.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00002_droplet_rate_limit_states.up.sql",
		"data/sql/migrations/00002_droplet_rate_limit_states.down.sql",
		"data/sql/migrations/sqlite/00002_droplet_rate_limit_states.up.sql",
		"data/sql/migrations/sqlite/00002_droplet_rate_limit_states.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteCoreSchemaMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-core-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := droplet.GetMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_droplet_core_schema.up.sql"); err != nil {
		t.Fatalf("apply core schema up: %v", err)
	}

	requiredTables := []string{
		"droplet_installations",
		"webhook_deliveries",
		"droplet_activity_log",
		"droplet_products",
		"droplet_orders",
		"droplet_customers",
		"droplet_reps",
	}
	for _, tableName := range requiredTables {
		var count int
		if err := db.QueryRowContext(
			context.Background(),
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
			tableName,
		).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master for %s: %v", tableName, err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist after up migration", tableName)
		}
	}

	insertInstallation := `
		INSERT INTO droplet_installations (id, installation_id, shop_domain, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertInstallation,
		"row-1", "inst-1", "acme.fluid.app", "pending",
		"2026-01-01T00:00:00Z", "2026-01-01T00:00:00Z",
	); err != nil {
		t.Fatalf("insert installation: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertInstallation,
		"row-2", "inst-1", "acme.fluid.app", "pending",
		"2026-01-02T00:00:00Z", "2026-01-02T00:00:00Z",
	); err == nil {
		t.Fatalf("expected unique installation_id violation")
	}

	insertDelivery := `
		INSERT INTO webhook_deliveries (id, installation_id, delivery_id, event_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertDelivery,
		"dlv-row-1", "inst-1", "dlv-1", "product.updated",
		"2026-01-01T00:00:00Z", "2026-01-01T00:00:00Z",
	); err != nil {
		t.Fatalf("insert delivery: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertDelivery,
		"dlv-row-2", "inst-1", "dlv-1", "product.updated",
		"2026-01-02T00:00:00Z", "2026-01-02T00:00:00Z",
	); err == nil {
		t.Fatalf("expected unique (installation_id, delivery_id) violation")
	}

	var configuration string
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT configuration FROM droplet_installations WHERE id = ?`,
		"row-1",
	).Scan(&configuration); err != nil {
		t.Fatalf("read configuration default: %v", err)
	}
	if configuration != "{}" {
		t.Fatalf("expected configuration default {}, got %q", configuration)
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_droplet_core_schema.down.sql"); err != nil {
		t.Fatalf("apply core schema down: %v", err)
	}
	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"droplet_installations",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master after down: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected droplet_installations to be dropped after down migration")
	}
}

func TestSQLiteRateLimitStatesMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-rate-limit-states?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := droplet.GetMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	baseUps := []string{
		"00001_droplet_core_schema.up.sql",
		"00002_droplet_rate_limit_states.up.sql",
	}
	for _, migration := range baseUps {
		if err := execSQLMigration(context.Background(), db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	insertState := `
		INSERT INTO rate_limit_states
			(id, shop_domain, bucket_key, rate_limit, remaining, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertState,
		"state-1", "acme.fluid.app", "rest", 40, 39, "{}",
		"2026-01-01T00:00:00Z", "2026-01-01T00:00:00Z",
	); err != nil {
		t.Fatalf("insert state row: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertState,
		"state-2", "acme.fluid.app", "rest", 40, 10, "{}",
		"2026-01-02T00:00:00Z", "2026-01-02T00:00:00Z",
	); err == nil {
		t.Fatalf("expected unique (shop_domain, bucket_key) violation")
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00002_droplet_rate_limit_states.down.sql"); err != nil {
		t.Fatalf("apply rate limit states down: %v", err)
	}
	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"rate_limit_states",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master after down: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rate_limit_states to be dropped after down migration")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}

package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/platform/logging"
	"github.com/louisbranch/homebook/internal/services/instance/database"
	"github.com/louisbranch/homebook/internal/services/instance/migrate/migrations"
)

func sqliteConnection(t *testing.T) database.Connection {
	t.Helper()
	return database.Connection{
		Provider: database.ProviderSQLite,
		File:     filepath.Join(t.TempDir(), "homebook.db"),
	}
}

func TestSQLiteMigratorIsIdempotent(t *testing.T) {
	conn := sqliteConnection(t)
	factory := NewFactory(conn, WithLogger(logging.Discard()))

	migrator, err := factory.CreateMigrator(database.ProviderSQLite)
	if err != nil {
		t.Fatalf("create migrator: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := migrator.Migrate(context.Background()); err != nil {
			t.Fatalf("migrate pass %d: %v", i+1, err)
		}
	}

	sqlDB, err := conn.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()

	var count int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", count)
	}
	for _, table := range []string{"users", "instance_configuration"} {
		if _, err := sqlDB.Exec("SELECT COUNT(*) FROM " + table); err != nil {
			t.Fatalf("expected table %s: %v", table, err)
		}
	}
}

func TestGooseMigratorAppliesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goose.db")
	open := func(ctx context.Context, _ database.Connection) (*sql.DB, error) {
		return sql.Open("sqlite", path)
	}
	m := &gooseMigrator{
		conn:    database.Connection{Provider: database.ProviderPostgreSQL},
		fs:      migrations.FS,
		dir:     migrations.PostgresDir,
		dialect: goose.DialectSQLite3,
		open:    open,
		logger:  logging.Discard(),
	}

	for i := 0; i < 2; i++ {
		if err := m.Migrate(context.Background()); err != nil {
			t.Fatalf("migrate pass %d: %v", i+1, err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()

	var version int64
	if err := sqlDB.QueryRow("SELECT MAX(version_id) FROM goose_db_version").Scan(&version); err != nil {
		t.Fatalf("read goose version: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected schema version 2, got %d", version)
	}
}

func TestCreateMigratorRejectsUnknownProvider(t *testing.T) {
	_, err := NewFactory(database.Connection{}).CreateMigrator("oracle")
	if !apperrors.HasCode(err, apperrors.CodeUnsupportedProvider) {
		t.Fatalf("expected unsupported provider, got %v", err)
	}
}

func TestCreateMigratorKnowsEveryProvider(t *testing.T) {
	factory := NewFactory(database.Connection{})
	for _, provider := range database.Providers() {
		if _, err := factory.CreateMigrator(provider); err != nil {
			t.Fatalf("%s: %v", provider, err)
		}
	}
}

func TestMigrateReportsOpenFailure(t *testing.T) {
	migrator, err := NewFactory(database.Connection{}).CreateMigrator(database.ProviderSQLite)
	if err != nil {
		t.Fatalf("create migrator: %v", err)
	}
	if err := migrator.Migrate(context.Background()); err == nil {
		t.Fatal("expected migrate without a database file to fail")
	}
}

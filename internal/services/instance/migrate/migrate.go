// Package migrate brings an instance schema to its latest version on any
// supported backend.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/platform/logging"
	"github.com/louisbranch/homebook/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/homebook/internal/platform/timeouts"
	"github.com/louisbranch/homebook/internal/services/instance/database"
	"github.com/louisbranch/homebook/internal/services/instance/migrate/migrations"
)

// Migrator applies the schema of one backend. Migrate is idempotent.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// MigratorFactory returns the Migrator of a backend.
type MigratorFactory interface {
	CreateMigrator(provider database.Provider) (Migrator, error)
}

type openFunc func(ctx context.Context, conn database.Connection) (*sql.DB, error)

// Factory builds migrators bound to one connection.
type Factory struct {
	conn   database.Connection
	fs     fs.FS
	open   openFunc
	logger logrus.FieldLogger
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the migration logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithMigrations replaces the embedded migrations. fsys must contain one
// directory per backend named as in package migrations.
func WithMigrations(fsys fs.FS) Option {
	return func(f *Factory) {
		if fsys != nil {
			f.fs = fsys
		}
	}
}

// NewFactory returns a Factory for conn.
func NewFactory(conn database.Connection, opts ...Option) *Factory {
	f := &Factory{
		conn: conn,
		fs:   migrations.FS,
		open: func(ctx context.Context, conn database.Connection) (*sql.DB, error) {
			return conn.Open(ctx)
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.OrDiscard(f.logger)
	return f
}

// CreateMigrator returns the Migrator for provider.
func (f *Factory) CreateMigrator(provider database.Provider) (Migrator, error) {
	conn := f.conn
	conn.Provider = provider
	logger := f.logger.WithField("provider", provider.String())

	switch provider {
	case database.ProviderSQLite:
		return &sqliteMigrator{conn: conn, fs: f.fs, open: f.open, logger: logger}, nil
	case database.ProviderMySQL:
		return &gooseMigrator{conn: conn, fs: f.fs, dir: migrations.MySQLDir, dialect: goose.DialectMySQL, open: f.open, logger: logger}, nil
	case database.ProviderPostgreSQL:
		return &gooseMigrator{conn: conn, fs: f.fs, dir: migrations.PostgresDir, dialect: goose.DialectPostgres, open: f.open, logger: logger}, nil
	default:
		return nil, apperrors.WithMetadata(
			apperrors.CodeUnsupportedProvider,
			fmt.Sprintf("unsupported provider %q", provider),
			map[string]string{"provider": provider.String()},
		)
	}
}

type sqliteMigrator struct {
	conn   database.Connection
	fs     fs.FS
	open   openFunc
	logger logrus.FieldLogger
}

func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Migration)
	defer cancel()

	sqlDB, err := m.open(ctx, m.conn)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer sqlDB.Close()

	applied, err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, m.fs, migrations.SQLiteDir)
	if err != nil {
		return fmt.Errorf("apply sqlite migrations: %w", err)
	}
	m.logger.WithField("applied", len(applied)).Info("schema migrated")
	return nil
}

type gooseMigrator struct {
	conn    database.Connection
	fs      fs.FS
	dir     string
	dialect goose.Dialect
	open    openFunc
	logger  logrus.FieldLogger
}

func (m *gooseMigrator) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Migration)
	defer cancel()

	sub, err := fs.Sub(m.fs, m.dir)
	if err != nil {
		return fmt.Errorf("locate %s migrations: %w", m.dir, err)
	}
	sqlDB, err := m.open(ctx, m.conn)
	if err != nil {
		return fmt.Errorf("open %s: %w", m.conn.Provider, err)
	}

	provider, err := goose.NewProvider(m.dialect, sqlDB, sub)
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("configure goose: %w", err)
	}
	defer provider.Close()

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	m.logger.WithField("applied", len(results)).Info("schema migrated")
	return nil
}

// Package storage persists accounts and instance configuration on any
// supported backend.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/services/instance/database"
	"github.com/louisbranch/homebook/internal/services/instance/user"
)

// Instance configuration keys.
const (
	ConfigInstanceName    = "instance_name"
	ConfigDefaultLanguage = "default_language"
)

// ErrNotFound indicates a missing record.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements account and configuration persistence over database/sql.
type Store struct {
	sqlDB    *sql.DB
	provider database.Provider
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for updated_at columns.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an open handle whose schema is already migrated.
func New(sqlDB *sql.DB, provider database.Provider, opts ...Option) (*Store, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	switch provider {
	case database.ProviderSQLite, database.ProviderMySQL, database.ProviderPostgreSQL:
	default:
		return nil, apperrors.New(apperrors.CodeUnsupportedProvider, fmt.Sprintf("unsupported provider %q", provider))
	}
	s := &Store{sqlDB: sqlDB, provider: provider, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open connects to conn and returns a Store bound to it.
func Open(ctx context.Context, conn database.Connection, opts ...Option) (*Store, error) {
	sqlDB, err := conn.Open(ctx)
	if err != nil {
		return nil, err
	}
	store, err := New(sqlDB, conn.Provider, opts...)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateUser inserts u. A taken username is reported as ALREADY_EXISTS.
func (s *Store) CreateUser(ctx context.Context, u user.User) error {
	exists, err := s.userExists(ctx, u.Username)
	if err != nil {
		return err
	}
	if exists {
		return apperrors.WithMetadata(apperrors.CodeAlreadyExists, "username already exists", map[string]string{"username": u.Username})
	}

	_, err = s.sqlDB.ExecContext(ctx, s.rebind(`
INSERT INTO users (id, username, password_hash, hash_algorithm, is_admin, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Username, u.PasswordHash, u.HashAlgorithm, u.IsAdmin, toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByUsername returns the user named username or ErrNotFound.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	row := s.sqlDB.QueryRowContext(ctx, s.rebind(`
SELECT id, username, password_hash, hash_algorithm, is_admin, created_at, updated_at
FROM users WHERE username = ?`), username)

	var (
		u         user.User
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.HashAlgorithm, &u.IsAdmin, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

// SetConfiguration stores value under name, replacing any previous value.
func (s *Store) SetConfiguration(ctx context.Context, name, value string) error {
	var query string
	switch s.provider {
	case database.ProviderMySQL:
		query = `
INSERT INTO instance_configuration (name, value, updated_at) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)`
	default:
		query = `
INSERT INTO instance_configuration (name, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	}
	if _, err := s.sqlDB.ExecContext(ctx, s.rebind(query), name, value, toMillis(s.now())); err != nil {
		return fmt.Errorf("set configuration %s: %w", name, err)
	}
	return nil
}

// GetConfiguration returns the value stored under name and whether it exists.
func (s *Store) GetConfiguration(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.sqlDB.QueryRowContext(ctx, s.rebind(`SELECT value FROM instance_configuration WHERE name = ?`), name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get configuration %s: %w", name, err)
	}
	return value, true, nil
}

// NormalizeUsernames lowercases every username that is not already lower
// case and returns the number of rows changed.
func (s *Store) NormalizeUsernames(ctx context.Context) (int64, error) {
	result, err := s.sqlDB.ExecContext(ctx, s.rebind(`
UPDATE users SET username = LOWER(username), updated_at = ?
WHERE username <> LOWER(username)`), toMillis(s.now()))
	if err != nil {
		return 0, fmt.Errorf("normalize usernames: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("normalize usernames: %w", err)
	}
	return changed, nil
}

func (s *Store) userExists(ctx context.Context, username string) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM users WHERE username = ?`), username).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check user: %w", err)
	}
	return true, nil
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	query = strings.TrimSpace(query)
	if s.provider != database.ProviderPostgreSQL {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Package settings persists the database configuration chosen during setup.
package settings

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/platform/fsys"
	"github.com/louisbranch/homebook/internal/platform/paths"
	"github.com/louisbranch/homebook/internal/services/instance/database"
	"github.com/louisbranch/homebook/internal/services/instance/envconfig"
)

const (
	// FileName is the settings file inside the config directory.
	FileName = "database.ini"
	// DefaultSQLiteFile is the SQLite file name inside the data directory.
	DefaultSQLiteFile = "homebook.db"

	section = "database"
)

// loadOptions keep values byte-for-byte: quotes around a password and a
// trailing backslash are part of the value.
var loadOptions = ini.LoadOptions{
	PreserveSurroundedQuote: true,
	IgnoreContinuation:      true,
}

// Store reads and writes database.ini.
type Store struct {
	fs    fsys.FileSystem
	paths paths.Provider
}

// NewStore returns a Store for the instance rooted at p.
func NewStore(fs fsys.FileSystem, p paths.Provider) *Store {
	return &Store{fs: fs, paths: p}
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return filepath.Join(s.paths.ConfigDir(), FileName)
}

// Load returns the persisted connection and whether the file exists.
func (s *Store) Load(ctx context.Context) (database.Connection, bool, error) {
	exists, err := s.fs.Exists(ctx, s.Path())
	if err != nil {
		return database.Connection{}, false, err
	}
	if !exists {
		return database.Connection{}, false, nil
	}
	text, err := s.fs.ReadAllText(ctx, s.Path())
	if err != nil {
		return database.Connection{}, false, err
	}
	file, err := ini.LoadSources(loadOptions, []byte(text))
	if err != nil {
		return database.Connection{}, false, fmt.Errorf("parse %s: %w", FileName, err)
	}

	sec := file.Section(section)
	value := func(key string) string { return unpad(sec.Key(key).String()) }
	conn := database.Connection{
		Host:     value("host"),
		Name:     value("name"),
		User:     value("user"),
		Password: value("password"),
		File:     value("file"),
	}
	if raw := sec.Key("provider").String(); raw != "" {
		provider, err := database.ParseProvider(raw)
		if err != nil {
			return database.Connection{}, false, fmt.Errorf("parse %s: %w", FileName, err)
		}
		conn.Provider = provider
	}
	if sec.HasKey("port") {
		port, err := sec.Key("port").Int()
		if err != nil {
			return database.Connection{}, false, fmt.Errorf("parse %s port: %w", FileName, err)
		}
		conn.Port = port
	}
	return conn, true, nil
}

// Save writes conn, replacing any previous settings.
func (s *Store) Save(ctx context.Context, conn database.Connection) error {
	file := ini.Empty()
	sec, err := file.NewSection(section)
	if err != nil {
		return fmt.Errorf("build %s: %w", FileName, err)
	}
	values := []struct{ key, value string }{
		{"provider", conn.Provider.String()},
		{"host", conn.Host},
		{"port", strconv.Itoa(conn.Port)},
		{"name", conn.Name},
		{"user", conn.User},
		{"password", conn.Password},
		{"file", conn.File},
	}
	for _, kv := range values {
		if kv.value == "" || (kv.key == "port" && conn.Port == 0) {
			continue
		}
		if err := storable(kv.value); err != nil {
			return apperrors.Wrap(apperrors.CodeConfigInvalid, fmt.Sprintf("database %s cannot be saved", kv.key), err)
		}
		if _, err := sec.NewKey(kv.key, kv.value); err != nil {
			return fmt.Errorf("build %s: %w", FileName, err)
		}
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", FileName, err)
	}
	return s.fs.WriteAllText(ctx, s.Path(), buf.String())
}

// The ini writer wraps values with leading or trailing whitespace in double
// quotes. Those are the only surrounding quotes Load strips.
func padded(v string) bool {
	if len(v) < 3 || v[0] != '"' || v[len(v)-1] != '"' {
		return false
	}
	inner := v[1 : len(v)-1]
	return strings.TrimSpace(inner) != inner
}

func unpad(v string) string {
	if padded(v) {
		return v[1 : len(v)-1]
	}
	return v
}

// storable rejects values the ini format cannot round-trip.
func storable(v string) error {
	switch {
	case padded(v):
		return fmt.Errorf("value cannot both start and end with a quote next to whitespace")
	case strings.HasPrefix(v, `"""`) && !strings.ContainsAny(v, "\n`"):
		return fmt.Errorf("value cannot start with triple quotes")
	}
	return nil
}

// Resolve loads the persisted connection and applies environment overrides.
// A SQLite connection without a file defaults to the data directory.
func (s *Store) Resolve(ctx context.Context, env envconfig.Configuration) (database.Connection, error) {
	conn, _, err := s.Load(ctx)
	if err != nil {
		return database.Connection{}, err
	}
	conn = ApplyOverrides(conn, env)
	if conn.Provider == database.ProviderSQLite && conn.File == "" {
		conn.File = s.DefaultSQLitePath()
	}
	return conn, nil
}

// DefaultSQLitePath returns the SQLite file used when none is configured.
func (s *Store) DefaultSQLitePath() string {
	return filepath.Join(s.paths.DataDir(), DefaultSQLiteFile)
}

// ApplyOverrides returns conn with every non-empty environment value applied.
func ApplyOverrides(conn database.Connection, env envconfig.Configuration) database.Connection {
	if provider := env.Provider(); provider != "" {
		conn.Provider = provider
	}
	override := func(target *string, value string) {
		if value != "" {
			*target = value
		}
	}
	override(&conn.Host, env.DatabaseHost)
	override(&conn.Name, env.DatabaseName)
	override(&conn.User, env.DatabaseUser)
	override(&conn.Password, env.DatabasePassword)
	override(&conn.File, env.DatabaseFile)
	if env.DatabasePort != 0 {
		conn.Port = env.DatabasePort
	}
	return conn
}

package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/platform/timeouts"
)

// Candidate is a set of network connection parameters to probe.
type Candidate struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// Connection is the full set of parameters for one configured backend.
type Connection struct {
	Provider Provider
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	// File is the SQLite database path.
	File string
}

// Candidate returns the network parameters of c.
func (c Connection) Candidate() Candidate {
	return Candidate{
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Name,
		Username: c.User,
		Password: c.Password,
	}
}

// Validate checks that c carries what its provider needs.
func (c Connection) Validate() error {
	switch c.Provider {
	case "":
		return apperrors.New(apperrors.CodeProviderNotConfigured, "database provider is not configured")
	case ProviderSQLite:
		if strings.TrimSpace(c.File) == "" {
			return apperrors.New(apperrors.CodeConfigInvalid, "sqlite database file is required")
		}
		return nil
	case ProviderMySQL, ProviderPostgreSQL:
		if strings.TrimSpace(c.Host) == "" {
			return apperrors.New(apperrors.CodeConfigInvalid, "database host is required")
		}
		if strings.TrimSpace(c.Name) == "" {
			return apperrors.New(apperrors.CodeConfigInvalid, "database name is required")
		}
		if c.Port < 0 || c.Port > 65535 {
			return apperrors.New(apperrors.CodeConfigInvalid, fmt.Sprintf("database port %d is out of range", c.Port))
		}
		return nil
	default:
		return apperrors.New(apperrors.CodeUnsupportedProvider, fmt.Sprintf("unsupported provider %q", c.Provider))
	}
}

// Open returns a verified handle to the configured backend.
func (c Connection) Open(ctx context.Context) (*sql.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	switch c.Provider {
	case ProviderSQLite:
		sqlDB, err = sql.Open("sqlite", SQLiteDSN(c.File))
	case ProviderMySQL:
		var connector driver.Connector
		connector, err = mysql.NewConnector(mysqlConfig(c.Candidate(), 0))
		if err == nil {
			sqlDB = sql.OpenDB(connector)
		}
	case ProviderPostgreSQL:
		var cfg *pgx.ConnConfig
		cfg, err = pgx.ParseConfig(PostgresURL(c.Candidate(), 0))
		if err == nil {
			sqlDB = stdlib.OpenDB(*cfg)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", c.Provider, err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s db: %w", c.Provider, err)
	}
	return sqlDB, nil
}

// SQLiteDSN returns the DSN used for SQLite files.
func SQLiteDSN(path string) string {
	return filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// MySQLDSN formats candidate as a go-sql-driver DSN. A zero timeout uses
// timeouts.ProbeConnect.
func MySQLDSN(candidate Candidate, timeout time.Duration) string {
	return mysqlConfig(candidate, timeout).FormatDSN()
}

// PostgresURL formats candidate as a postgres connection URL. A zero
// timeout uses timeouts.ProbeConnect.
func PostgresURL(candidate Candidate, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = timeouts.ProbeConnect
	}
	seconds := int(timeout.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	query := url.Values{}
	query.Set("sslmode", "prefer")
	query.Set("connect_timeout", strconv.Itoa(seconds))
	u := url.URL{
		Scheme:   "postgres",
		Host:     hostPort(candidate, ProviderPostgreSQL),
		Path:     "/" + candidate.Database,
		RawQuery: query.Encode(),
	}
	if candidate.Username != "" {
		u.User = url.UserPassword(candidate.Username, candidate.Password)
	}
	return u.String()
}

func mysqlConfig(candidate Candidate, timeout time.Duration) *mysql.Config {
	if timeout <= 0 {
		timeout = timeouts.ProbeConnect
	}
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = hostPort(candidate, ProviderMySQL)
	cfg.User = candidate.Username
	cfg.Passwd = candidate.Password
	cfg.DBName = candidate.Database
	cfg.ParseTime = true
	cfg.Timeout = timeout
	return cfg
}

func hostPort(candidate Candidate, provider Provider) string {
	port := candidate.Port
	if port <= 0 {
		port = provider.DefaultPort()
	}
	return net.JoinHostPort(strings.TrimSpace(candidate.Host), strconv.Itoa(port))
}

package database

import (
	"context"
	"database/sql"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
)

// Probe reports whether one backend accepts a candidate connection.
//
// Implementations must honor ctx and report failure instead of returning
// errors: a refused connection is an ordinary "no match".
type Probe interface {
	Provider() Provider
	Probe(ctx context.Context, candidate Candidate) bool
}

// DefaultProbes returns one probe per network backend.
func DefaultProbes() []Probe {
	return []Probe{MySQLProbe{}, PostgresProbe{}}
}

// MySQLProbe connects with go-sql-driver/mysql and pings the server.
type MySQLProbe struct{}

// Provider returns ProviderMySQL.
func (MySQLProbe) Provider() Provider { return ProviderMySQL }

// Probe opens a single connection and pings it.
func (MySQLProbe) Probe(ctx context.Context, candidate Candidate) bool {
	connector, err := mysql.NewConnector(mysqlConfig(candidate, deadlineTimeout(ctx)))
	if err != nil {
		return false
	}
	sqlDB := sql.OpenDB(connector)
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(1)
	return sqlDB.PingContext(ctx) == nil
}

// PostgresProbe connects with pgx and pings the server.
type PostgresProbe struct{}

// Provider returns ProviderPostgreSQL.
func (PostgresProbe) Provider() Provider { return ProviderPostgreSQL }

// Probe opens a native pgx connection and pings it.
func (PostgresProbe) Probe(ctx context.Context, candidate Candidate) bool {
	cfg, err := pgx.ParseConfig(PostgresURL(candidate, deadlineTimeout(ctx)))
	if err != nil {
		return false
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return false
	}
	defer conn.Close(context.WithoutCancel(ctx))
	return conn.Ping(ctx) == nil
}

package database

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
)

// Provider identifies a supported database backend.
type Provider string

const (
	ProviderSQLite     Provider = "sqlite"
	ProviderMySQL      Provider = "mysql"
	ProviderPostgreSQL Provider = "postgresql"
)

// Providers lists every supported backend.
func Providers() []Provider {
	return []Provider{ProviderSQLite, ProviderMySQL, ProviderPostgreSQL}
}

// ParseProvider maps a configured value to a Provider. Common aliases are
// accepted for PostgreSQL.
func ParseProvider(value string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sqlite", "sqlite3":
		return ProviderSQLite, nil
	case "mysql", "mariadb":
		return ProviderMySQL, nil
	case "postgresql", "postgres", "pgsql":
		return ProviderPostgreSQL, nil
	case "":
		return "", apperrors.New(apperrors.CodeProviderNotConfigured, "database provider is not configured")
	default:
		return "", apperrors.WithMetadata(
			apperrors.CodeUnsupportedProvider,
			fmt.Sprintf("unsupported provider %q", value),
			map[string]string{"provider": value},
		)
	}
}

// String returns the provider identifier.
func (p Provider) String() string { return string(p) }

// IsNetwork reports whether the backend is reached over the network.
func (p Provider) IsNetwork() bool {
	return p == ProviderMySQL || p == ProviderPostgreSQL
}

// DefaultPort returns the conventional port of a network backend, or 0.
func (p Provider) DefaultPort() int {
	switch p {
	case ProviderMySQL:
		return 3306
	case ProviderPostgreSQL:
		return 5432
	default:
		return 0
	}
}

package setup

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/platform/i18n"
	"github.com/louisbranch/homebook/internal/services/instance/database"
	"github.com/louisbranch/homebook/internal/services/instance/envconfig"
	"github.com/louisbranch/homebook/internal/services/instance/user"
)

// ErrAdminCredentialsMissing indicates setup without an administrator.
var ErrAdminCredentialsMissing = apperrors.New(apperrors.CodeAdminCredentialsMissing, "administrator credentials missing")

// Configuration is the validated input of a setup run.
type Configuration struct {
	Connection      database.Connection
	AdminUsername   string
	AdminPassword   string
	InstanceName    string
	DefaultLanguage string
	LicenseAccepted bool
}

// Validate reports the first problem with c as a CONFIG_INVALID error.
func (c Configuration) Validate() error {
	invalid := func(cause error) error {
		return apperrors.Wrap(apperrors.CodeConfigInvalid, "invalid setup configuration", cause)
	}
	if !c.LicenseAccepted {
		return invalid(fmt.Errorf("license must be accepted"))
	}
	if c.AdminUsername == "" || c.AdminPassword == "" {
		return invalid(ErrAdminCredentialsMissing)
	}
	if err := user.ValidateUsername(user.NormalizeUsername(c.AdminUsername)); err != nil {
		return invalid(err)
	}
	if err := user.ValidatePassword(c.AdminPassword); err != nil {
		return invalid(err)
	}
	if err := validateInstanceName(c.InstanceName); err != nil {
		return invalid(err)
	}
	if _, ok := i18n.ParseTag(c.DefaultLanguage); !ok {
		return invalid(fmt.Errorf("unsupported language %q", c.DefaultLanguage))
	}
	if c.Connection.Provider != "" {
		if err := c.Connection.Validate(); err != nil {
			return invalid(err)
		}
	}
	return nil
}

func validateInstanceName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("instance name is required")
	}
	if len(name) > 128 {
		return fmt.Errorf("instance name must be at most 128 characters")
	}
	return nil
}

// Detector finds the backend accepting a candidate connection.
type Detector interface {
	Resolve(ctx context.Context, candidate database.Candidate) (database.Provider, bool)
}

// FromEnvironment builds an unattended setup configuration. When the
// environment names no backend but carries a host, detector picks one; with
// neither, SQLite at defaultSQLiteFile is used.
func FromEnvironment(ctx context.Context, env envconfig.Configuration, detector Detector, defaultSQLiteFile string) (Configuration, error) {
	conn := env.Connection()
	switch {
	case conn.Provider != "":
	case conn.Host != "":
		if detector == nil {
			return Configuration{}, apperrors.New(apperrors.CodeProviderNotConfigured, "database provider is not configured")
		}
		provider, ok := detector.Resolve(ctx, conn.Candidate())
		if !ok {
			return Configuration{}, apperrors.WithMetadata(
				apperrors.CodeProviderNotConfigured,
				"no database backend accepted the configured connection",
				map[string]string{"host": conn.Host},
			)
		}
		conn.Provider = provider
	default:
		conn.Provider = database.ProviderSQLite
	}
	if conn.Provider == database.ProviderSQLite && conn.File == "" {
		conn.File = defaultSQLiteFile
	}

	cfg := Configuration{
		Connection:      conn,
		AdminUsername:   env.AdminUsername,
		AdminPassword:   env.AdminPassword,
		InstanceName:    env.InstanceName,
		DefaultLanguage: env.DefaultLanguage,
		LicenseAccepted: env.LicenseAccepted,
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

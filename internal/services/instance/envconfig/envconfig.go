// Package envconfig reads the instance environment once and validates it.
package envconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/louisbranch/homebook/internal/platform/config"
	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/platform/i18n"
	"github.com/louisbranch/homebook/internal/services/instance/database"
	"github.com/louisbranch/homebook/internal/services/instance/user"
)

// Name is one recognized environment variable.
type Name string

const (
	DatabaseType     Name = "HOMEBOOK_DATABASE_TYPE"
	DatabaseHost     Name = "HOMEBOOK_DATABASE_HOST"
	DatabasePort     Name = "HOMEBOOK_DATABASE_PORT"
	DatabaseName     Name = "HOMEBOOK_DATABASE_NAME"
	DatabaseUser     Name = "HOMEBOOK_DATABASE_USER"
	DatabasePassword Name = "HOMEBOOK_DATABASE_PASSWORD"
	DatabaseFile     Name = "HOMEBOOK_DATABASE_FILE"
	AdminUsername    Name = "HOMEBOOK_ADMIN_USERNAME"
	AdminPassword    Name = "HOMEBOOK_ADMIN_PASSWORD"
	LicenseAccepted  Name = "HOMEBOOK_LICENSE_ACCEPTED"
	InstanceName     Name = "HOMEBOOK_INSTANCE_NAME"
	DefaultLanguage  Name = "HOMEBOOK_DEFAULT_LANGUAGE"
)

var names = []Name{
	DatabaseType,
	DatabaseHost,
	DatabasePort,
	DatabaseName,
	DatabaseUser,
	DatabasePassword,
	DatabaseFile,
	AdminUsername,
	AdminPassword,
	LicenseAccepted,
	InstanceName,
	DefaultLanguage,
}

// Names returns the fixed set of recognized variables.
func Names() []Name {
	out := make([]Name, len(names))
	copy(out, names)
	return out
}

func known(name Name) bool {
	for _, candidate := range names {
		if candidate == name {
			return true
		}
	}
	return false
}

// Configuration is the validated environment snapshot.
type Configuration struct {
	DatabaseType     string `env:"HOMEBOOK_DATABASE_TYPE"`
	DatabaseHost     string `env:"HOMEBOOK_DATABASE_HOST"`
	DatabasePort     int    `env:"HOMEBOOK_DATABASE_PORT"`
	DatabaseName     string `env:"HOMEBOOK_DATABASE_NAME"`
	DatabaseUser     string `env:"HOMEBOOK_DATABASE_USER"`
	DatabasePassword string `env:"HOMEBOOK_DATABASE_PASSWORD"`
	DatabaseFile     string `env:"HOMEBOOK_DATABASE_FILE"`
	AdminUsername    string `env:"HOMEBOOK_ADMIN_USERNAME"`
	AdminPassword    string `env:"HOMEBOOK_ADMIN_PASSWORD"`
	LicenseAccepted  bool   `env:"HOMEBOOK_LICENSE_ACCEPTED"`
	InstanceName     string `env:"HOMEBOOK_INSTANCE_NAME" envDefault:"HomeBook"`
	DefaultLanguage  string `env:"HOMEBOOK_DEFAULT_LANGUAGE" envDefault:"en"`
}

// Provider returns the configured backend, or "" when detection is expected.
func (c Configuration) Provider() database.Provider {
	provider, err := database.ParseProvider(c.DatabaseType)
	if err != nil {
		return ""
	}
	return provider
}

// Connection returns the database parameters carried by the environment.
func (c Configuration) Connection() database.Connection {
	return database.Connection{
		Provider: c.Provider(),
		Host:     c.DatabaseHost,
		Port:     c.DatabasePort,
		Name:     c.DatabaseName,
		User:     c.DatabaseUser,
		Password: c.DatabasePassword,
		File:     c.DatabaseFile,
	}
}

// HasAdminCredentials reports whether both administrator values are set.
func (c Configuration) HasAdminCredentials() bool {
	return c.AdminUsername != "" && c.AdminPassword != ""
}

// Unattended reports whether the environment carries enough to run setup
// without an operator.
func (c Configuration) Unattended() bool {
	if !c.LicenseAccepted || !c.HasAdminCredentials() {
		return false
	}
	return c.Provider() != "" || c.DatabaseHost != ""
}

// Validate checks field-level policies and returns a CONFIG_INVALID error
// listing every violation.
func (c Configuration) Validate() error {
	var problems []string
	if c.DatabasePort != 0 && (c.DatabasePort < 1 || c.DatabasePort > 65535) {
		problems = append(problems, fmt.Sprintf("%s must be between 1 and 65535", DatabasePort))
	}
	if strings.TrimSpace(c.DatabaseType) != "" {
		if _, err := database.ParseProvider(c.DatabaseType); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", DatabaseType, err))
		}
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		problems = append(problems, fmt.Sprintf("%s and %s must be set together", AdminUsername, AdminPassword))
	}
	if c.AdminUsername != "" {
		if err := user.ValidateUsername(user.NormalizeUsername(c.AdminUsername)); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", AdminUsername, err))
		}
	}
	if c.AdminPassword != "" {
		if err := user.ValidatePassword(c.AdminPassword); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", AdminPassword, err))
		}
	}
	if strings.TrimSpace(c.InstanceName) == "" {
		problems = append(problems, fmt.Sprintf("%s must not be empty", InstanceName))
	}
	if _, ok := i18n.ParseTag(c.DefaultLanguage); !ok {
		problems = append(problems, fmt.Sprintf("%s: unsupported language %q", DefaultLanguage, c.DefaultLanguage))
	}
	if len(problems) == 0 {
		return nil
	}
	return apperrors.WithMetadata(
		apperrors.CodeConfigInvalid,
		"invalid environment configuration: "+strings.Join(problems, "; "),
		map[string]string{"problems": strconv.Itoa(len(problems))},
	)
}

func (c Configuration) value(name Name) string {
	switch name {
	case DatabaseType:
		return c.DatabaseType
	case DatabaseHost:
		return c.DatabaseHost
	case DatabasePort:
		if c.DatabasePort == 0 {
			return ""
		}
		return strconv.Itoa(c.DatabasePort)
	case DatabaseName:
		return c.DatabaseName
	case DatabaseUser:
		return c.DatabaseUser
	case DatabasePassword:
		return c.DatabasePassword
	case DatabaseFile:
		return c.DatabaseFile
	case AdminUsername:
		return c.AdminUsername
	case AdminPassword:
		return c.AdminPassword
	case LicenseAccepted:
		return strconv.FormatBool(c.LicenseAccepted)
	case InstanceName:
		return c.InstanceName
	case DefaultLanguage:
		return c.DefaultLanguage
	default:
		return ""
	}
}

// Loader reads the environment on first use and caches the result for the
// life of the process. Later changes to the environment are not observed.
type Loader struct {
	lookup     func(string) (string, bool)
	dotEnvFile []string

	once sync.Once
	cfg  Configuration
	err  error
}

// Option configures a Loader.
type Option func(*Loader)

// WithLookup replaces os.LookupEnv.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(l *Loader) {
		if lookup != nil {
			l.lookup = lookup
		}
	}
}

// WithValues reads from a fixed map instead of the process environment.
func WithValues(values map[string]string) Option {
	return WithLookup(func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	})
}

// WithDotEnv reads fallback values from .env style files. Process values win.
func WithDotEnv(files ...string) Option {
	return func(l *Loader) {
		l.dotEnvFile = append(l.dotEnvFile, files...)
	}
}

// NewLoader returns a Loader over the process environment.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DotEnvFile is the fallback file read from an instance root.
const DotEnvFile = ".env"

// ForRoot reads the environment of the instance rooted at root, falling
// back to root/.env for unset values.
func ForRoot(root string, opts ...Option) (Configuration, error) {
	opts = append([]Option{WithDotEnv(filepath.Join(root, DotEnvFile))}, opts...)
	cfg, err := NewLoader(opts...).Configuration()
	if err != nil {
		return Configuration{}, fmt.Errorf("load environment: %w", err)
	}
	return cfg, nil
}

// Configuration returns the validated snapshot. A validation failure is
// returned on every call.
func (l *Loader) Configuration() (Configuration, error) {
	l.once.Do(l.load)
	return l.cfg, l.err
}

// GetValue returns the effective value of name, including defaults. Unset
// values are returned as "".
func (l *Loader) GetValue(name Name) (string, error) {
	if !known(name) {
		return "", fmt.Errorf("unknown environment variable %q", name)
	}
	cfg, err := l.Configuration()
	if err != nil {
		return "", err
	}
	return cfg.value(name), nil
}

func (l *Loader) load() {
	fromFiles, err := config.ReadDotEnv(l.dotEnvFile...)
	if err != nil {
		l.err = apperrors.Wrap(apperrors.CodeConfigInvalid, "read environment files", err)
		return
	}

	raw := make(map[string]string, len(names))
	for _, name := range names {
		if value, ok := l.lookup(string(name)); ok {
			raw[string(name)] = value
			continue
		}
		if value, ok := fromFiles[string(name)]; ok {
			raw[string(name)] = value
		}
	}

	var cfg Configuration
	if err := config.ParseEnvFrom(&cfg, raw); err != nil {
		l.err = apperrors.Wrap(apperrors.CodeConfigInvalid, "invalid environment configuration", err)
		return
	}
	cfg.DatabaseType = strings.TrimSpace(cfg.DatabaseType)
	cfg.InstanceName = strings.TrimSpace(cfg.InstanceName)
	if err := cfg.Validate(); err != nil {
		l.err = err
		return
	}
	if tag, ok := i18n.ParseTag(cfg.DefaultLanguage); ok {
		cfg.DefaultLanguage = tag.String()
	}
	l.cfg = cfg
}

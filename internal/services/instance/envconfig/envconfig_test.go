package envconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/services/instance/database"
)

func TestConfigurationDefaults(t *testing.T) {
	cfg, err := NewLoader(WithValues(map[string]string{})).Configuration()
	if err != nil {
		t.Fatalf("configuration: %v", err)
	}
	if cfg.InstanceName != "HomeBook" {
		t.Fatalf("expected default instance name, got %q", cfg.InstanceName)
	}
	if cfg.DefaultLanguage != "en" {
		t.Fatalf("expected default language, got %q", cfg.DefaultLanguage)
	}
	if cfg.Unattended() {
		t.Fatal("expected empty environment not to be unattended")
	}
}

func TestConfigurationParsesEveryValue(t *testing.T) {
	loader := NewLoader(WithValues(map[string]string{
		"HOMEBOOK_DATABASE_TYPE":     "postgres",
		"HOMEBOOK_DATABASE_HOST":     "db",
		"HOMEBOOK_DATABASE_PORT":     "5433",
		"HOMEBOOK_DATABASE_NAME":     "homebook",
		"HOMEBOOK_DATABASE_USER":     "hb",
		"HOMEBOOK_DATABASE_PASSWORD": "secret",
		"HOMEBOOK_ADMIN_USERNAME":    "Admin",
		"HOMEBOOK_ADMIN_PASSWORD":    "administrator",
		"HOMEBOOK_LICENSE_ACCEPTED":  "true",
		"HOMEBOOK_INSTANCE_NAME":     "  Our Home ",
		"HOMEBOOK_DEFAULT_LANGUAGE":  "de-DE",
	}))
	cfg, err := loader.Configuration()
	if err != nil {
		t.Fatalf("configuration: %v", err)
	}
	conn := cfg.Connection()
	want := database.Connection{
		Provider: database.ProviderPostgreSQL,
		Host:     "db",
		Port:     5433,
		Name:     "homebook",
		User:     "hb",
		Password: "secret",
	}
	if conn != want {
		t.Fatalf("expected %+v, got %+v", want, conn)
	}
	if cfg.InstanceName != "Our Home" {
		t.Fatalf("expected trimmed instance name, got %q", cfg.InstanceName)
	}
	if cfg.DefaultLanguage != "de" {
		t.Fatalf("expected normalized language, got %q", cfg.DefaultLanguage)
	}
	if !cfg.Unattended() {
		t.Fatal("expected unattended configuration")
	}
}

func TestConfigurationValidation(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]string
		problem string
	}{
		{name: "port range", values: map[string]string{"HOMEBOOK_DATABASE_PORT": "70000"}, problem: "HOMEBOOK_DATABASE_PORT"},
		{name: "port not a number", values: map[string]string{"HOMEBOOK_DATABASE_PORT": "abc"}},
		{name: "unknown type", values: map[string]string{"HOMEBOOK_DATABASE_TYPE": "oracle"}, problem: "HOMEBOOK_DATABASE_TYPE"},
		{name: "license flag", values: map[string]string{"HOMEBOOK_LICENSE_ACCEPTED": "maybe"}},
		{name: "password without username", values: map[string]string{"HOMEBOOK_ADMIN_PASSWORD": "administrator"}, problem: "must be set together"},
		{name: "username without password", values: map[string]string{"HOMEBOOK_ADMIN_USERNAME": "admin"}, problem: "must be set together"},
		{name: "bad username", values: map[string]string{"HOMEBOOK_ADMIN_USERNAME": "a!", "HOMEBOOK_ADMIN_PASSWORD": "administrator"}, problem: "HOMEBOOK_ADMIN_USERNAME"},
		{name: "short password", values: map[string]string{"HOMEBOOK_ADMIN_USERNAME": "admin", "HOMEBOOK_ADMIN_PASSWORD": "short"}, problem: "HOMEBOOK_ADMIN_PASSWORD"},
		{name: "language", values: map[string]string{"HOMEBOOK_DEFAULT_LANGUAGE": "ja"}, problem: "HOMEBOOK_DEFAULT_LANGUAGE"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLoader(WithValues(tc.values)).Configuration()
			if !apperrors.HasCode(err, apperrors.CodeConfigInvalid) {
				t.Fatalf("expected config error, got %v", err)
			}
			if tc.problem != "" && !strings.Contains(err.Error(), tc.problem) {
				t.Fatalf("expected %q in %q", tc.problem, err.Error())
			}
		})
	}
}

func TestLoaderCachesFirstRead(t *testing.T) {
	values := map[string]string{"HOMEBOOK_INSTANCE_NAME": "First"}
	reads := 0
	loader := NewLoader(WithLookup(func(key string) (string, bool) {
		reads++
		value, ok := values[key]
		return value, ok
	}))

	first, err := loader.GetValue(InstanceName)
	if err != nil {
		t.Fatalf("get value: %v", err)
	}
	values["HOMEBOOK_INSTANCE_NAME"] = "Second"
	second, err := loader.GetValue(InstanceName)
	if err != nil {
		t.Fatalf("get value: %v", err)
	}
	if first != "First" || second != "First" {
		t.Fatalf("expected cached value, got %q then %q", first, second)
	}
	if reads != len(Names()) {
		t.Fatalf("expected one read per variable, got %d", reads)
	}
}

func TestLoaderReturnsValidationErrorOnEveryCall(t *testing.T) {
	loader := NewLoader(WithValues(map[string]string{"HOMEBOOK_DATABASE_PORT": "0x"}))
	for i := 0; i < 2; i++ {
		if _, err := loader.GetValue(DatabasePort); !apperrors.HasCode(err, apperrors.CodeConfigInvalid) {
			t.Fatalf("call %d: expected config error, got %v", i+1, err)
		}
	}
}

func TestGetValue(t *testing.T) {
	loader := NewLoader(WithValues(map[string]string{
		"HOMEBOOK_DATABASE_PORT":    "3306",
		"HOMEBOOK_LICENSE_ACCEPTED": "1",
	}))
	tests := map[Name]string{
		DatabasePort:    "3306",
		DatabaseHost:    "",
		LicenseAccepted: "true",
		InstanceName:    "HomeBook",
	}
	for name, want := range tests {
		got, err := loader.GetValue(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != want {
			t.Fatalf("%s: expected %q, got %q", name, want, got)
		}
	}
	if _, err := loader.GetValue("HOMEBOOK_NOPE"); err == nil {
		t.Fatal("expected unknown name error")
	}
}

func TestDotEnvFallback(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".env")
	content := "HOMEBOOK_INSTANCE_NAME=From File\nHOMEBOOK_DATABASE_HOST=file-host\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	loader := NewLoader(
		WithValues(map[string]string{"HOMEBOOK_DATABASE_HOST": "process-host"}),
		WithDotEnv(file, filepath.Join(t.TempDir(), "missing.env")),
	)
	cfg, err := loader.Configuration()
	if err != nil {
		t.Fatalf("configuration: %v", err)
	}
	if cfg.InstanceName != "From File" {
		t.Fatalf("expected file value, got %q", cfg.InstanceName)
	}
	if cfg.DatabaseHost != "process-host" {
		t.Fatalf("expected process value to win, got %q", cfg.DatabaseHost)
	}
}

func TestForRootReadsDotEnv(t *testing.T) {
	root := t.TempDir()
	content := "HOMEBOOK_INSTANCE_NAME=Cabin\nHOMEBOOK_DEFAULT_LANGUAGE=fr\n"
	if err := os.WriteFile(filepath.Join(root, DotEnvFile), []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	env, err := ForRoot(root, WithValues(map[string]string{"HOMEBOOK_INSTANCE_NAME": "Lodge"}))
	if err != nil {
		t.Fatalf("for root: %v", err)
	}
	if env.InstanceName != "Lodge" {
		t.Fatalf("expected process value to win, got %q", env.InstanceName)
	}
	if env.DefaultLanguage != "fr" {
		t.Fatalf("expected .env language, got %q", env.DefaultLanguage)
	}
}

func TestForRootRejectsInvalidValues(t *testing.T) {
	_, err := ForRoot(t.TempDir(), WithValues(map[string]string{"HOMEBOOK_DATABASE_PORT": "70000"}))
	if !apperrors.HasCode(err, apperrors.CodeConfigInvalid) {
		t.Fatalf("expected CONFIG_INVALID, got %v", err)
	}
}

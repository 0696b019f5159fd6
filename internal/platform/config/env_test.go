package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type envTestConfig struct {
	Port int `env:"HOMEBOOK_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("HOMEBOOK_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvFromIgnoresProcessEnvironment(t *testing.T) {
	t.Setenv("HOMEBOOK_TEST_PORT", "999")

	var cfg envTestConfig
	if err := ParseEnvFrom(&cfg, map[string]string{"HOMEBOOK_TEST_PORT": "456"}); err != nil {
		t.Fatalf("parse env from: %v", err)
	}
	if cfg.Port != 456 {
		t.Fatalf("expected explicit value 456, got %d", cfg.Port)
	}
}

func TestReadDotEnvSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, ".env")
	second := filepath.Join(dir, ".env.local")
	if err := os.WriteFile(first, []byte("HOMEBOOK_A=one\nHOMEBOOK_B=two\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	if err := os.WriteFile(second, []byte("HOMEBOOK_B=override\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	values, err := ReadDotEnv(filepath.Join(dir, "missing.env"), first, second)
	if err != nil {
		t.Fatalf("read dotenv: %v", err)
	}
	if values["HOMEBOOK_A"] != "one" || values["HOMEBOOK_B"] != "override" {
		t.Fatalf("unexpected values %v", values)
	}
}

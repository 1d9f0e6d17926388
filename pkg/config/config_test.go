package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExpand(t *testing.T) {
	t.Setenv("VI_SET", "value")
	t.Setenv("VI_EMPTY", "")

	cases := map[string]string{
		"${VI_SET}":              "value",
		"$VI_SET":                "value",
		"${VI_SET:-fallback}":    "value",
		"${VI_EMPTY:-fallback}":  "fallback",
		"${VI_MISSING:-a b}":     "a b",
		"${VI_MISSING}":          "",
		"${VI_MISSING:-}":        "",
		"prefix-${VI_SET}-after": "prefix-value-after",
	}
	for in, want := range cases {
		if got := Expand(in); got != want {
			t.Errorf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("VI_TOKEN", "secret")
	path := writeFile(t, "name: ${VI_NAME:-voice}\nport: 8080\ntoken: ${VI_TOKEN}\n")

	var cfg sample
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "voice" || cfg.Port != 8080 || cfg.Token != "secret" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeFile(t, "port: 1\nprot: 2\n")
	var cfg sample
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "prot") {
		t.Errorf("expected unknown key error, got %v", err)
	}
}

func TestLoad_ValidationRuns(t *testing.T) {
	path := writeFile(t, "name: x\n")
	var cfg sample
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, "")
	cfg := sample{Port: 9000}
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Port)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	fallback := writeFile(t, "port: 7\n")
	var cfg sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), fallback, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7 {
		t.Errorf("port = %d, want 7", cfg.Port)
	}

	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &cfg); err == nil {
		t.Error("missing file without fallback should fail")
	}
}

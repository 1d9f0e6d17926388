package internal

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
}

func TestRequireServices(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.RequireServices()
	if err == nil {
		t.Fatal("missing credentials should fail")
	}
	for _, want := range []string{"interpreter: api_key", "mail: api_key", "mail: from"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}

	cfg.Interpreter.APIKey = "sk-ant"
	cfg.Mail.APIKey = "re_123"
	cfg.Mail.From = "Bright Co <billing@bright.test>"
	if err := cfg.RequireServices(); err != nil {
		t.Errorf("complete credentials should pass: %v", err)
	}
}

func TestBusinessConfig_Timezone(t *testing.T) {
	cfg := BusinessConfig{Name: "Bright Co", Timezone: "America/Chicago"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid timezone should pass: %v", err)
	}
	loc, _ := cfg.Location()
	if loc.String() != "America/Chicago" {
		t.Errorf("location = %s", loc)
	}

	cfg.Timezone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown timezone should fail")
	}

	cfg.Timezone = ""
	if loc, err := cfg.Location(); err != nil || loc != time.UTC {
		t.Errorf("empty timezone should be UTC, got %v, %v", loc, err)
	}
}

func TestBusinessConfig_NameRequired(t *testing.T) {
	cfg := BusinessConfig{}
	if err := cfg.Validate(); err == nil {
		t.Error("empty business name should fail")
	}
}

func TestInvoiceConfig_TaxRateBounds(t *testing.T) {
	for _, rate := range []float64{-0.1, 1.5} {
		cfg := InvoiceConfig{DefaultTaxRate: rate, NumberingAttempts: 3}
		if err := cfg.Validate(); err == nil {
			t.Errorf("tax rate %v should fail", rate)
		}
	}
	cfg := InvoiceConfig{DefaultTaxRate: 0.08, NumberingAttempts: 3}
	if err := cfg.Validate(); err != nil {
		t.Errorf("tax rate 0.08 should pass: %v", err)
	}
}

func TestInvoiceConfig_AttemptsRequired(t *testing.T) {
	cfg := InvoiceConfig{}
	if err := cfg.Validate(); err == nil {
		t.Error("zero numbering attempts should fail")
	}
}

func TestDirectoryConfig_WatchNeedsSeedFile(t *testing.T) {
	cfg := DirectoryConfig{Watch: true}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("watch without seed file should fail")
	}
	if !strings.Contains(err.Error(), "required when watch is enabled") {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.SeedFile = filepath.Join("config", "clients.yaml")
	if err := cfg.Validate(); err != nil {
		t.Errorf("watch with seed file should pass: %v", err)
	}
}

func TestInterpreterConfig_BaseURL(t *testing.T) {
	cfg := InterpreterConfig{BaseURL: "not a url"}
	if err := cfg.Validate(); err == nil {
		t.Error("malformed base url should fail")
	}
}

func TestFullConfig_SectionNamedInError(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.HTTP.Port = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch http error")
	}
	if !strings.HasPrefix(err.Error(), "app: ") {
		t.Errorf("error should name the section: %v", err)
	}
}

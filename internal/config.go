package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Business    BusinessConfig    `yaml:"business"`
	Invoice     InvoiceConfig     `yaml:"invoice"`
	Interpreter InterpreterConfig `yaml:"interpreter"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Mail        MailConfig        `yaml:"mail"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Directory   DirectoryConfig   `yaml:"directory"`
	Session     SessionConfig     `yaml:"session"`
}

type validator interface {
	Validate() error
}

// Validate validates the configuration. Credentials of outbound services are
// only checked by RequireServices, so offline commands run without them.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validator
	}{
		{"app", &c.App},
		{"sqlite", &c.SQLite},
		{"business", &c.Business},
		{"invoice", &c.Invoice},
		{"interpreter", &c.Interpreter},
		{"transcriber", &c.Transcriber},
		{"mail", &c.Mail},
		{"directory", &c.Directory},
		{"session", &c.Session},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// RequireServices checks the credentials needed to interpret and send invoices.
func (c *Config) RequireServices() error {
	var errs []error
	if c.Interpreter.APIKey == "" {
		errs = append(errs, errors.New("interpreter: api_key is required"))
	}
	if c.Mail.APIKey == "" {
		errs = append(errs, errors.New("mail: api_key is required"))
	}
	if c.Mail.From == "" {
		errs = append(errs, errors.New("mail: from is required"))
	}
	return errors.Join(errs...)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// MaxAudioBytes caps uploaded recordings.
	MaxAudioBytes int64 `yaml:"max_audio_bytes"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.MaxAudioBytes, validation.Min(int64(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// BusinessConfig describes the business sending invoices.
type BusinessConfig struct {
	Name           string `yaml:"name"`
	CurrencySymbol string `yaml:"currency_symbol"`
	// Timezone is an IANA zone name. It decides the date in invoice numbers.
	Timezone string `yaml:"timezone"`
}

// Validate validates the business configuration.
func (c *BusinessConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Timezone, validation.By(func(any) error {
			_, err := c.Location()
			return err
		})),
	)
}

// Location resolves Timezone. An empty zone is UTC.
func (c *BusinessConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", c.Timezone)
	}
	return loc, nil
}

// InvoiceConfig holds invoicing defaults.
type InvoiceConfig struct {
	// DefaultTaxRate seeds new drafts, as a fraction (0.08 is 8%).
	DefaultTaxRate float64 `yaml:"default_tax_rate"`
	// NumberingAttempts bounds retries when two commits race for a number.
	NumberingAttempts int `yaml:"numbering_attempts"`
}

// Validate validates the invoice configuration.
func (c *InvoiceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultTaxRate, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.NumberingAttempts, validation.Required, validation.Min(1), validation.Max(100)),
	)
}

// InterpreterConfig configures the Anthropic Messages API client.
type InterpreterConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxTokens         int           `yaml:"max_tokens"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// Validate validates the interpreter configuration.
func (c *InterpreterConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxTokens, validation.Min(0)),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
	)
}

// TranscriberConfig configures speech-to-text. An empty APIKey disables
// the transcription endpoint.
type TranscriberConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxBytes          int64         `yaml:"max_bytes"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// Enabled reports whether transcription is configured.
func (c *TranscriberConfig) Enabled() bool {
	return c.APIKey != ""
}

// Validate validates the transcriber configuration.
func (c *TranscriberConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxBytes, validation.Min(int64(0))),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
	)
}

// MailConfig configures outbound email through Resend.
type MailConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	From              string        `yaml:"from"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// Validate validates the mail configuration.
func (c *MailConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
	)
}

// ArchiveConfig holds where delivered PDFs are kept. An empty path disables
// archiving.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// DirectoryConfig points at an optional YAML file of clients to import.
type DirectoryConfig struct {
	SeedFile string `yaml:"seed_file"`
	Watch    bool   `yaml:"watch"`
}

// Validate validates the directory configuration.
func (c *DirectoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SeedFile, validation.When(c.Watch, validation.Required.Error("is required when watch is enabled"))),
	)
}

// SessionConfig controls in-memory conversation state.
type SessionConfig struct {
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.IdleTTL, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:          8080,
				MaxAudioBytes: 25 << 20,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./voiceinvoice.db",
		},
		Business: BusinessConfig{
			Name:           "My Business",
			CurrencySymbol: "$",
			Timezone:       "UTC",
		},
		Invoice: InvoiceConfig{
			NumberingAttempts: 5,
		},
		Interpreter: InterpreterConfig{
			Timeout:   60 * time.Second,
			MaxTokens: 1024,
		},
		Transcriber: TranscriberConfig{
			Timeout:  60 * time.Second,
			MaxBytes: 25 << 20,
		},
		Mail: MailConfig{
			Timeout: 30 * time.Second,
		},
		Archive: ArchiveConfig{
			Path: "./invoices",
		},
		Session: SessionConfig{
			IdleTTL: 12 * time.Hour,
		},
	}
}

// Package directory imports the client directory from a YAML seed file and
// keeps it in sync when the file changes.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/starford/voiceinvoice/internal/models"
)

// Store is the subset of the repository used for imports.
type Store interface {
	ListClients(ctx context.Context) ([]models.Client, error)
	CreateClient(ctx context.Context, c models.Client) (models.Client, error)
}

// seedFile is the on-disk layout:
//
//	clients:
//	  - name: Jane Doe
//	    email: jane@example.com
//	    rate_type: day
//	    default_rate: 400
type seedFile struct {
	Clients []models.Client `yaml:"clients"`
}

// Result summarizes one import pass.
type Result struct {
	Created []models.Client
	Skipped int
	Invalid int
}

// Importer adds seed clients that are not yet in the store.
type Importer struct {
	store  Store
	logger *slog.Logger
}

// NewImporter creates an Importer.
func NewImporter(store Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger}
}

// ImportFile reads and imports path.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("directory: read seed: %w", err)
	}
	return im.Import(ctx, data)
}

// Import adds every valid entry of data whose email (or name, for entries
// without email) is not already known. Existing clients are never modified.
func (im *Importer) Import(ctx context.Context, data []byte) (Result, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Result{}, fmt.Errorf("directory: parse seed: %w", err)
	}

	existing, err := im.store.ListClients(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("directory: list clients: %w", err)
	}
	known := lo.SliceToMap(existing, func(c models.Client) (string, struct{}) {
		return identity(c), struct{}{}
	})

	var res Result
	for _, c := range seed.Clients {
		c.Name = strings.TrimSpace(c.Name)
		c.Email = strings.TrimSpace(c.Email)
		if err := ValidateClient(c); err != nil {
			im.logger.Warn("directory: invalid seed entry",
				slog.String("name", c.Name),
				slog.String("error", err.Error()))
			res.Invalid++
			continue
		}
		key := identity(c)
		if _, ok := known[key]; ok {
			res.Skipped++
			continue
		}
		created, err := im.store.CreateClient(ctx, c)
		if err != nil {
			return res, fmt.Errorf("directory: create %s: %w", c.Name, err)
		}
		known[key] = struct{}{}
		res.Created = append(res.Created, created)
	}
	im.logger.Info("directory: import finished",
		slog.Int("created", len(res.Created)),
		slog.Int("skipped", res.Skipped),
		slog.Int("invalid", res.Invalid))
	return res, nil
}

// ValidateClient checks a client entry before it is stored.
func ValidateClient(c models.Client) error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Email, is.EmailFormat),
		validation.Field(&c.RateType, validation.In(models.RateTypeHourly, models.RateTypeDay, models.RateTypeFlat)),
		validation.Field(&c.DefaultRate, validation.Min(0.0)),
	)
}

func identity(c models.Client) string {
	if c.Email != "" {
		return "email:" + strings.ToLower(c.Email)
	}
	return "name:" + strings.ToLower(c.Name)
}

package driving

import (
	"context"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// SettingsService reads and edits application configuration.
type SettingsService interface {
	// Get returns the effective settings: defaults, then the config file,
	// then environment overrides.
	Get() (*domain.AppSettings, error)

	// Set stores one dotted key and persists the file.
	Set(key, value string) error

	// Validate pings the configured providers.
	Validate(ctx context.Context) error

	// Keys lists the settable keys, sorted.
	Keys() []string
}

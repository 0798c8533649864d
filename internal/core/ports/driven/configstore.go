package driven

import "github.com/Gubeli/substans-kb/internal/core/domain"

// ConfigStore provides access to the externally supplied configuration
// surface. Implementations handle persistence (TOML files) and defaults.
type ConfigStore interface {
	// Load reads configuration from storage, applying defaults for
	// anything unset.
	Load() (domain.EngineConfig, error)

	// Save persists the configuration.
	Save(cfg domain.EngineConfig) error

	// Path returns the configuration file path.
	Path() string
}

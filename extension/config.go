package extension

import (
	"time"

	"github.com/xraph/bastion"
)

// Config holds the Bastion extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.bastion" or "bastion" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// MatrixFile is an optional YAML role matrix. When empty the builtin
	// matrix is used. A matrix that fails validation stops startup.
	MatrixFile string `json:"matrix_file" mapstructure:"matrix_file" yaml:"matrix_file"`

	// CacheTTL enables the decision cache when positive. The cache is local
	// to this process: changes committed by other replicas are not seen by
	// Authorize until cached decisions expire, so keep it short when several
	// instances share a store. Mutating checks always bypass it.
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// CacheSize bounds the decision cache (default: 10000).
	CacheSize int `json:"cache_size" mapstructure:"cache_size" yaml:"cache_size"`

	// Metrics registers the Prometheus metrics plugin with the default
	// registerer.
	Metrics bool `json:"metrics" mapstructure:"metrics" yaml:"metrics"`

	// Engine is passed to the engine as-is.
	Engine bastion.Config `json:"engine" mapstructure:"engine" yaml:"engine"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheSize: 10000,
		Engine:    bastion.DefaultConfig(),
	}
}

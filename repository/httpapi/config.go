package httpapi

import (
	"strings"

	"github.com/kbukum/flowkit/validation"
)

// DefaultBasePath is where routes are mounted when Config.BasePath is empty.
const DefaultBasePath = "/repository"

// Config controls how the discovery routes are mounted.
type Config struct {
	BasePath       string `yaml:"base_path" mapstructure:"base_path" validate:"omitempty,startswith=/"`
	RequestLogging bool   `yaml:"request_logging" mapstructure:"request_logging"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if len(c.BasePath) > 1 {
		c.BasePath = strings.TrimSuffix(c.BasePath, "/")
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

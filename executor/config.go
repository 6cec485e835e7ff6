package executor

import (
	"time"

	"github.com/kbukum/flowkit/validation"
)

// DefaultMaxParallel bounds concurrent steps when Config.MaxParallel is unset.
const DefaultMaxParallel = 4

// Config tunes run execution.
type Config struct {
	// MaxParallel bounds the steps of one plan running at once.
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel" validate:"gte=0"`
	// StepTimeout bounds each leaf step; zero means no limit.
	StepTimeout time.Duration `yaml:"step_timeout" mapstructure:"step_timeout" validate:"gte=0"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxParallel == 0 {
		c.MaxParallel = DefaultMaxParallel
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

package config

import (
	"fmt"

	"github.com/kbukum/flowkit/executor"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/repository/httpapi"
	"github.com/kbukum/flowkit/schedule"
)

// EngineConfig is the full configuration of a flowkit host.
type EngineConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Executor      executor.Config       `yaml:"executor" mapstructure:"executor"`
	Schedule      schedule.EngineConfig `yaml:"schedule" mapstructure:"schedule"`
	Observability observability.Config  `yaml:"observability" mapstructure:"observability"`
	API           httpapi.Config        `yaml:"api" mapstructure:"api"`
}

// ApplyDefaults fills unset fields of every section.
func (c *EngineConfig) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = c.Name
	}
	if c.Observability.ServiceVersion == "" {
		c.Observability.ServiceVersion = c.Version
	}
	if c.Observability.Environment == "" {
		c.Observability.Environment = c.Environment
	}
	c.Executor.ApplyDefaults()
	c.Schedule.ApplyDefaults()
	c.Observability.ApplyDefaults()
	c.API.ApplyDefaults()
}

// Validate checks every section and names the first one that fails.
func (c *EngineConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"executor", &c.Executor},
		{"schedule", &c.Schedule},
		{"observability", &c.Observability},
		{"api", &c.API},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("config.%s: %w", s.name, err)
		}
	}
	return nil
}

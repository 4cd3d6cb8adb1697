package core

import (
	"fmt"
	"os"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"
)

// StepConfig names one pipeline plugin. Every other key is passed to the
// plugin as a parameter.
type StepConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type" validate:"omitempty,oneof=sqlite"`
	ConnectionString string `yaml:"connectionString"`
}

// Enabled reports whether run history is configured
func (d Database) Enabled() bool {
	return d.Type != ""
}

type ServiceConfig struct {
	Port              int          `yaml:"port" validate:"gte=0,lte=65535"`
	PluginsDir        string       `yaml:"pluginsDir"`
	Database          Database     `yaml:"database"`
	Pipeline          []StepConfig `yaml:"pipeline"`
	SVGFallbackWidth  int          `yaml:"svgFallbackWidth" validate:"gt=0"`
	SVGFallbackHeight int          `yaml:"svgFallbackHeight" validate:"gt=0"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              8080,
		Pipeline:          []StepConfig{{Name: "ultraface"}},
		SVGFallbackWidth:  512,
		SVGFallbackHeight: 512,
	}
}

// LoadConfig loads configuration from the specified YAML file. Keys missing
// from the file keep their default values.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	config := DefaultConfig()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// Validate checks field constraints and the pipeline steps
func (c *ServiceConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Database.Enabled() && c.Database.ConnectionString == "" {
		return fmt.Errorf("database of type %s needs a connectionString", c.Database.Type)
	}
	if err := validateSteps(c.Pipeline); err != nil {
		return fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	return nil
}

// StepNames returns the plugin names of the pipeline in order
func (c *ServiceConfig) StepNames() []string {
	names := make([]string, len(c.Pipeline))
	for i, step := range c.Pipeline {
		names[i] = step.Name
	}
	return names
}

// StepParams returns the inline parameters of each pipeline step
func (c *ServiceConfig) StepParams() []map[string]any {
	params := make([]map[string]any, len(c.Pipeline))
	for i, step := range c.Pipeline {
		params[i] = step.Params
	}
	return params
}

// validateSteps ensures all step configurations have required fields
func validateSteps(steps []StepConfig) error {
	seenNames := make(map[string]bool)

	for i, step := range steps {
		// Validate name is not empty
		if step.Name == "" {
			return fmt.Errorf("step at index %d has empty name", i)
		}

		// Validate name is unique
		if seenNames[step.Name] {
			return fmt.Errorf("duplicate step name: %s", step.Name)
		}
		seenNames[step.Name] = true
	}

	return nil
}

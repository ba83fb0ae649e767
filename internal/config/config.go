// Package config reads the project-local feature toggles (§4.10) that gate
// which optional user-facing pathways a facade invokes. The data model
// always carries the optional fields regardless of these toggles; they
// only decide whether the CLI/facade layer prompts for or validates them.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taskorchestrator/core/internal/errs"
)

// FileName is the config file's name under the project state directory.
const FileName = "config.yaml"

// Config holds the feature toggles from §4.10.
type Config struct {
	SuccessCriteria      bool        `yaml:"success_criteria"`
	Feedback             bool        `yaml:"feedback"`
	Telemetry            bool        `yaml:"telemetry"`
	CompletionSummaries  bool        `yaml:"completion_summaries"`
	TimeTracking         bool        `yaml:"time_tracking"`
	Deadlines            bool        `yaml:"deadlines"`
	MinimalMode          bool        `yaml:"minimal_mode"`
	Hooks                HooksConfig `yaml:"hooks"`
}

// HooksConfig selects the post-commit hook side-channel transport (§4.6,
// §4.10). An empty NATSURL keeps the default file-based publisher.
type HooksConfig struct {
	NATSURL string `yaml:"nats_url"`
}

// Default returns the documented default toggle set.
func Default() *Config {
	return &Config{
		SuccessCriteria:     false,
		Feedback:            false,
		Telemetry:           true,
		CompletionSummaries: false,
		TimeTracking:        false,
		Deadlines:           false,
		MinimalMode:         false,
	}
}

// Load reads path, falling back to Default() if the file does not exist.
// MinimalMode, if set, overrides every other toggle to false on read.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "read config %s", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "parse config %s", path)
	}
	cfg.applyMinimalMode()
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the file if necessary.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "marshal config")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errs.Wrap(errs.Internal, err, "write config %s", path)
	}
	return nil
}

func (c *Config) applyMinimalMode() {
	if !c.MinimalMode {
		return
	}
	c.SuccessCriteria = false
	c.Feedback = false
	c.CompletionSummaries = false
	c.TimeTracking = false
	c.Deadlines = false
	c.Telemetry = false
	c.Hooks.NATSURL = ""
}

// Enable turns a named feature on, validating the name.
func (c *Config) Enable(feature string) error { return c.set(feature, true) }

// Disable turns a named feature off.
func (c *Config) Disable(feature string) error { return c.set(feature, false) }

func (c *Config) set(feature string, v bool) error {
	switch feature {
	case "success_criteria":
		c.SuccessCriteria = v
	case "feedback":
		c.Feedback = v
	case "telemetry":
		c.Telemetry = v
	case "completion_summaries":
		c.CompletionSummaries = v
	case "time_tracking":
		c.TimeTracking = v
	case "deadlines":
		c.Deadlines = v
	case "minimal_mode":
		c.MinimalMode = v
		c.applyMinimalMode()
	default:
		return errs.New(errs.InvalidInput, "unknown feature toggle %q", feature)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
)

// LoggingConfig selects where dispatch plans are archived for
// GET /api/dispatch/logs.
type LoggingConfig struct {
	// Backend is "jsonl" or "sqlite".
	Backend string `json:"backend"`
	Path    string `json:"path"`
	// MaxSizeMB enables rotation of the jsonl archive when positive.
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		c.Path = "dispatch_plans.jsonl"
	}
}

// Rotating reports whether the jsonl archive is rotated.
func (c LoggingConfig) Rotating() bool {
	return c.Backend == "jsonl" && c.MaxSizeMB > 0
}

func (c LoggingConfig) Validate() error {
	var errs []error
	switch c.Backend {
	case "jsonl", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("logging.backend: unknown backend %q", c.Backend))
	}
	if c.Path == "" {
		errs = append(errs, errors.New("logging.path is required"))
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		errs = append(errs, errors.New("logging rotation settings cannot be negative"))
	}
	return errors.Join(errs...)
}

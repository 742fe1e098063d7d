package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/erbalance/core/dispatch"
	"github.com/kilianp07/erbalance/core/metrics"
	"github.com/kilianp07/erbalance/core/simulation"
	"github.com/kilianp07/erbalance/infra/geo"
	"github.com/kilianp07/erbalance/infra/store"
)

type Config struct {
	Server     ServerConfig      `json:"server"`
	Dispatch   dispatch.Config   `json:"dispatch"`
	Simulation simulation.Config `json:"simulation"`
	Predictor  PredictorConfig   `json:"predictor"`
	Geo        geo.Config        `json:"geo"`
	Store      store.Config      `json:"store"`
	Alerts     AlertsConfig      `json:"alerts"`
	Metrics    metrics.Config    `json:"metrics"`
	Logging    LoggingConfig     `json:"logging"`
	Sentry     SentryConfig      `json:"sentry"`
}

// Load reads the configuration file at path, applies K_ prefixed
// environment overrides (K_STORE__BACKEND=sqlite sets store.backend) and
// validates every section. An empty path loads defaults and environment
// overrides only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Dispatch.SetDefaults()
	c.Simulation.SetDefaults()
	c.Predictor.SetDefaults()
	c.Geo.SetDefaults()
	c.Store.SetDefaults()
	c.Alerts.SetDefaults()
	c.Logging.SetDefaults()
	c.Sentry.SetDefaults()
}

// Validate checks every section and reports all failures.
func (c Config) Validate() error {
	return errors.Join(
		c.Server.Validate(),
		c.Dispatch.Validate(),
		c.Simulation.Validate(),
		c.Predictor.Validate(),
		c.Geo.Validate(),
		c.Store.Validate(),
		c.Alerts.Validate(),
		c.Logging.Validate(),
		c.Sentry.Validate(),
	)
}

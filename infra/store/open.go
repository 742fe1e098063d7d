package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/kilianp07/erbalance/core/logger"
	"github.com/kilianp07/erbalance/core/telemetry"
	"github.com/kilianp07/erbalance/infra/store/pgstore"
)

// Config selects and seeds the hospital state backend.
type Config struct {
	Backend  string `json:"backend"`
	Path     string `json:"path"`
	DSN      string `json:"dsn"`
	SeedFile string `json:"seed_file"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.Path == "" {
		c.Path = "hospitals.db"
	}
}

// Validate checks the backend settings.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "memory", "sqlite":
		return nil
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown store backend %q", c.Backend)
	}
}

// Open creates the configured backend and seeds it when empty, from
// SeedFile or the default fleet. The returned close function is never nil.
func Open(ctx context.Context, cfg Config, log logger.Logger) (telemetry.Store, func() error, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log = logger.OrNop(log)
	var (
		st      telemetry.Store
		closeFn = func() error { return nil }
	)
	switch strings.ToLower(cfg.Backend) {
	case "memory":
		st = telemetry.NewMemoryStore()
	case "sqlite":
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		st, closeFn = s, s.Close
	case "postgres":
		s, err := pgstore.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		st = s
		closeFn = func() error { s.Close(); return nil }
	}

	fleet := DefaultFleet()
	if cfg.SeedFile != "" {
		hs, err := LoadSeed(cfg.SeedFile)
		if err != nil {
			_ = closeFn()
			return nil, nil, fmt.Errorf("load seed %s: %w", cfg.SeedFile, err)
		}
		fleet = hs
	}
	seeded, err := SeedIfEmpty(ctx, st, fleet)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	if seeded {
		log.Infof("seeded %s store with %d hospitals", cfg.Backend, len(fleet))
	}
	return st, closeFn, nil
}

// Package plugins holds the named constructors selectable from configuration.
package plugins

import (
	"github.com/kilianp07/erbalance/config"
	dispatchlog "github.com/kilianp07/erbalance/core/dispatch/logging"
	"github.com/kilianp07/erbalance/core/factory"
)

// LogStores builds dispatch plan stores keyed by backend name.
var LogStores = factory.NewRegistry[dispatchlog.LogStore]()

// RegisterLogStore adds a plan store backend.
func RegisterLogStore(name string, f factory.Factory[dispatchlog.LogStore]) error {
	return LogStores.Register(name, f)
}

// NewLogStore builds the plan store selected by cfg.Backend.
func NewLogStore(cfg config.LoggingConfig) (dispatchlog.LogStore, error) {
	return LogStores.Create(factory.ModuleConfig{
		Type: cfg.Backend,
		Conf: map[string]any{
			"backend":      cfg.Backend,
			"path":         cfg.Path,
			"max_size_mb":  cfg.MaxSizeMB,
			"max_backups":  cfg.MaxBackups,
			"max_age_days": cfg.MaxAgeDays,
		},
	})
}

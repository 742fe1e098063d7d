package plugins

import (
	"github.com/kilianp07/erbalance/config"
	dispatchlog "github.com/kilianp07/erbalance/core/dispatch/logging"
	"github.com/kilianp07/erbalance/core/factory"
)

func init() {
	_ = RegisterLogStore("jsonl", func(conf map[string]any) (dispatchlog.LogStore, error) {
		var lc config.LoggingConfig
		if err := factory.Decode(conf, &lc); err != nil {
			return nil, err
		}
		if lc.Rotating() {
			return dispatchlog.NewRotatingJSONLStore(lc.Path, lc.MaxSizeMB, lc.MaxBackups, lc.MaxAgeDays)
		}
		return dispatchlog.NewJSONLStore(lc.Path)
	})
	_ = RegisterLogStore("sqlite", func(conf map[string]any) (dispatchlog.LogStore, error) {
		var lc config.LoggingConfig
		if err := factory.Decode(conf, &lc); err != nil {
			return nil, err
		}
		return dispatchlog.NewSQLiteStore(lc.Path)
	})
}

package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/erbalance/core/alert"
	"github.com/kilianp07/erbalance/infra/mqtt"
)

// SlackConfig defines the incoming webhook used for alerts.
type SlackConfig struct {
	WebhookURL  string         `json:"webhook_url"`
	MinSeverity alert.Severity `json:"min_severity"`
}

// AlertsConfig lists the alert sinks. The in-memory feed is always on.
type AlertsConfig struct {
	MQTT                 mqtt.Config `json:"mqtt"`
	Slack                SlackConfig `json:"slack"`
	SQLitePath           string      `json:"sqlite_path"`
	MemoryLimit          int         `json:"memory_limit"`
	NotifyTimeoutSeconds int         `json:"notify_timeout_seconds"`
}

func (c *AlertsConfig) SetDefaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 500
	}
	if c.NotifyTimeoutSeconds <= 0 {
		c.NotifyTimeoutSeconds = 10
	}
	if c.Slack.MinSeverity == "" {
		c.Slack.MinSeverity = alert.SeverityWarning
	}
}

func (c AlertsConfig) Validate() error {
	switch c.Slack.MinSeverity {
	case alert.SeverityInfo, alert.SeverityWarning, alert.SeverityCritical:
	default:
		return fmt.Errorf("alerts.slack.min_severity: unknown severity %q", c.Slack.MinSeverity)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("alerts.mqtt.broker is required when mqtt alerts are enabled")
	}
	return nil
}

func (c AlertsConfig) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}

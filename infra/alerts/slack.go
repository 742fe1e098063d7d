package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kilianp07/erbalance/core/alert"
)

const slackTimeout = 10 * time.Second

// Slack posts alerts to an incoming webhook.
type Slack struct {
	webhookURL  string
	minSeverity alert.Severity
	client      *http.Client
}

// NewSlack creates a Slack sink. Alerts below minSeverity are dropped; an
// empty webhookURL makes Notify a no-op.
func NewSlack(webhookURL string, minSeverity alert.Severity) *Slack {
	return &Slack{
		webhookURL:  webhookURL,
		minSeverity: minSeverity,
		client:      &http.Client{Timeout: slackTimeout},
	}
}

func severityRank(s alert.Severity) int {
	switch s {
	case alert.SeverityCritical:
		return 2
	case alert.SeverityWarning:
		return 1
	default:
		return 0
	}
}

func severityEmoji(s alert.Severity) string {
	switch s {
	case alert.SeverityCritical:
		return "\U0001f534" // red circle
	case alert.SeverityWarning:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// Notify implements alert.Sink.
func (s *Slack) Notify(ctx context.Context, hospitalID, message string, severity alert.Severity) error {
	if s.webhookURL == "" || severityRank(severity) < severityRank(s.minSeverity) {
		return nil
	}
	msg := map[string]any{
		"text": fmt.Sprintf("%s [%s] %s: %s", severityEmoji(severity), severity, hospitalID, message),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

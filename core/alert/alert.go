// Package alert defines hospital notifications and the sinks delivering
// them. Senders never block on a sink: delivery failures are logged only.
package alert

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kilianp07/erbalance/core/model"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ForUrgency maps a recommendation urgency to an alert severity.
func ForUrgency(u model.Urgency) Severity {
	switch u {
	case model.UrgencyCritical:
		return SeverityCritical
	case model.UrgencyHigh, model.UrgencyMedium:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Alert is a delivered notification.
type Alert struct {
	ID         string    `json:"alert_id"`
	HospitalID string    `json:"hospital_id"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	CreatedAt  time.Time `json:"created_at"`
}

// New builds an alert with a fresh sortable ID.
func New(hospitalID, message string, severity Severity, now time.Time) Alert {
	return Alert{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		HospitalID: hospitalID,
		Message:    message,
		Severity:   severity,
		CreatedAt:  now,
	}
}

// Sink delivers alerts to a hospital.
type Sink interface {
	Notify(ctx context.Context, hospitalID, message string, severity Severity) error
}

// Reader lists stored alerts, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Alert, error)
	ByHospital(ctx context.Context, hospitalID string, limit int) ([]Alert, error)
}

// MultiSink fans an alert out to every sink.
type MultiSink []Sink

// Notify implements Sink. All sinks are attempted; their errors are joined.
func (m MultiSink) Notify(ctx context.Context, hospitalID, message string, severity Severity) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, hospitalID, message, severity); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps alerts in process. It is the default alert log.
type MemorySink struct {
	mu     sync.RWMutex
	alerts []Alert
	max    int
	now    func() time.Time
}

// NewMemorySink keeps at most max alerts, 1000 when max <= 0.
func NewMemorySink(max int) *MemorySink {
	if max <= 0 {
		max = 1000
	}
	return &MemorySink{max: max, now: time.Now}
}

// Notify implements Sink.
func (m *MemorySink) Notify(_ context.Context, hospitalID, message string, severity Severity) error {
	a := New(hospitalID, message, severity, m.now())
	m.mu.Lock()
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > m.max {
		m.alerts = m.alerts[len(m.alerts)-m.max:]
	}
	m.mu.Unlock()
	return nil
}

// Recent implements Reader.
func (m *MemorySink) Recent(_ context.Context, limit int) ([]Alert, error) {
	return m.filter("", limit), nil
}

// ByHospital implements Reader.
func (m *MemorySink) ByHospital(_ context.Context, hospitalID string, limit int) ([]Alert, error) {
	return m.filter(hospitalID, limit), nil
}

func (m *MemorySink) filter(hospitalID string, limit int) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Alert, 0, len(m.alerts))
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		if hospitalID != "" && a.HospitalID != hospitalID {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

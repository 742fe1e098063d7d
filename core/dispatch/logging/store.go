// Package logging persists the history of dispatch plans so they can be
// audited and served back through the API.
package logging

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/kilianp07/erbalance/core/model"
)

// LogRecord captures one dispatch decision and its plan.
type LogRecord struct {
	DispatchID    string             `json:"dispatch_id"`
	Timestamp     time.Time          `json:"timestamp"`
	Incident      model.Incident     `json:"incident"`
	HospitalsUsed []string           `json:"hospitals_used"`
	Assignments   []model.Assignment `json:"assignments"`
	UnmetCritical int                `json:"unmet_critical"`
	UnmetStable   int                `json:"unmet_stable"`
	Warnings      []string           `json:"warnings,omitempty"`
	Plan          json.RawMessage    `json:"plan,omitempty"`
}

// LogQuery defines filters for retrieving records.
type LogQuery struct {
	Start      time.Time
	End        time.Time
	HospitalID string
	Scenario   model.Scenario
	// Limit keeps only the most recent records when positive.
	Limit int
}

// Match reports whether r passes the filters of q, ignoring Limit.
func (q LogQuery) Match(r LogRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Scenario != "" && r.Incident.Scenario != q.Scenario {
		return false
	}
	if q.HospitalID != "" && !slices.Contains(r.HospitalsUsed, q.HospitalID) {
		return false
	}
	return true
}

// tail applies Limit to records ordered oldest first.
func (q LogQuery) tail(recs []LogRecord) []LogRecord {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

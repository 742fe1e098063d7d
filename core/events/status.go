package events

import (
	"time"

	"github.com/kilianp07/erbalance/core/model"
)

// StatusChangeEvent is published by the simulator when a hospital changes tier.
type StatusChangeEvent struct {
	HospitalID string
	Name       string
	From       model.Status
	To         model.Status
	Load       float64
	Time       time.Time
}

// Escalated reports whether the hospital moved to a worse tier.
func (e StatusChangeEvent) Escalated() bool {
	return rank(e.To) > rank(e.From)
}

func rank(s model.Status) int {
	switch s {
	case model.StatusRed:
		return 2
	case model.StatusYellow:
		return 1
	default:
		return 0
	}
}

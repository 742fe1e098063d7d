package events

import (
	"time"

	"github.com/kilianp07/erbalance/core/model"
)

// DispatchEvent is published once per successful dispatch.
type DispatchEvent struct {
	DispatchID    string
	Incident      model.Incident
	Assignments   []model.Assignment
	UnmetCritical int
	UnmetStable   int
	Time          time.Time
}

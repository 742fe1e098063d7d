package dispatch

import (
	"math"

	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/prediction"
)

const (
	patientsPerDoctor     = 6
	criticalPerSpecialist = 2
)

// Recommend derives the staffing and supply needs of h for the critical
// patients it receives on top of its predicted demand.
func Recommend(h model.HospitalState, assignedCritical int, pred prediction.Prediction) model.Recommendation {
	crit := float64(max(assignedCritical, 0))
	staffCapacity := float64(max(1, h.StaffOnDuty()) * patientsPerDoctor)

	extraDoctors := int(math.Max(0, math.Ceil((pred.Admissions+crit-staffCapacity)/patientsPerDoctor)))
	extraSpecialists := int(math.Ceil(crit / criticalPerSpecialist))
	icuShort := max(0, int(pred.ICU-float64(h.ICUSpare())))
	ventShort := max(0, int(pred.Ventilators-float64(h.VentilatorSpare())))

	rec := model.Recommendation{
		ExtraDoctors:     extraDoctors,
		ExtraSpecialists: extraSpecialists,
		ICUShort:         icuShort,
		VentShort:        ventShort,
		OxygenCylinders:  int(math.Max(0, math.Ceil(pred.Admissions*0.3+crit*0.5))),
		BloodUnits:       int(math.Max(0, math.Ceil(pred.Admissions*0.2+crit*2))),
		TraumaKits:       int(math.Ceil(crit * 1.5)),
	}
	rec.Urgency = urgency(pred.Admissions, staffCapacity, icuShort, ventShort, assignedCritical)
	return rec
}

// urgency applies the tiers top-down; the first match wins.
func urgency(adm, capacity float64, icuShort, ventShort, critical int) model.Urgency {
	switch {
	case adm > capacity*1.5 || icuShort > 2 || ventShort > 1 || critical > 3:
		return model.UrgencyCritical
	case adm > capacity*1.2 || icuShort > 0 || ventShort > 0 || critical > 0:
		return model.UrgencyHigh
	case adm > capacity:
		return model.UrgencyMedium
	default:
		return model.UrgencyLow
	}
}

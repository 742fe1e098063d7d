package dispatch

import (
	"math"

	"github.com/kilianp07/erbalance/core/model"
)

// AllocatorConfig holds the bucket sizing and per-pass caps.
type AllocatorConfig struct {
	TraumaFactor   float64 `json:"trauma_factor"`
	TraumaMin      int     `json:"trauma_min"`
	TraumaMax      int     `json:"trauma_max"`
	GeneralFactor  float64 `json:"general_factor"`
	GeneralMin     int     `json:"general_min"`
	GeneralMax     int     `json:"general_max"`
	TraumaFirstCap int     `json:"trauma_first_cap"`
	SpilloverCap   int     `json:"spillover_cap"`
	StableFirstCap int     `json:"stable_first_cap"`
}

// DefaultAllocatorConfig returns the production constants.
func DefaultAllocatorConfig() AllocatorConfig {
	return AllocatorConfig{
		TraumaFactor:   0.6,
		TraumaMin:      1,
		TraumaMax:      5,
		GeneralFactor:  0.5,
		GeneralMin:     2,
		GeneralMax:     8,
		TraumaFirstCap: 3,
		SpilloverCap:   2,
		StableFirstCap: 4,
	}
}

// SetDefaults fills zero fields from DefaultAllocatorConfig.
func (c *AllocatorConfig) SetDefaults() {
	d := DefaultAllocatorConfig()
	if c.TraumaFactor <= 0 {
		c.TraumaFactor = d.TraumaFactor
	}
	if c.TraumaMin <= 0 {
		c.TraumaMin = d.TraumaMin
	}
	if c.TraumaMax <= 0 {
		c.TraumaMax = d.TraumaMax
	}
	if c.GeneralFactor <= 0 {
		c.GeneralFactor = d.GeneralFactor
	}
	if c.GeneralMin <= 0 {
		c.GeneralMin = d.GeneralMin
	}
	if c.GeneralMax <= 0 {
		c.GeneralMax = d.GeneralMax
	}
	if c.TraumaFirstCap <= 0 {
		c.TraumaFirstCap = d.TraumaFirstCap
	}
	if c.SpilloverCap <= 0 {
		c.SpilloverCap = d.SpilloverCap
	}
	if c.StableFirstCap <= 0 {
		c.StableFirstCap = d.StableFirstCap
	}
}

// Buckets is the per-dispatch intake limit of a hospital.
type Buckets struct {
	Trauma  int `json:"trauma"`
	General int `json:"general"`
}

// Total returns the combined intake limit.
func (b Buckets) Total() int { return b.Trauma + b.General }

func clipInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// BucketsFor sizes the buckets of h.
func (c AllocatorConfig) BucketsFor(h model.HospitalState) Buckets {
	trauma := int(math.Floor(float64(h.TraumaCapacity) * c.TraumaFactor))
	free := h.TotalBeds - h.Occupied()
	general := int(math.Floor(float64(free) * c.GeneralFactor))
	return Buckets{
		Trauma:  clipInt(trauma, c.TraumaMin, c.TraumaMax),
		General: clipInt(general, c.GeneralMin, c.GeneralMax),
	}
}

// Candidate is a ranked hospital with its intake limits.
type Candidate struct {
	HospitalID string
	Buckets    Buckets
}

// Allocation is the number of patients routed to one candidate.
type Allocation struct {
	HospitalID string
	Critical   int
	Stable     int
}

// Total returns the patients allocated.
func (a Allocation) Total() int { return a.Critical + a.Stable }

// AllocationResult holds one Allocation per candidate, in candidate order,
// and the patients that could not be placed.
type AllocationResult struct {
	Allocations   []Allocation
	UnmetCritical int
	UnmetStable   int
}

// Allocate distributes patients over candidates, which must already be
// ranked best first. Critical patients go in three passes: a capped first
// round over trauma buckets, a top-up to the full trauma bucket, then a
// small spillover onto hospitals that took no critical patient yet. Stable
// patients fill the general buckets with a first capped round followed by
// one-at-a-time round robin.
func (c AllocatorConfig) Allocate(cands []Candidate, critical, stable int) AllocationResult {
	out := make([]Allocation, len(cands))
	for i, cd := range cands {
		out[i].HospitalID = cd.HospitalID
	}
	remCrit := max(critical, 0)
	remStable := max(stable, 0)

	// trauma priority
	for i, cd := range cands {
		if remCrit == 0 {
			break
		}
		if cd.Buckets.Trauma <= 0 {
			continue
		}
		take := min(cd.Buckets.Trauma, remCrit, c.TraumaFirstCap)
		out[i].Critical += take
		remCrit -= take
	}

	// trauma overflow
	for i, cd := range cands {
		if remCrit == 0 {
			break
		}
		take := min(cd.Buckets.Trauma-out[i].Critical, remCrit)
		if take > 0 {
			out[i].Critical += take
			remCrit -= take
		}
	}

	// spillover
	for i, cd := range cands {
		if remCrit == 0 {
			break
		}
		if out[i].Critical != 0 {
			continue
		}
		take := min(c.SpilloverCap, remCrit, cd.Buckets.Total()-out[i].Total())
		if take > 0 {
			out[i].Critical += take
			remCrit -= take
		}
	}

	// stable, capped first round
	for i, cd := range cands {
		if remStable == 0 {
			break
		}
		take := min(max(cd.Buckets.General-out[i].Total(), 0), remStable, c.StableFirstCap)
		if take > 0 {
			out[i].Stable += take
			remStable -= take
		}
	}

	// stable, round robin
	for remStable > 0 {
		progressed := false
		for i, cd := range cands {
			if remStable == 0 {
				break
			}
			if cd.Buckets.General-out[i].Total() > 0 {
				out[i].Stable++
				remStable--
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	return AllocationResult{Allocations: out, UnmetCritical: remCrit, UnmetStable: remStable}
}

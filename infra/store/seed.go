package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/telemetry"
)

type seedRow struct {
	id, name                      string
	lat, lon                      float64
	er, beds, amb, staff, total   int
	icu, icuUsed, vents, ventUsed int
	staffAvail                    int
}

var mumbai = []seedRow{
	{"H001", "KEM Hospital", 19.002, 72.842, 50, 20, 5, 80, 100, 12, 9, 6, 4, 24},
	{"H002", "Sion Hospital", 19.046, 72.860, 30, 40, 2, 90, 80, 10, 5, 5, 2, 22},
	{"H003", "Tata Memorial Hospital", 19.003, 72.845, 80, 5, 10, 70, 120, 14, 13, 8, 7, 18},
	{"H004", "Lilavati Hospital", 19.051, 72.829, 40, 30, 3, 85, 90, 10, 6, 6, 3, 21},
	{"H005", "Nanavati Hospital", 19.096, 72.840, 60, 15, 6, 75, 110, 12, 10, 6, 5, 19},
	{"H006", "Breach Candy Hospital", 18.972, 72.804, 25, 50, 1, 95, 70, 8, 3, 4, 1, 24},
	{"H007", "Jaslok Hospital", 18.971, 72.809, 70, 10, 8, 65, 130, 15, 13, 8, 6, 16},
	{"H008", "P.D. Hinduja Hospital", 19.033, 72.838, 90, 2, 12, 60, 150, 18, 17, 10, 9, 15},
	{"H009", "Kokilaben Dhirubhai Ambani Hospital", 19.131, 72.822, 35, 35, 4, 88, 85, 10, 5, 6, 2, 22},
	{"H010", "Dr L H Hiranandani Hospital", 19.119, 72.917, 55, 18, 7, 78, 105, 12, 9, 6, 4, 20},
	{"H011", "Fortis Hospital Mulund", 19.161, 72.943, 45, 25, 5, 82, 95, 10, 7, 5, 3, 21},
	{"H012", "Sir J.J. Group of Hospitals", 18.962, 72.834, 20, 60, 0, 98, 60, 8, 2, 4, 1, 25},
}

// DefaultFleet returns the built-in Mumbai hospital fleet.
func DefaultFleet() []model.HospitalState {
	out := make([]model.HospitalState, 0, len(mumbai))
	for _, r := range mumbai {
		h := model.HospitalState{
			ID:                r.id,
			Name:              r.name,
			Location:          &model.Coordinates{Lat: r.lat, Lon: r.lon},
			BedAvailability:   r.beds,
			TotalBeds:         r.total,
			ERAdmissions:      r.er,
			AmbulanceArrivals: r.amb,
			StaffCapacity:     r.staff,
			Status:            model.StatusGreen,
			ICUCapacity:       r.icu,
			ICUOccupied:       r.icuUsed,
			Ventilators:       r.vents,
			VentilatorsUsed:   r.ventUsed,
			StaffAvailable:    r.staffAvail,
		}
		h.Normalize()
		out = append(out, h)
	}
	return out
}

type seedFile struct {
	Hospitals []model.HospitalState `json:"hospitals" yaml:"hospitals"`
}

// LoadSeed reads a hospital list from a JSON or YAML file.
func LoadSeed(path string) ([]model.HospitalState, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeSeed(bytes.NewReader(b), ext)
}

// DecodeSeed reads a hospital list from r. The document is either a bare
// list or an object with a "hospitals" key.
func DecodeSeed(r io.Reader, format string) ([]model.HospitalState, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc seedFile
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(raw, &doc.Hospitals); err != nil {
			if err2 := yaml.Unmarshal(raw, &doc); err2 != nil {
				return nil, fmt.Errorf("decode seed: %w", err2)
			}
		}
	case "json":
		if err := json.Unmarshal(raw, &doc.Hospitals); err != nil {
			if err2 := json.Unmarshal(raw, &doc); err2 != nil {
				return nil, fmt.Errorf("decode seed: %w", err2)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported seed format: %s", format)
	}
	for i := range doc.Hospitals {
		doc.Hospitals[i].Normalize()
		if err := doc.Hospitals[i].Validate(); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}
	return doc.Hospitals, nil
}

// SeedIfEmpty loads hs into s when s holds no hospital yet. It reports
// whether seeding happened.
func SeedIfEmpty(ctx context.Context, s telemetry.Store, hs []model.HospitalState) (bool, error) {
	cur, err := s.ListAll(ctx)
	if err != nil {
		return false, err
	}
	if len(cur) > 0 {
		return false, nil
	}
	return true, telemetry.Seed(ctx, s, hs)
}

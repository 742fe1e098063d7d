package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/telemetry"
)

func TestDefaultFleet(t *testing.T) {
	fleet := DefaultFleet()
	require.Len(t, fleet, 12)
	seen := map[string]bool{}
	for _, h := range fleet {
		assert.NoError(t, h.Validate(), h.ID)
		assert.NotNil(t, h.Location)
		assert.False(t, seen[h.ID], "duplicate %s", h.ID)
		seen[h.ID] = true
	}
	assert.Equal(t, "KEM Hospital", fleet[0].Name)
	assert.Equal(t, 10, fleet[0].TraumaCapacity)
	assert.Equal(t, 6, fleet[11].TraumaCapacity)
}

func TestDecodeSeed(t *testing.T) {
	yamlDoc := `
hospitals:
  - hospital_id: X1
    hospital_name: Test One
    total_beds: 40
    bed_availability: 10
    er_admissions: 5
    location: {lat: 19.1, lon: 72.9}
  - hospital_id: X2
    hospital_name: Test Two
    total_beds: 20
    bed_availability: 4
    status: Yellow
`
	hs, err := DecodeSeed(strings.NewReader(yamlDoc), "yaml")
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, 4, hs[0].TraumaCapacity)
	assert.Equal(t, model.StatusGreen, hs[0].Status)
	assert.Equal(t, 19.1, hs[0].Location.Lat)
	assert.Equal(t, model.StatusYellow, hs[1].Status)

	jsonDoc := `[{"hospital_id":"J1","hospital_name":"Json","total_beds":10,"bed_availability":2}]`
	hs, err = DecodeSeed(strings.NewReader(jsonDoc), "json")
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "J1", hs[0].ID)

	_, err = DecodeSeed(strings.NewReader(`[{"hospital_id":"B","total_beds":1,"bed_availability":5}]`), "json")
	assert.Error(t, err)
	_, err = DecodeSeed(strings.NewReader(""), "toml")
	assert.Error(t, err)
}

func TestLoadSeedFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fleet.yml")
	require.NoError(t, os.WriteFile(p, []byte("- hospital_id: F1\n  hospital_name: File\n  total_beds: 30\n  bed_availability: 3\n"), 0o600))
	hs, err := LoadSeed(p)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "F1", hs[0].ID)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "hospitals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, telemetry.Seed(ctx, s, DefaultFleet()))
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 12)
	assert.Equal(t, "H001", all[0].ID)
	assert.Equal(t, 19.002, all[0].Location.Lat)

	er := 55
	red := model.StatusRed
	got, err := s.ApplyPartialUpdate(ctx, "H002", model.HospitalUpdate{ERAdmissions: &er, Status: &red})
	require.NoError(t, err)
	assert.Equal(t, 55, got.ERAdmissions)

	h, ok, err := s.Get(ctx, "H002")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StatusRed, h.Status)
	assert.Equal(t, 40, h.BedAvailability)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.ApplyPartialUpdate(ctx, "missing", model.HospitalUpdate{ERAdmissions: &er})
	assert.True(t, errors.Is(err, telemetry.ErrNotFound))

	bad := 500
	_, err = s.ApplyPartialUpdate(ctx, "H002", model.HospitalUpdate{BedAvailability: &bad})
	assert.Error(t, err)
	h, _, _ = s.Get(ctx, "H002")
	assert.Equal(t, 40, h.BedAvailability)

	before, after, err := s.Modify(ctx, "H002", func(cur model.HospitalState) model.HospitalUpdate {
		b := cur.BedAvailability - 5
		return model.HospitalUpdate{BedAvailability: &b}
	})
	require.NoError(t, err)
	assert.Equal(t, 40, before.BedAvailability)
	assert.Equal(t, 35, after.BedAvailability)
	h, _, _ = s.Get(ctx, "H002")
	assert.Equal(t, 35, h.BedAvailability)

	_, _, err = s.Modify(ctx, "H002", func(cur model.HospitalState) model.HospitalUpdate {
		return model.HospitalUpdate{BedAvailability: &bad}
	})
	assert.ErrorIs(t, err, model.ErrInvalidHospital)
}

func TestOpenSeedsOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "h.db")
	st, closeFn, err := Open(ctx, Config{Backend: "sqlite", Path: path}, nil)
	require.NoError(t, err)
	er := 1
	_, err = st.ApplyPartialUpdate(ctx, "H001", model.HospitalUpdate{ERAdmissions: &er})
	require.NoError(t, err)
	require.NoError(t, closeFn())

	st, closeFn, err = Open(ctx, Config{Backend: "sqlite", Path: path}, nil)
	require.NoError(t, err)
	defer func() { _ = closeFn() }()
	h, ok, err := st.Get(ctx, "H001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, h.ERAdmissions, "existing state must not be reseeded")
}

func TestOpenMemoryWithSeedFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fleet.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"hospitals":[{"hospital_id":"S1","hospital_name":"Seed","total_beds":10,"bed_availability":5}]}`), 0o600))
	st, closeFn, err := Open(context.Background(), Config{SeedFile: p}, nil)
	require.NoError(t, err)
	defer func() { _ = closeFn() }()
	all, err := st.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "S1", all[0].ID)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{Backend: "postgres"}.Validate())
	assert.Error(t, Config{Backend: "redis"}.Validate())
	c := Config{Backend: "sqlite"}
	c.SetDefaults()
	assert.Equal(t, "hospitals.db", c.Path)
	assert.NoError(t, c.Validate())
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/erbalance/core/metrics"
	"github.com/kilianp07/erbalance/core/model"
)

func captureServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, strings.TrimSpace(string(data)))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordAssignments(t *testing.T) {
	srv, bodies := captureServer(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	rec := coremetrics.AssignmentRecord{
		DispatchID: "d1",
		HospitalID: "H001",
		Scenario:   model.ScenarioAccident,
		Critical:   3,
		Stable:     2,
		TotalScore: 4.12345,
		TravelMin:  12,
		Urgency:    model.UrgencyHigh,
		Time:       now,
	}
	if err := sink.RecordAssignments([]coremetrics.AssignmentRecord{rec}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("hospital_assignment").
		AddTag("hospital_id", "H001").
		AddTag("scenario", "accident").
		AddTag("dispatch_id", "d1").
		AddTag("urgency", string(model.UrgencyHigh)).
		AddTag("component", "dispatch_manager").
		AddField("critical", 3).
		AddField("stable", 2).
		AddField("total_score", 4.123).
		AddField("travel_min", 12.0).
		SetTime(now)
	if len(*bodies) != 1 || (*bodies)[0] != line(p) {
		t.Errorf("unexpected body: %v", *bodies)
	}
}

func TestInfluxSink_RecordHospitalState(t *testing.T) {
	srv, bodies := captureServer(t)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.HospitalStateEvent{
		Hospital:  model.HospitalState{ID: "H002", ERAdmissions: 40, BedAvailability: 12, AmbulanceArrivals: 3, Status: model.StatusYellow},
		Load:      120.5,
		Component: "simulation",
		Time:      now,
	}
	if err := sink.RecordHospitalState(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("hospital_state").
		AddTag("hospital_id", "H002").
		AddTag("component", "simulation").
		AddTag("status", "Yellow").
		AddField("er_admissions", 40).
		AddField("bed_availability", 12).
		AddField("ambulance_arrivals", 3).
		AddField("predicted_load", 120.5).
		SetTime(now)
	if len(*bodies) != 1 || (*bodies)[0] != line(p) {
		t.Errorf("unexpected body: %v", *bodies)
	}
}

func TestInfluxSink_RecordDispatchSummaryAndTransition(t *testing.T) {
	srv, bodies := captureServer(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	if err := sink.RecordDispatchSummary(coremetrics.DispatchSummary{DispatchID: "d2", Scenario: model.ScenarioOutbreak, Critical: 6, Stable: 9, Hospitals: 3, Latency: 1500 * time.Microsecond, Time: now}); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if err := sink.RecordStatusTransition(coremetrics.StatusTransition{HospitalID: "H003", From: model.StatusYellow, To: model.StatusRed, Load: 151, Time: now}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if len(*bodies) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(*bodies))
	}
	if !strings.HasPrefix((*bodies)[0], "dispatch_summary,") || !strings.Contains((*bodies)[0], "latency_ms=1.5") {
		t.Errorf("unexpected summary line: %s", (*bodies)[0])
	}
	p := write.NewPointWithMeasurement("hospital_status_change").
		AddTag("hospital_id", "H003").
		AddTag("from", "Yellow").
		AddTag("to", "Red").
		AddField("predicted_load", 151.0).
		SetTime(now)
	if (*bodies)[1] != line(p) {
		t.Errorf("unexpected transition line: %s", (*bodies)[1])
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}

package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/erbalance/core/metrics"
	"github.com/kilianp07/erbalance/infra/logger"
)

// InfluxSink writes dispatch and hospital events to an InfluxDB instance
// using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordAssignments writes one hospital_assignment point per hospital used.
func (s *InfluxSink) RecordAssignments(recs []coremetrics.AssignmentRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range recs {
		p := write.NewPointWithMeasurement("hospital_assignment").
			AddTag("hospital_id", r.HospitalID).
			AddTag("scenario", string(r.Scenario)).
			AddTag("dispatch_id", r.DispatchID).
			AddTag("urgency", string(r.Urgency)).
			AddTag("component", "dispatch_manager").
			AddField("critical", r.Critical).
			AddField("stable", r.Stable).
			AddField("total_score", round3(r.TotalScore)).
			AddField("travel_min", round3(r.TravelMin)).
			SetTime(r.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordDispatchSummary persists the aggregate of one dispatch call.
func (s *InfluxSink) RecordDispatchSummary(ev coremetrics.DispatchSummary) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("dispatch_summary").
		AddTag("scenario", string(ev.Scenario)).
		AddTag("dispatch_id", ev.DispatchID).
		AddTag("component", "dispatch_manager").
		AddField("critical", ev.Critical).
		AddField("stable", ev.Stable).
		AddField("unmet_critical", ev.UnmetCritical).
		AddField("unmet_stable", ev.UnmetStable).
		AddField("hospitals", ev.Hospitals).
		AddField("fallbacks", ev.Fallbacks).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordHospitalState writes a snapshot of a hospital.
func (s *InfluxSink) RecordHospitalState(ev coremetrics.HospitalStateEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h := ev.Hospital
	p := write.NewPointWithMeasurement("hospital_state").
		AddTag("hospital_id", h.ID)
	if ev.Component != "" {
		p.AddTag("component", ev.Component)
	}
	p = p.AddTag("status", string(h.Status)).
		AddField("er_admissions", h.ERAdmissions).
		AddField("bed_availability", h.BedAvailability).
		AddField("ambulance_arrivals", h.AmbulanceArrivals).
		AddField("predicted_load", round3(ev.Load)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordStatusTransition writes a congestion tier change.
func (s *InfluxSink) RecordStatusTransition(ev coremetrics.StatusTransition) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("hospital_status_change").
		AddTag("hospital_id", ev.HospitalID).
		AddTag("from", string(ev.From)).
		AddTag("to", string(ev.To)).
		AddField("predicted_load", round3(ev.Load)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the client resources.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

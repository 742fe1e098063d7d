// Package simulation drifts the hospital fleet state over time.
//
// A single Simulator goroutine is the only writer of the telemetry store.
// Each tick applies a random walk to ER admissions, bed availability and
// ambulance arrivals, reclassifies the status tier from the predictor load
// and commits the result atomically per hospital.
package simulation

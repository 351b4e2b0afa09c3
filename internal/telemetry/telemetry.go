// Package telemetry keeps the latest vehicle state reported by the telemetry
// stream and hands consistent snapshots of it to the flight control loop.
package telemetry

import (
	"time"

	"github.com/roman-kulish/grid-pilot/internal/mission"
)

// Provider is the read side of the telemetry cell.
type Provider interface {
	// Get returns the latest snapshot and false until the first record arrives.
	Get() (Snapshot, bool)

	// Err returns the error that ended the telemetry subscription, if any.
	Err() error
}

// Record is a single telemetry message: named values sampled together by the
// vehicle.
type Record struct {
	Timestamp time.Time          // Vehicle timestamp of the sample
	Fields    map[string]float64 // Logged variables by name
}

// FieldMap names the record fields holding the position estimate and the
// obstacle sensor reading.
type FieldMap struct {
	X      string `yaml:"x"`
	Y      string `yaml:"y"`
	Z      string `yaml:"z"`
	Sensor string `yaml:"sensor"`
}

func DefaultFieldMap() FieldMap {
	return FieldMap{
		X:      "stateEstimate.x",
		Y:      "stateEstimate.y",
		Z:      "stateEstimate.z",
		Sensor: "motion.shutter",
	}
}

// Snapshot is a consistent view of the vehicle state taken from one record.
type Snapshot struct {
	Seq       uint64               // Increments with every accepted record
	Timestamp time.Time            // Vehicle timestamp of the record
	Position  mission.VehiclePoint // Position estimate
	Sensor    mission.SensorSample // Downward optical sensor reading
}

package mission

import (
	"fmt"
	"math"
	"time"
)

// GridPoint is a location in the external planner's map frame, in grid units.
// Points read from the planner file are never modified afterwards.
type GridPoint struct {
	X float64 `json:"x"` // Planner column
	Y float64 `json:"y"` // Planner row
}

// Round returns the nearest integer grid cell, halves rounded away from zero.
func (g GridPoint) Round() GridPoint {
	return GridPoint{X: math.Round(g.X), Y: math.Round(g.Y)}
}

func (g GridPoint) String() string {
	return fmt.Sprintf("(%g,%g)", g.X, g.Y)
}

// VehiclePoint is a location in the metric frame consumed by the flight
// controller. Z is the commanded flight height in meters.
type VehiclePoint struct {
	X float64 `json:"x"` // Meters
	Y float64 `json:"y"` // Meters
	Z float64 `json:"z"` // Meters above the positioning system origin
}

func (v VehiclePoint) String() string {
	return fmt.Sprintf("(%.3f,%.3f,%.3f)", v.X, v.Y, v.Z)
}

// Add returns the component-wise sum of two points.
func (v VehiclePoint) Add(o VehiclePoint) VehiclePoint {
	return VehiclePoint{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// WaypointSequence is the ordered list of vehicle-frame targets of one flight.
// Slice order is flight order.
type WaypointSequence []VehiclePoint

// ObstacleRecord is the grid cell in which an obstacle was detected, as
// written to the planner's obstacle log.
type ObstacleRecord struct {
	GridX int64 `json:"gridX"`
	GridY int64 `json:"gridY"`
}

// NewObstacleRecord converts an integer grid cell into an ObstacleRecord.
func NewObstacleRecord(g GridPoint) ObstacleRecord {
	r := g.Round()
	return ObstacleRecord{GridX: int64(r.X), GridY: int64(r.Y)}
}

func (r ObstacleRecord) String() string {
	return fmt.Sprintf("(%d,%d)", r.GridX, r.GridY)
}

// SensorSample is a single reading of the downward optical sensor.
type SensorSample struct {
	Value     float64   `json:"value"`     // Raw reading, e.g. 0..65535 shutter counts
	Timestamp time.Time `json:"timestamp"` // When the reading was taken by the vehicle
}

package storage

import (
	"time"

	"github.com/roman-kulish/grid-pilot/internal/mission"
)

// Run is a single flight.
type Run struct {
	ID          string
	StartTime   time.Time
	EndTime     *time.Time // Nil while the flight is in progress or if it crashed
	FinalState  *string
	PlannerFile string
	Config      *string // JSON
}

// Waypoint is a compiled waypoint with the grid point it came from.
type Waypoint struct {
	Seq     int
	Grid    mission.GridPoint
	Vehicle mission.VehiclePoint
}

type Transition struct {
	Timestamp time.Time
	From      string
	To        string
	Waypoint  int
}

type Verdict struct {
	Timestamp  time.Time
	Waypoint   int
	Positive   bool
	Positives  int
	WindowSize int
	Exempt     bool
}

type Obstacle struct {
	Timestamp time.Time
	Waypoint  int
	Record    mission.ObstacleRecord
	Logged    bool    // Written to the planner's obstacle log
	Error     *string // Why the write failed
}

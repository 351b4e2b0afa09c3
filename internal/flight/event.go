package flight

import (
	"time"

	"github.com/roman-kulish/grid-pilot/internal/mission"
	"github.com/roman-kulish/grid-pilot/internal/obstacle"
)

type EventKind string

const (
	EventTransition EventKind = "transition"
	EventVerdict    EventKind = "verdict"
	EventObstacle   EventKind = "obstacle"
)

// Event describes something that happened during a flight. Fields not
// relevant to Kind are left empty.
type Event struct {
	Kind     EventKind               `json:"kind"`
	Time     time.Time               `json:"time"`
	From     State                   `json:"from"`
	To       State                   `json:"to"`
	Waypoint int                     `json:"waypoint"` // Index into the plan, -1 before the first
	Target   *mission.VehiclePoint   `json:"target,omitempty"`
	Grid     *mission.GridPoint      `json:"grid,omitempty"`
	Verdict  *obstacle.Verdict       `json:"verdict,omitempty"`
	Obstacle *mission.ObstacleRecord `json:"obstacle,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// Observer receives flight events synchronously from the control loop and
// must return quickly.
type Observer interface {
	Observe(e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(e Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}

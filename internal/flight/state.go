package flight

import "fmt"

// State is a flight sequencer state.
type State int

const (
	Idle State = iota
	Arming
	Transiting
	Settling
	Sampling
	Retreating
	ObstacleLogged
	Completed
	Aborted
)

var stateNames = [...]string{
	Idle:           "idle",
	Arming:         "arming",
	Transiting:     "transiting",
	Settling:       "settling",
	Sampling:       "sampling",
	Retreating:     "retreating",
	ObstacleLogged: "obstacleLogged",
	Completed:      "completed",
	Aborted:        "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Completed || s == Aborted
}

// transitions lists the allowed successors of every non-terminal state, in
// addition to Aborted which is reachable from all of them.
var transitions = map[State][]State{
	Idle:           {Arming, Completed},
	Arming:         {Transiting},
	Transiting:     {Settling, Completed},
	Settling:       {Sampling},
	Sampling:       {Transiting, Retreating, Completed},
	Retreating:     {ObstacleLogged},
	ObstacleLogged: {},
}

// CanTransition reports whether the sequencer may move from one state to
// another.
func CanTransition(from, to State) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	if to == Aborted {
		return true
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

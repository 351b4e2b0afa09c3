package flight

import (
	"errors"
	"fmt"
)

// ErrNoPosition is returned when a plan is started before the first position
// estimate has arrived.
var ErrNoPosition = errors.New("no position estimate")

// LinkError reports the loss of the vehicle control port or of the telemetry
// subscription. It ends the run immediately.
type LinkError struct {
	Op  string // What the sequencer was doing
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link lost during %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

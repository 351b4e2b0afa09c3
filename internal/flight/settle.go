package flight

import (
	"time"

	"github.com/roman-kulish/grid-pilot/internal/mission"
	"github.com/roman-kulish/grid-pilot/internal/timeutil"
)

// SettlePolicy decides when the vehicle has reached a waypoint. send issues
// one position setpoint toward target; the policy must call it at least once
// and return its first error.
type SettlePolicy interface {
	Settle(target mission.VehiclePoint, send func() error) error
}

// FixedRepeatPolicy resends the setpoint a fixed number of times, pausing
// after each send, and assumes arrival once the budget is spent. The resends
// also keep the firmware's setpoint watchdog from disarming the vehicle.
type FixedRepeatPolicy struct {
	Repeats  int
	Interval time.Duration
	Clock    timeutil.Clock
}

func (p FixedRepeatPolicy) Settle(_ mission.VehiclePoint, send func() error) error {
	clock := p.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	repeats := max(p.Repeats, 1)
	for i := 0; i < repeats; i++ {
		if err := send(); err != nil {
			return err
		}
		clock.Sleep(p.Interval)
	}

	return nil
}

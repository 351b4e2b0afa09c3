package path

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/roman-kulish/grid-pilot/internal/calibration"
	"github.com/roman-kulish/grid-pilot/internal/mission"
)

// Plan is the compiled output of a planner file. Grid and Waypoints have the
// same length and order.
type Plan struct {
	Grid      []mission.GridPoint
	Waypoints mission.WaypointSequence

	// Transform maps Grid to Waypoints before Rotation is applied.
	Transform *calibration.Transform

	// Rotation is the whole-sequence rotation, in radians, applied about the
	// first waypoint.
	Rotation float64

	// Relative plans are flown as offsets from the vehicle's position at
	// arming rather than in the absolute positioning frame.
	Relative bool
}

// Len returns the number of waypoints.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Waypoints)
}

// Empty reports whether the plan has no waypoints.
func (p *Plan) Empty() bool {
	return p.Len() == 0
}

// GridOf maps a plan-frame vehicle point back to the integer grid cell it
// belongs to, undoing the whole-sequence rotation first.
func (p *Plan) GridOf(v mission.VehiclePoint) mission.GridPoint {
	if p.Rotation != 0 && len(p.Waypoints) > 0 {
		o := p.Waypoints[0]
		q := r2.Rotate(r2.Vec{X: v.X, Y: v.Y}, -p.Rotation, r2.Vec{X: o.X, Y: o.Y})
		v = mission.VehiclePoint{X: q.X, Y: q.Y, Z: v.Z}
	}
	return p.Transform.ToGrid(v)
}

// rotateAbout rotates every point of seq in place by angle about seq[0].
// Heights are left untouched.
func rotateAbout(seq mission.WaypointSequence, angle float64) {
	if angle == 0 || math.IsNaN(angle) || len(seq) == 0 {
		return
	}

	o := r2.Vec{X: seq[0].X, Y: seq[0].Y}
	for i, w := range seq {
		q := r2.Rotate(r2.Vec{X: w.X, Y: w.Y}, angle, o)
		seq[i] = mission.VehiclePoint{X: q.X, Y: q.Y, Z: w.Z}
	}
}

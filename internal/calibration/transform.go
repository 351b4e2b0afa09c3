// Package calibration maps planner grid coordinates to the vehicle's metric
// frame and back.
//
// A Transform is derived once from known (grid, vehicle) correspondences,
// typically the four corners of the mat as measured with the positioning
// system, and is immutable afterwards. The same value is handed to the path
// compiler and to the flight sequencer so the forward and inverse mappings can
// never drift apart.
package calibration

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/roman-kulish/grid-pilot/internal/mission"
)

// Epsilon is the rotation, in radians, below which the frames are treated as
// axis-aligned and no rotation is applied in either direction.
const Epsilon = 0.01

// Correspondence pairs a grid point with the vehicle-frame position measured
// for it. Only the X and Y of Vehicle are used.
type Correspondence struct {
	Grid    mission.GridPoint    `yaml:"grid" json:"grid"`
	Vehicle mission.VehiclePoint `yaml:"vehicle" json:"vehicle"`
}

// Transform is an affine grid-to-vehicle mapping: scale, then rotate, then
// translate.
type Transform struct {
	scaleX   float64
	scaleY   float64
	rotation float64
	origin   r2.Vec
}

// New derives a Transform from at least two correspondences.
//
// The x scale and the rotation come from a pair sharing a grid row, the y
// scale from a pair sharing a grid column. Consecutive pairs are preferred so
// corners listed around the perimeter give the expected axes. The y scale is
// negative when the vehicle y axis points opposite to the rotated grid y axis.
// Without axis-sharing pairs, any pair that differs in both grid axes yields an
// axis-aligned transform. The first correspondence is mapped exactly.
func New(correspondences []Correspondence) (*Transform, error) {
	if len(correspondences) < 2 {
		return nil, NewConfigError(fmt.Sprintf("at least 2 correspondences required, %d given", len(correspondences)))
	}
	for i, c := range correspondences {
		if !finite(c.Grid.X, c.Grid.Y, c.Vehicle.X, c.Vehicle.Y) {
			return nil, NewConfigError(fmt.Sprintf("correspondence %d has non-finite coordinates", i))
		}
	}

	var t Transform

	xi, xj, hasRow := findPair(correspondences, sameRow)
	yi, yj, hasColumn := findPair(correspondences, sameColumn)

	if hasRow && hasColumn {
		gx, rx := deltas(correspondences[xi], correspondences[xj])
		t.scaleX = r2.Norm(rx) / math.Abs(gx.X)
		t.rotation = normalizeAngle(math.Atan2(rx.Y, rx.X) - math.Atan2(0, gx.X))

		gy, ry := deltas(correspondences[yi], correspondences[yj])
		up := r2.Vec{X: -math.Sin(t.rotation), Y: math.Cos(t.rotation)}
		alignment := r2.Dot(ry, up) * math.Copysign(1, gy.Y)
		if alignment == 0 {
			return nil, NewConfigError("y axis pair is perpendicular to the grid y axis")
		}
		t.scaleY = math.Copysign(r2.Norm(ry)/math.Abs(gy.Y), alignment)
	} else {
		i, j, ok := findPair(correspondences, differBothAxes)
		if !ok {
			return nil, NewConfigError("correspondences are collinear, need points spanning both grid axes")
		}
		g, r := deltas(correspondences[i], correspondences[j])
		t.scaleX = r.X / g.X
		t.scaleY = r.Y / g.Y
	}

	if err := t.validateScales(); err != nil {
		return nil, err
	}

	ref := correspondences[0]
	mapped := t.rotate(r2.Vec{X: ref.Grid.X * t.scaleX, Y: ref.Grid.Y * t.scaleY}, t.rotation)
	t.origin = r2.Sub(r2.Vec{X: ref.Vehicle.X, Y: ref.Vehicle.Y}, mapped)

	return &t, nil
}

// FromOrigin builds the transform used when no calibration is configured:
// origin maps to (0, 0), one grid cell is cellSize meters and the grid y axis
// is flipped, matching the planner's row order.
func FromOrigin(origin mission.GridPoint, cellSize float64) (*Transform, error) {
	if !finite(origin.X, origin.Y, cellSize) || cellSize <= 0 {
		return nil, NewConfigError(fmt.Sprintf("invalid cell size %g", cellSize))
	}

	return &Transform{
		scaleX: cellSize,
		scaleY: -cellSize,
		origin: r2.Vec{X: -origin.X * cellSize, Y: origin.Y * cellSize},
	}, nil
}

// ToVehicle maps a grid point into the vehicle frame at the given height.
func (t *Transform) ToVehicle(g mission.GridPoint, height float64) mission.VehiclePoint {
	p := t.rotate(r2.Vec{X: g.X * t.scaleX, Y: g.Y * t.scaleY}, t.rotation)
	p = r2.Add(p, t.origin)

	return mission.VehiclePoint{X: p.X, Y: p.Y, Z: height}
}

// ToGrid is the inverse of ToVehicle, rounded to the nearest grid cell.
// The height of v is ignored.
func (t *Transform) ToGrid(v mission.VehiclePoint) mission.GridPoint {
	p := r2.Sub(r2.Vec{X: v.X, Y: v.Y}, t.origin)
	p = t.rotate(p, -t.rotation)

	return mission.GridPoint{X: p.X / t.scaleX, Y: p.Y / t.scaleY}.Round()
}

// ScaleX returns meters per grid unit along the grid x axis.
func (t *Transform) ScaleX() float64 { return t.scaleX }

// ScaleY returns meters per grid unit along the grid y axis, signed.
func (t *Transform) ScaleY() float64 { return t.scaleY }

// Rotation returns the grid-to-vehicle rotation in radians.
func (t *Transform) Rotation() float64 { return t.rotation }

// Origin returns the vehicle-frame position of grid (0, 0).
func (t *Transform) Origin() (x, y float64) { return t.origin.X, t.origin.Y }

// LogValue implements slog.LogValuer.
func (t *Transform) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("scaleX", fmt.Sprintf("%.4fm/cell", t.scaleX)),
		slog.String("scaleY", fmt.Sprintf("%.4fm/cell", t.scaleY)),
		slog.String("rotation", fmt.Sprintf("%.1fdeg", t.rotation*180/math.Pi)),
		slog.Float64("originX", t.origin.X),
		slog.Float64("originY", t.origin.Y),
	)
}

func (t *Transform) rotate(p r2.Vec, angle float64) r2.Vec {
	if math.Abs(t.rotation) <= Epsilon {
		return p
	}
	return r2.Rotate(p, angle, r2.Vec{})
}

func (t *Transform) validateScales() error {
	if !finite(t.scaleX) || t.scaleX == 0 {
		return NewConfigError(fmt.Sprintf("invalid x scale %g", t.scaleX))
	}
	if !finite(t.scaleY) || t.scaleY == 0 {
		return NewConfigError(fmt.Sprintf("invalid y scale %g", t.scaleY))
	}
	return nil
}

func sameRow(a, b mission.GridPoint) bool {
	return a.Y == b.Y && a.X != b.X
}

func sameColumn(a, b mission.GridPoint) bool {
	return a.X == b.X && a.Y != b.Y
}

func differBothAxes(a, b mission.GridPoint) bool {
	return a.X != b.X && a.Y != b.Y
}

// findPair returns the first consecutive pair matching fn, otherwise the
// first matching pair in index order.
func findPair(cs []Correspondence, fn func(a, b mission.GridPoint) bool) (int, int, bool) {
	for i := 0; i+1 < len(cs); i++ {
		if fn(cs[i].Grid, cs[i+1].Grid) {
			return i, i + 1, true
		}
	}
	for i := 0; i < len(cs); i++ {
		for j := i + 2; j < len(cs); j++ {
			if fn(cs[i].Grid, cs[j].Grid) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func deltas(a, b Correspondence) (grid, vehicle r2.Vec) {
	grid = r2.Vec{X: b.Grid.X - a.Grid.X, Y: b.Grid.Y - a.Grid.Y}
	vehicle = r2.Vec{X: b.Vehicle.X - a.Vehicle.X, Y: b.Vehicle.Y - a.Vehicle.Y}
	return
}

func normalizeAngle(a float64) float64 {
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

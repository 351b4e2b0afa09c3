// Package path turns planner grid points into the vehicle-frame waypoint
// sequence a flight follows.
package path

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/roman-kulish/grid-pilot/internal/calibration"
	"github.com/roman-kulish/grid-pilot/internal/mission"
	"github.com/roman-kulish/grid-pilot/internal/planner"
)

// Mode selects how planner points become waypoints.
type Mode string

const (
	// ModeFull flies every planner point, so every cell is checked for
	// obstacles.
	ModeFull Mode = "full"

	// ModeCorners flies only the turning points, see Corners.
	ModeCorners Mode = "corners"
)

const DefaultCellSize = 0.1 // Meters per grid cell when flying uncalibrated

func (m Mode) Validate() error {
	switch m {
	case ModeFull, ModeCorners:
		return nil
	default:
		return fmt.Errorf("unknown path mode %q", m)
	}
}

type Option func(*Compiler)

// WithLogger sets the logger for the compiler.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// WithMode sets the simplification mode, ModeFull by default.
func WithMode(m Mode) Option {
	return func(c *Compiler) {
		c.mode = m
	}
}

// WithRotation sets the whole-sequence rotation in radians.
func WithRotation(angle float64) Option {
	return func(c *Compiler) {
		c.rotation = angle
	}
}

// WithCellSize sets the cell size used when no calibration transform is given.
func WithCellSize(meters float64) Option {
	return func(c *Compiler) {
		c.cellSize = meters
	}
}

// Compiler builds Plans at a fixed flight height.
//
// With a calibration transform the waypoints are absolute positions in the
// vehicle frame. Without one, the first planner point becomes the origin and
// the plan is marked Relative.
type Compiler struct {
	transform *calibration.Transform
	height    float64
	mode      Mode
	rotation  float64
	cellSize  float64
	logger    *slog.Logger
}

// NewCompiler returns a Compiler. transform may be nil.
func NewCompiler(transform *calibration.Transform, height float64, opts ...Option) (*Compiler, error) {
	c := &Compiler{
		transform: transform,
		height:    height,
		mode:      ModeFull,
		cellSize:  DefaultCellSize,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.mode.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(c.height) || math.IsInf(c.height, 0) {
		return nil, fmt.Errorf("invalid flight height %g", c.height)
	}
	if math.IsNaN(c.rotation) || math.IsInf(c.rotation, 0) {
		return nil, fmt.Errorf("invalid rotation %g", c.rotation)
	}
	if c.transform == nil && !(c.cellSize > 0) {
		return nil, fmt.Errorf("invalid cell size %g", c.cellSize)
	}

	return c, nil
}

// CompileFile reads the planner file at name and compiles it. A missing or
// unusable file is logged and yields an empty plan.
func (c *Compiler) CompileFile(name string) *Plan {
	points, err := planner.ReadGridPoints(name)
	if err != nil {
		c.logger.Warn("planner file unusable, flying an empty path", slog.String("file", name), slog.Any("error", err))
		return c.emptyPlan()
	}

	return c.Compile(points)
}

// Compile converts points into a Plan, preserving their order.
func (c *Compiler) Compile(points []mission.GridPoint) *Plan {
	if len(points) == 0 {
		return c.emptyPlan()
	}

	var grid []mission.GridPoint
	switch c.mode {
	case ModeCorners:
		grid = Corners(points)
	default:
		grid = append([]mission.GridPoint(nil), points...)
	}

	plan := &Plan{
		Grid:      grid,
		Waypoints: make(mission.WaypointSequence, len(grid)),
		Transform: c.transform,
		Rotation:  c.rotation,
	}

	if plan.Transform == nil {
		t, err := calibration.FromOrigin(points[0], c.cellSize)
		if err != nil {
			c.logger.Warn("cannot place path origin, flying an empty path", slog.String("origin", points[0].String()), slog.Any("error", err))
			return c.emptyPlan()
		}
		plan.Transform = t
		plan.Relative = true
	}

	for i, g := range grid {
		plan.Waypoints[i] = plan.Transform.ToVehicle(g, c.height)
	}
	rotateAbout(plan.Waypoints, plan.Rotation)

	c.logger.Info("path compiled",
		slog.String("mode", string(c.mode)),
		slog.Int("points", len(points)),
		slog.Int("waypoints", len(plan.Waypoints)),
		slog.Bool("relative", plan.Relative),
	)

	return plan
}

func (c *Compiler) emptyPlan() *Plan {
	return &Plan{Transform: c.transform, Rotation: c.rotation, Relative: c.transform == nil}
}

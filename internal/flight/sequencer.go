// Package flight drives the vehicle through a compiled plan, checks every
// waypoint for an obstacle and runs the retreat protocol on detection.
package flight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/grid-pilot/internal/mission"
	"github.com/roman-kulish/grid-pilot/internal/obstacle"
	"github.com/roman-kulish/grid-pilot/internal/path"
	"github.com/roman-kulish/grid-pilot/internal/telemetry"
	"github.com/roman-kulish/grid-pilot/internal/timeutil"
)

// Vehicle is the control port of the flight controller.
type Vehicle interface {
	Arm() error
	SendPositionSetpoint(x, y, z, yaw float64) error
	SendStopSetpoint() error
	NotifySetpointStop() error
}

// Classifier judges a sampling window taken at a waypoint.
type Classifier interface {
	SampleWindow(read obstacle.SensorReader, first bool) obstacle.Verdict
}

// ObstacleWriter persists detected obstacles for the planner.
type ObstacleWriter interface {
	Append(r mission.ObstacleRecord) error
}

// RetreatTarget selects where the vehicle goes after a detection.
type RetreatTarget string

const (
	RetreatLastSafe RetreatTarget = "lastSafe" // The previous waypoint
	RetreatOrigin   RetreatTarget = "origin"   // The position held at arming
)

func (t RetreatTarget) Validate() error {
	switch t {
	case RetreatLastSafe, RetreatOrigin:
		return nil
	default:
		return fmt.Errorf("unknown retreat target %q", t)
	}
}

// Config holds the fixed timing and geometry of a flight.
type Config struct {
	Yaw              float64       // Heading sent with every setpoint, degrees
	ArmSettle        time.Duration // Wait after the arming request
	SetpointRepeats  int           // Setpoints sent per waypoint by the default settle policy
	SetpointInterval time.Duration // Pause after each setpoint
	RetreatRepeats   int           // Setpoints sent toward the retreat target
	RetreatHeight    float64       // Absolute height of the retreat, meters
	RetreatTarget    RetreatTarget
	DrainDelay       time.Duration // Wait after the shutdown commands
}

func DefaultConfig() Config {
	return Config{
		Yaw:              90,
		ArmSettle:        time.Second,
		SetpointRepeats:  10,
		SetpointInterval: 100 * time.Millisecond,
		RetreatRepeats:   30,
		RetreatHeight:    0.15,
		RetreatTarget:    RetreatLastSafe,
		DrainDelay:       100 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	var errs []error

	if math.IsNaN(c.Yaw) || math.IsInf(c.Yaw, 0) {
		errs = append(errs, fmt.Errorf("yaw must be finite, got %g", c.Yaw))
	}
	if c.ArmSettle < 0 || c.SetpointInterval < 0 || c.DrainDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if c.SetpointRepeats < 1 {
		errs = append(errs, fmt.Errorf("setpoint repeats must be positive, got %d", c.SetpointRepeats))
	}
	if c.RetreatRepeats < 1 {
		errs = append(errs, fmt.Errorf("retreat repeats must be positive, got %d", c.RetreatRepeats))
	}
	if math.IsNaN(c.RetreatHeight) || math.IsInf(c.RetreatHeight, 0) || c.RetreatHeight < 0 {
		errs = append(errs, fmt.Errorf("retreat height must be a non-negative number, got %g", c.RetreatHeight))
	}
	if err := c.RetreatTarget.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Result summarizes a finished run.
type Result struct {
	State       State
	Visited     int                     // Waypoints sampled
	Obstacle    *mission.ObstacleRecord // Set when a detection ended the run
	Interrupted bool                    // The run was cancelled between waypoints
}

// WithLogger sets the logger for the sequencer
func WithLogger(logger *slog.Logger) func(s *Sequencer) {
	return func(s *Sequencer) {
		s.logger = logger
	}
}

// WithClock sets the clock used for every delay
func WithClock(clock timeutil.Clock) func(s *Sequencer) {
	return func(s *Sequencer) {
		s.clock = clock
	}
}

// WithSettlePolicy replaces the fixed repeat settle policy
func WithSettlePolicy(p SettlePolicy) func(s *Sequencer) {
	return func(s *Sequencer) {
		s.settle = p
	}
}

// WithObserver adds an observer of flight events
func WithObserver(o Observer) func(s *Sequencer) {
	return func(s *Sequencer) {
		s.observers = append(s.observers, o)
	}
}

// Sequencer is the flight state machine. A run is strictly sequential: one
// waypoint at a time, one sampling window per waypoint.
type Sequencer struct {
	vehicle    Vehicle
	telemetry  telemetry.Provider
	classifier Classifier
	obstacles  ObstacleWriter

	cfg       Config
	settle    SettlePolicy
	clock     timeutil.Clock
	observers []Observer
	logger    *slog.Logger

	state    atomic.Int32
	waypoint int
	running  atomic.Bool
}

func NewSequencer(v Vehicle, tp telemetry.Provider, c Classifier, w ObstacleWriter, cfg Config, options ...func(s *Sequencer)) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flight config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	s := Sequencer{
		vehicle:    v,
		telemetry:  tp,
		classifier: c,
		obstacles:  w,
		cfg:        cfg,
		clock:      timeutil.RealClock{},
		logger:     logger,
	}

	for _, option := range options {
		option(&s)
	}

	if s.settle == nil {
		s.settle = FixedRepeatPolicy{Repeats: cfg.SetpointRepeats, Interval: cfg.SetpointInterval, Clock: s.clock}
	}

	return &s, nil
}

// State returns the current state.
func (s *Sequencer) State() State {
	return State(s.state.Load())
}

// Run flies plan from Idle to Completed or Aborted.
//
// Cancelling ctx is only honoured between waypoints and ends the run in
// Aborted through the normal shutdown. A *LinkError ends the run at once in
// Aborted without shutdown commands. That includes telemetry that never
// delivered a snapshot and telemetry that went silent during a sampling
// window. A failed obstacle log write is logged and does not change the
// outcome.
func (s *Sequencer) Run(ctx context.Context, plan *path.Plan) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Result{State: s.State()}, errors.New("flight already running")
	}
	defer s.running.Store(false)

	s.state.Store(int32(Idle))
	s.waypoint = -1

	if plan.Empty() {
		s.logger.Warn("plan has no waypoints, nothing to fly")
		s.transition(Completed)
		return Result{State: Completed}, nil
	}

	if err := s.telemetry.Err(); err != nil {
		return s.fail(Result{}, "telemetry", err)
	}

	snap, ok := s.telemetry.Get()
	if !ok {
		return s.fail(Result{}, "telemetry", ErrNoPosition)
	}

	var base mission.VehiclePoint
	if plan.Relative {
		base = snap.Position
	}
	home := snap.Position

	s.logger.Info("starting flight",
		slog.Int("waypoints", plan.Len()),
		slog.Bool("relative", plan.Relative),
		slog.String("base", base.String()),
		slog.String("home", home.String()),
	)

	s.transition(Arming)
	if err := s.vehicle.Arm(); err != nil {
		return s.fail(Result{}, "arming", err)
	}
	s.clock.Sleep(s.cfg.ArmSettle)

	var res Result

	for i, wp := range plan.Waypoints {
		if ctx.Err() != nil {
			s.logger.Warn("flight interrupted", slog.Int("waypoint", i), slog.Any("reason", context.Cause(ctx)))
			res.Interrupted = true
			return s.finish(res, Aborted)
		}

		s.waypoint = i
		target := wp.Add(base)

		s.transition(Transiting, slog.String("target", target.String()), slog.String("grid", plan.Grid[i].String()))
		s.transition(Settling)

		err := s.settle.Settle(target, func() error {
			return s.vehicle.SendPositionSetpoint(target.X, target.Y, target.Z, s.cfg.Yaw)
		})
		if err != nil {
			return s.fail(res, "position setpoint", err)
		}

		s.transition(Sampling)
		before, _ := s.telemetry.Get()
		verdict := s.classifier.SampleWindow(s.readSensor, i == 0)
		after, _ := s.telemetry.Get()
		res.Visited++

		if err := s.telemetry.Err(); err != nil {
			return s.fail(res, "sampling", err)
		}
		// a window without a single new record only saw a frozen sensor value
		if after.Seq == before.Seq {
			return s.fail(res, "sampling", telemetry.ErrStale)
		}

		s.logger.Info("waypoint sampled",
			slog.Int("waypoint", i),
			slog.Bool("positive", verdict.Positive),
			slog.Int("positives", verdict.Positives),
			slog.Int("window", verdict.WindowSize),
			slog.Bool("exempt", verdict.Exempt),
		)
		s.emit(Event{Kind: EventVerdict, To: Sampling, Target: &target, Grid: &plan.Grid[i], Verdict: &verdict})

		if verdict.Positive && i > 0 {
			return s.retreat(res, plan, base, home)
		}
	}

	return s.finish(res, Completed)
}

// retreat moves away from the obstacle found at the current waypoint, logs it
// and aborts the run.
func (s *Sequencer) retreat(res Result, plan *path.Plan, base, home mission.VehiclePoint) (Result, error) {
	i := s.waypoint

	target := home
	if s.cfg.RetreatTarget == RetreatLastSafe {
		target = plan.Waypoints[i-1].Add(base)
	}
	target.Z = s.cfg.RetreatHeight

	s.transition(Retreating, slog.String("target", target.String()))

	for r := 0; r < s.cfg.RetreatRepeats; r++ {
		if err := s.vehicle.SendPositionSetpoint(target.X, target.Y, target.Z, s.cfg.Yaw); err != nil {
			return s.fail(res, "retreat", err)
		}
		s.clock.Sleep(s.cfg.SetpointInterval)
	}

	grid := plan.GridOf(plan.Waypoints[i])
	record := mission.NewObstacleRecord(grid)
	res.Obstacle = &record

	e := Event{Kind: EventObstacle, To: Retreating, Grid: &grid, Obstacle: &record}

	if err := s.obstacles.Append(record); err != nil {
		s.logger.Error("failed to log obstacle", slog.String("obstacle", record.String()), slog.Any("error", err))
		e.Error = err.Error()
		s.emit(e)
		return s.finish(res, Aborted)
	}

	s.logger.Info("obstacle logged", slog.String("obstacle", record.String()), slog.Int("waypoint", i))
	s.emit(e)

	s.transition(ObstacleLogged, slog.String("obstacle", record.String()))

	return s.finish(res, Aborted)
}

// finish ends the setpoint session so the link is left in a defined state,
// then enters the terminal state. A run whose shutdown commands are lost ends
// in Aborted.
func (s *Sequencer) finish(res Result, terminal State) (Result, error) {
	if err := s.vehicle.SendStopSetpoint(); err != nil {
		return s.fail(res, "stop setpoint", err)
	}
	if err := s.vehicle.NotifySetpointStop(); err != nil {
		return s.fail(res, "notify setpoint stop", err)
	}
	s.clock.Sleep(s.cfg.DrainDelay)

	s.transition(terminal)
	res.State = terminal

	s.logger.Info("flight finished",
		slog.String("state", terminal.String()),
		slog.Int("visited", res.Visited),
		slog.Bool("interrupted", res.Interrupted),
	)

	return res, nil
}

// fail aborts the run after a link loss. No further command is sent.
func (s *Sequencer) fail(res Result, op string, cause error) (Result, error) {
	err := s.linkError(op, cause)

	s.transition(Aborted, slog.Any("error", err))
	res.State = Aborted

	return res, err
}

func (s *Sequencer) linkError(op string, cause error) *LinkError {
	err := &LinkError{Op: op, Err: cause}
	s.logger.Error("link lost", slog.String("op", op), slog.Any("error", cause), slog.Int("waypoint", s.waypoint))
	return err
}

func (s *Sequencer) transition(to State, attrs ...slog.Attr) {
	from := s.State()
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("flight: invalid transition %s -> %s", from, to))
	}
	s.state.Store(int32(to))

	args := []any{
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Int("waypoint", s.waypoint),
	}
	for _, a := range attrs {
		args = append(args, a)
	}
	s.logger.Info("state transition", args...)

	s.emit(Event{Kind: EventTransition, From: from, To: to})
}

func (s *Sequencer) emit(e Event) {
	e.Time = s.clock.Now()
	e.Waypoint = s.waypoint
	for _, o := range s.observers {
		o.Observe(e)
	}
}

func (s *Sequencer) readSensor() mission.SensorSample {
	snap, _ := s.telemetry.Get()
	return snap.Sensor
}

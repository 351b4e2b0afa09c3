package storage

import (
	"context"
	"io"
	"log/slog"

	"github.com/roman-kulish/grid-pilot/internal/flight"
)

// WithLogger sets the logger for the recorder
func WithLogger(logger *slog.Logger) func(r *FlightRecorder) {
	return func(r *FlightRecorder) {
		r.logger = logger
	}
}

// FlightRecorder writes the events of one run into a Journal. Journal
// failures are logged and never interrupt the flight.
type FlightRecorder struct {
	ctx     context.Context
	journal Journal
	runID   string
	logger  *slog.Logger
}

var _ flight.Observer = (*FlightRecorder)(nil)

func NewFlightRecorder(ctx context.Context, j Journal, runID string, options ...func(r *FlightRecorder)) *FlightRecorder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	r := FlightRecorder{
		ctx:     context.WithoutCancel(ctx),
		journal: j,
		runID:   runID,
		logger:  logger,
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

func (r *FlightRecorder) Observe(e flight.Event) {
	var err error

	switch e.Kind {
	case flight.EventTransition:
		err = r.journal.StoreTransition(r.ctx, r.runID, Transition{
			Timestamp: e.Time,
			From:      e.From.String(),
			To:        e.To.String(),
			Waypoint:  e.Waypoint,
		})
		if err == nil && e.To.Terminal() {
			err = r.journal.FinishRun(r.ctx, r.runID, e.To.String())
		}

	case flight.EventVerdict:
		if e.Verdict == nil {
			return
		}
		err = r.journal.StoreVerdict(r.ctx, r.runID, Verdict{
			Timestamp:  e.Time,
			Waypoint:   e.Waypoint,
			Positive:   e.Verdict.Positive,
			Positives:  e.Verdict.Positives,
			WindowSize: e.Verdict.WindowSize,
			Exempt:     e.Verdict.Exempt,
		})

	case flight.EventObstacle:
		if e.Obstacle == nil {
			return
		}
		o := Obstacle{
			Timestamp: e.Time,
			Waypoint:  e.Waypoint,
			Record:    *e.Obstacle,
			Logged:    e.Error == "",
		}
		if e.Error != "" {
			o.Error = &e.Error
		}
		err = r.journal.StoreObstacle(r.ctx, r.runID, o)
	}

	if err != nil {
		r.logger.Warn("failed to journal flight event", slog.String("kind", string(e.Kind)), slog.Any("error", err))
	}
}

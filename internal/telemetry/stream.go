package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"strings"
	"time"
)

const (
	// ParseErrorsThreshold defines the number of consecutive parse errors allowed
	ParseErrorsThreshold = 5

	// DiagnosticEvery is how many records pass between two diagnostic log lines
	DiagnosticEvery = 200
)

var (
	// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
	ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

	// ErrBrokenPipe is returned when there's an error reading from the source
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrStale is returned when no record arrived while the sensor was sampled
	ErrStale = errors.New("telemetry stale")
)

// message is the wire form of a Record, one JSON document per line:
//
//	{"timestamp": 123456, "data": {"stateEstimate.x": 0.1, "motion.shutter": 1800}}
//
// timestamp is in milliseconds.
type message struct {
	Timestamp *int64             `json:"timestamp"`
	Data      map[string]float64 `json:"data"`
}

// ParseRecord decodes a single line of the stream.
func ParseRecord(line []byte) (Record, error) {
	var m message
	if err := json.Unmarshal(line, &m); err != nil {
		return Record{}, fmt.Errorf("decoding record: %w", err)
	}
	if m.Timestamp == nil {
		return Record{}, errors.New("record has no timestamp")
	}
	if len(m.Data) == 0 {
		return Record{}, errors.New("record has no data")
	}

	return Record{Timestamp: time.UnixMilli(*m.Timestamp).UTC(), Fields: m.Data}, nil
}

// WithLogger sets the logger for the stream
func WithLogger(logger *slog.Logger) func(s *Stream) {
	return func(s *Stream) {
		s.logger = logger
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) func(s *Stream) {
	return func(s *Stream) {
		s.parseErrorsThreshold = threshold
	}
}

// Stream feeds records read from a source into a Cell.
type Stream struct {
	source Source
	cell   *Cell

	parseErrorsThreshold uint8
	logger               *slog.Logger
}

func NewStream(source Source, cell *Cell, options ...func(s *Stream)) *Stream {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	s := Stream{
		source:               source,
		cell:                 cell,
		parseErrorsThreshold: ParseErrorsThreshold,
		logger:               logger,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Run reads the source until ctx is done or the source fails. Any failure
// other than cancellation is recorded on the cell, so readers observe the loss
// of telemetry, and returned.
func (s *Stream) Run(ctx context.Context) error {
	rc, err := s.source.Open(ctx)
	if err != nil {
		err = fmt.Errorf("opening telemetry source %s: %w", s.source, err)
		s.cell.Fail(err)
		return err
	}

	stop := context.AfterFunc(ctx, func() { rc.Close() })
	defer stop()

	err = s.consume(rc)
	rc.Close()

	if ctx.Err() != nil {
		return nil
	}

	if err == nil {
		err = ErrStreamClosed
	}
	s.cell.Fail(err)
	s.logger.Error("telemetry lost", slog.Any("error", err))

	return err
}

func (s *Stream) consume(r io.Reader) error {
	var parseErrors uint8
	var records uint64

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := ParseRecord([]byte(line))
		if err == nil {
			err = s.cell.Update(rec)
		}
		if err != nil {
			parseErrors++
			s.logger.Warn(fmt.Sprintf("error parsing telemetry: %s", err.Error()), slog.String("line", line))

			if parseErrors >= s.parseErrorsThreshold {
				return ErrTooManyParseErrors
			}

			continue
		}

		parseErrors = 0 // reset counter

		if records++; records%DiagnosticEvery == 1 {
			snap, _ := s.cell.Get()
			s.logger.Debug("telemetry",
				slog.Uint64("seq", snap.Seq),
				slog.String("position", snap.Position.String()),
				slog.Float64("sensor", snap.Sensor.Value),
			)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: error reading telemetry: %w", ErrBrokenPipe, err)
	}

	return nil
}

// Package obstacle decides whether the vehicle hovers over an obstacle from
// the readings of its downward optical sensor.
package obstacle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/roman-kulish/grid-pilot/internal/mission"
	"github.com/roman-kulish/grid-pilot/internal/timeutil"
)

const (
	DefaultWindowSize     = 50
	DefaultDebounceCount  = 40
	DefaultSampleInterval = 10 * time.Millisecond
	DefaultThreshold      = 2250
)

// SensorReader returns the latest sensor reading. It must not block.
type SensorReader func() mission.SensorSample

// Config holds the detection parameters.
type Config struct {
	WindowSize     int           // Samples taken per waypoint
	DebounceCount  int           // Positive samples required for a detection
	SampleInterval time.Duration // Pause between two samples
	Threshold      float64       // A sample is positive when strictly above
}

func DefaultConfig() Config {
	return Config{
		WindowSize:     DefaultWindowSize,
		DebounceCount:  DefaultDebounceCount,
		SampleInterval: DefaultSampleInterval,
		Threshold:      DefaultThreshold,
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.WindowSize < 2 {
		errs = append(errs, fmt.Errorf("window size must be at least 2, got %d", c.WindowSize))
	}
	if c.DebounceCount < 1 || c.DebounceCount >= c.WindowSize {
		errs = append(errs, fmt.Errorf("debounce count must be in [1, %d), got %d", c.WindowSize, c.DebounceCount))
	}
	if c.SampleInterval < 0 {
		errs = append(errs, fmt.Errorf("sample interval must not be negative, got %s", c.SampleInterval))
	}
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		errs = append(errs, fmt.Errorf("threshold must be finite, got %g", c.Threshold))
	}

	return errors.Join(errs...)
}

// Verdict is the outcome of one sampling window.
type Verdict struct {
	Positive   bool // Obstacle detected
	Positives  int  // Samples above the threshold
	WindowSize int  // Samples taken
	Exempt     bool // Taken at the first waypoint, never positive
}

// LogValue implements slog.LogValuer.
func (v Verdict) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("positive", v.Positive),
		slog.Int("positives", v.Positives),
		slog.Int("window", v.WindowSize),
		slog.Bool("exempt", v.Exempt),
	)
}

// WithLogger sets the logger for the classifier
func WithLogger(logger *slog.Logger) func(c *Classifier) {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// WithClock sets the clock used to pace samples
func WithClock(clock timeutil.Clock) func(c *Classifier) {
	return func(c *Classifier) {
		c.clock = clock
	}
}

// Classifier is a threshold and debounce denoiser over a fixed window of
// samples. No state is kept between windows.
type Classifier struct {
	cfg    Config
	clock  timeutil.Clock
	logger *slog.Logger
}

func New(cfg Config, options ...func(c *Classifier)) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detection config: %w", err)
	}

	c := Classifier{
		cfg:    cfg,
		clock:  timeutil.RealClock{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c, nil
}

// Config returns the detection parameters.
func (c *Classifier) Config() Config {
	return c.cfg
}

// SampleWindow calls read exactly WindowSize times, pausing SampleInterval
// between calls, and counts the samples above Threshold. The verdict is
// positive when at least DebounceCount samples are, unless first is set: the
// start cell is where the vehicle is placed on purpose.
func (c *Classifier) SampleWindow(read SensorReader, first bool) Verdict {
	v := Verdict{WindowSize: c.cfg.WindowSize, Exempt: first}

	for i := 0; i < c.cfg.WindowSize; i++ {
		if i > 0 {
			c.clock.Sleep(c.cfg.SampleInterval)
		}
		if read().Value > c.cfg.Threshold {
			v.Positives++
		}
	}

	v.Positive = !first && v.Positives >= c.cfg.DebounceCount

	c.logger.Debug("sampling window done", slog.Any("verdict", v))

	return v
}

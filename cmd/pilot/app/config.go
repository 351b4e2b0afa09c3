package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/grid-pilot/internal/calibration"
	"github.com/roman-kulish/grid-pilot/internal/flight"
	"github.com/roman-kulish/grid-pilot/internal/obstacle"
	"github.com/roman-kulish/grid-pilot/internal/path"
	"github.com/roman-kulish/grid-pilot/internal/report"
	"github.com/roman-kulish/grid-pilot/internal/telemetry"
)

const (
	TransportUDP    Transport = "udp"
	TransportSerial Transport = "serial"
)

// Transport selects how a link to the vehicle is carried.
type Transport string

func (t Transport) Validate() error {
	switch t {
	case TransportUDP, TransportSerial:
		return nil
	default:
		return fmt.Errorf("unknown transport %q", t)
	}
}

// Duration is a time.Duration written as "100ms", "1s" or "2m" in the
// configuration file.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config represents the main application configuration
type Config struct {
	Settings    Settings          `yaml:"settings" json:"settings"`
	Vehicle     VehicleConfig     `yaml:"vehicle" json:"vehicle"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" json:"telemetry"`
	Calibration CalibrationConfig `yaml:"calibration" json:"calibration"`
	Path        PathConfig        `yaml:"path" json:"path"`
	Detection   DetectionConfig   `yaml:"detection" json:"detection"`
	Flight      FlightConfig      `yaml:"flight" json:"flight"`
	Obstacles   ObstaclesConfig   `yaml:"obstacles" json:"obstacles"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Monitor     MonitorConfig     `yaml:"monitor" json:"monitor"`
	Report      ReportConfig      `yaml:"report" json:"report"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel" json:"logLevel"`
}

// Level returns the configured log level, info when unset.
func (s Settings) Level() slog.Level {
	var level slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// VehicleConfig is the command link to the flight controller.
type VehicleConfig struct {
	Link        Transport `yaml:"link" json:"link"`
	Address     string    `yaml:"address" json:"address"`         // host:port of the UDP bridge
	Port        string    `yaml:"port" json:"port"`               // Serial device, e.g. /dev/ttyUSB0
	BaudRate    int       `yaml:"baudRate" json:"baudRate"`       // Serial only
	Yaw         float64   `yaml:"yaw" json:"yaw"`                 // Degrees, sent with every setpoint
	RemainValid uint32    `yaml:"remainValid" json:"remainValid"` // Milliseconds the last setpoint stays valid after stop
}

// TelemetryConfig represents telemetry settings
type TelemetryConfig struct {
	Source               Transport          `yaml:"source" json:"source"`
	Address              string             `yaml:"address" json:"address"`
	Port                 string             `yaml:"port" json:"port"`
	BaudRate             int                `yaml:"baudRate" json:"baudRate"`
	ParseErrorsThreshold uint8              `yaml:"parseErrorsThreshold" json:"parseErrorsThreshold"`
	StartupTimeout       Duration           `yaml:"startupTimeout" json:"startupTimeout"` // Wait for the first snapshot
	Fields               telemetry.FieldMap `yaml:"fields" json:"fields"`
}

// CalibrationConfig lists measured grid/vehicle correspondences. Without any,
// paths are flown relative to the vehicle's start position.
type CalibrationConfig struct {
	Correspondences []calibration.Correspondence `yaml:"correspondences" json:"correspondences"`
}

// PathConfig controls how the planner file is compiled.
type PathConfig struct {
	File         string    `yaml:"file" json:"file"`
	Mode         path.Mode `yaml:"mode" json:"mode"`
	FlightHeight float64   `yaml:"flightHeight" json:"flightHeight"` // Meters
	Rotation     float64   `yaml:"rotation" json:"rotation"`         // Degrees, about the first waypoint
	CellSize     float64   `yaml:"cellSize" json:"cellSize"`         // Meters per cell without calibration
}

type DetectionConfig struct {
	WindowSize     int      `yaml:"windowSize" json:"windowSize"`
	DebounceCount  int      `yaml:"debounceCount" json:"debounceCount"`
	SampleInterval Duration `yaml:"sampleInterval" json:"sampleInterval"`
	Threshold      float64  `yaml:"threshold" json:"threshold"`
}

func (c DetectionConfig) classifier() obstacle.Config {
	return obstacle.Config{
		WindowSize:     c.WindowSize,
		DebounceCount:  c.DebounceCount,
		SampleInterval: time.Duration(c.SampleInterval),
		Threshold:      c.Threshold,
	}
}

type FlightConfig struct {
	ArmSettle        Duration             `yaml:"armSettle" json:"armSettle"`
	SetpointRepeats  int                  `yaml:"setpointRepeats" json:"setpointRepeats"`
	SetpointInterval Duration             `yaml:"setpointInterval" json:"setpointInterval"`
	RetreatRepeats   int                  `yaml:"retreatRepeats" json:"retreatRepeats"`
	RetreatHeight    float64              `yaml:"retreatHeight" json:"retreatHeight"`
	RetreatTarget    flight.RetreatTarget `yaml:"retreatTarget" json:"retreatTarget"`
	DrainDelay       Duration             `yaml:"drainDelay" json:"drainDelay"`
}

func (c FlightConfig) sequencer(yaw float64) flight.Config {
	return flight.Config{
		Yaw:              yaw,
		ArmSettle:        time.Duration(c.ArmSettle),
		SetpointRepeats:  c.SetpointRepeats,
		SetpointInterval: time.Duration(c.SetpointInterval),
		RetreatRepeats:   c.RetreatRepeats,
		RetreatHeight:    c.RetreatHeight,
		RetreatTarget:    c.RetreatTarget,
		DrainDelay:       time.Duration(c.DrainDelay),
	}
}

// ObstaclesConfig is where detections are appended for the planner.
type ObstaclesConfig struct {
	File string `yaml:"file" json:"file"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory" json:"dataDirectory"`
}

// MonitorConfig enables the live websocket feed when Listen is set.
type MonitorConfig struct {
	Listen string `yaml:"listen" json:"listen"`
}

// ReportConfig enables NATS obstacle reports when NatsURL is set.
type ReportConfig struct {
	NatsURL string `yaml:"natsUrl" json:"natsUrl"`
	Subject string `yaml:"subject" json:"subject"`
}

// DefaultConfig returns the configuration every file is applied on top of.
func DefaultConfig() *Config {
	det := obstacle.DefaultConfig()
	fl := flight.DefaultConfig()

	return &Config{
		Settings: Settings{LogLevel: "info"},
		Vehicle: VehicleConfig{
			Link:        TransportUDP,
			BaudRate:    115200,
			Yaw:         fl.Yaw,
			RemainValid: 100,
		},
		Telemetry: TelemetryConfig{
			Source:               TransportUDP,
			BaudRate:             115200,
			ParseErrorsThreshold: telemetry.ParseErrorsThreshold,
			StartupTimeout:       Duration(5 * time.Second),
			Fields:               telemetry.DefaultFieldMap(),
		},
		Path: PathConfig{
			Mode:         path.ModeCorners,
			FlightHeight: 0.15,
			CellSize:     path.DefaultCellSize,
		},
		Detection: DetectionConfig{
			WindowSize:     det.WindowSize,
			DebounceCount:  det.DebounceCount,
			SampleInterval: Duration(det.SampleInterval),
			Threshold:      det.Threshold,
		},
		Flight: FlightConfig{
			ArmSettle:        Duration(fl.ArmSettle),
			SetpointRepeats:  fl.SetpointRepeats,
			SetpointInterval: Duration(fl.SetpointInterval),
			RetreatRepeats:   fl.RetreatRepeats,
			RetreatHeight:    fl.RetreatHeight,
			RetreatTarget:    fl.RetreatTarget,
			DrainDelay:       Duration(fl.DrainDelay),
		},
		Obstacles: ObstaclesConfig{File: "obstacles.csv"},
		Storage:   StorageConfig{DataDirectory: storageDir},
		Report:    ReportConfig{Subject: report.DefaultSubject},
	}
}

// LoadConfig reads the YAML file at name over DefaultConfig and validates it.
func LoadConfig(name string) (*Config, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	var errs []error

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("settings: %w", err))
	}

	if err := validateEndpoint(c.Vehicle.Link, c.Vehicle.Address, c.Vehicle.Port, c.Vehicle.BaudRate); err != nil {
		errs = append(errs, fmt.Errorf("vehicle: %w", err))
	}
	if err := validateEndpoint(c.Telemetry.Source, c.Telemetry.Address, c.Telemetry.Port, c.Telemetry.BaudRate); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	if c.Telemetry.StartupTimeout < 0 {
		errs = append(errs, errors.New("telemetry: startup timeout must not be negative"))
	}
	if c.Telemetry.ParseErrorsThreshold == 0 {
		errs = append(errs, errors.New("telemetry: parse errors threshold must be positive"))
	}
	f := c.Telemetry.Fields
	if f.X == "" || f.Y == "" || f.Z == "" || f.Sensor == "" {
		errs = append(errs, errors.New("telemetry: every field name must be set"))
	}

	if n := len(c.Calibration.Correspondences); n == 1 {
		errs = append(errs, errors.New("calibration: at least 2 correspondences required"))
	}

	if c.Path.File == "" {
		errs = append(errs, errors.New("path: file is required"))
	}
	if err := c.Path.Mode.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("path: %w", err))
	}
	if math.IsNaN(c.Path.FlightHeight) || c.Path.FlightHeight <= 0 {
		errs = append(errs, fmt.Errorf("path: flight height must be positive, got %g", c.Path.FlightHeight))
	}
	if math.IsNaN(c.Path.Rotation) || math.IsInf(c.Path.Rotation, 0) {
		errs = append(errs, fmt.Errorf("path: rotation must be finite, got %g", c.Path.Rotation))
	}

	if err := c.Detection.classifier().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("detection: %w", err))
	}
	if err := c.Flight.sequencer(c.Vehicle.Yaw).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("flight: %w", err))
	}

	if c.Obstacles.File == "" {
		errs = append(errs, errors.New("obstacles: file is required"))
	}
	if c.Report.NatsURL != "" && c.Report.Subject == "" {
		errs = append(errs, errors.New("report: subject is required"))
	}

	return errors.Join(errs...)
}

// RotationRadians returns the configured path rotation in radians.
func (c *Config) RotationRadians() float64 {
	return c.Path.Rotation * math.Pi / 180
}

func validateEndpoint(t Transport, address, port string, baudRate int) error {
	if err := t.Validate(); err != nil {
		return err
	}

	switch t {
	case TransportUDP:
		if address == "" {
			return errors.New("udp address is required")
		}
	case TransportSerial:
		if port == "" {
			return errors.New("serial port is required")
		}
		if baudRate <= 0 {
			return fmt.Errorf("invalid baud rate %d", baudRate)
		}
	}

	return nil
}

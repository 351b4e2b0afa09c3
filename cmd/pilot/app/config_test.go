package app

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/grid-pilot/internal/flight"
	"github.com/roman-kulish/grid-pilot/internal/mission"
	"github.com/roman-kulish/grid-pilot/internal/path"
	"github.com/roman-kulish/grid-pilot/internal/telemetry"
)

const sampleConfig = `
settings:
  logLevel: debug
vehicle:
  link: serial
  port: /dev/ttyUSB0
  yaw: 45
telemetry:
  address: ":9630"
  startupTimeout: 2s
calibration:
  correspondences:
    - grid: {x: 2, y: 15}
      vehicle: {x: -0.31, y: -0.18}
    - grid: {x: 2, y: 2}
      vehicle: {x: -0.31, y: 1.12}
    - grid: {x: 15, y: 2}
      vehicle: {x: 1.00, y: 1.12}
path:
  file: path.csv
  mode: full
  rotation: 90
detection:
  windowSize: 20
  debounceCount: 15
  sampleInterval: 5ms
flight:
  retreatTarget: origin
  setpointInterval: 50ms
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	name := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
	return name
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, config.Settings.Level())

	assert.Equal(t, TransportSerial, config.Vehicle.Link)
	assert.Equal(t, "/dev/ttyUSB0", config.Vehicle.Port)
	assert.Equal(t, 115200, config.Vehicle.BaudRate)
	assert.Equal(t, 45.0, config.Vehicle.Yaw)

	assert.Equal(t, TransportUDP, config.Telemetry.Source)
	assert.Equal(t, Duration(2*time.Second), config.Telemetry.StartupTimeout)
	assert.Equal(t, telemetry.DefaultFieldMap(), config.Telemetry.Fields)

	require.Len(t, config.Calibration.Correspondences, 3)
	assert.Equal(t, mission.GridPoint{X: 15, Y: 2}, config.Calibration.Correspondences[2].Grid)
	assert.Equal(t, 1.12, config.Calibration.Correspondences[2].Vehicle.Y)

	assert.Equal(t, path.ModeFull, config.Path.Mode)
	assert.Equal(t, 0.15, config.Path.FlightHeight)
	assert.InDelta(t, math.Pi/2, config.RotationRadians(), 1e-12)

	det := config.Detection.classifier()
	assert.Equal(t, 20, det.WindowSize)
	assert.Equal(t, 15, det.DebounceCount)
	assert.Equal(t, 5*time.Millisecond, det.SampleInterval)
	assert.Equal(t, 2250.0, det.Threshold)

	fl := config.Flight.sequencer(config.Vehicle.Yaw)
	assert.Equal(t, flight.RetreatOrigin, fl.RetreatTarget)
	assert.Equal(t, 50*time.Millisecond, fl.SetpointInterval)
	assert.Equal(t, 10, fl.SetpointRepeats)
	assert.Equal(t, 45.0, fl.Yaw)

	assert.Equal(t, "obstacles.csv", config.Obstacles.File)
	assert.Equal(t, storageDir, config.Storage.DataDirectory)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "bad duration",
			content: "telemetry: {address: ':1', startupTimeout: soon}\npath: {file: a.csv}",
		},
		{
			name:    "zero parse errors threshold",
			content: "telemetry: {address: ':1', parseErrorsThreshold: 0}\npath: {file: a.csv}",
		},
		{
			name:    "missing path file",
			content: "telemetry: {address: ':1'}",
		},
		{
			name:    "missing udp address",
			content: "path: {file: a.csv}",
		},
		{
			name:    "unknown mode",
			content: "telemetry: {address: ':1'}\npath: {file: a.csv, mode: zigzag}",
		},
		{
			name:    "debounce not below window",
			content: "telemetry: {address: ':1'}\npath: {file: a.csv}\ndetection: {windowSize: 10, debounceCount: 10}",
		},
		{
			name:    "single correspondence",
			content: "telemetry: {address: ':1'}\npath: {file: a.csv}\ncalibration: {correspondences: [{grid: {x: 1, y: 1}, vehicle: {x: 0, y: 0}}]}",
		},
		{
			name:    "unknown log level",
			content: "settings: {logLevel: chatty}\ntelemetry: {address: ':1'}\npath: {file: a.csv}",
		},
		{
			name:    "unknown retreat target",
			content: "telemetry: {address: ':1'}\npath: {file: a.csv}\nflight: {retreatTarget: home}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, "vehicle: {address: '127.0.0.1:2390'}\n"+tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateTransform(t *testing.T) {
	tr, err := createTransform(&CalibrationConfig{})
	require.NoError(t, err)
	assert.Nil(t, tr)

	config, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	tr, err = createTransform(&config.Calibration)
	require.NoError(t, err)
	assert.Equal(t, mission.GridPoint{X: 2, Y: 15}, tr.ToGrid(mission.VehiclePoint{X: -0.31, Y: -0.18}))
}

func TestCreateStorage(t *testing.T) {
	dir := t.TempDir()

	journal, err := createStorage(&StorageConfig{DataDirectory: dir})
	require.NoError(t, err)
	require.NoError(t, journal.Close())

	_, err = createStorage(&StorageConfig{DataDirectory: filepath.Join(dir, "missing")})
	assert.Error(t, err)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = createStorage(&StorageConfig{DataDirectory: file})
	assert.Error(t, err)
}

func TestWaitForTelemetry(t *testing.T) {
	fields := telemetry.DefaultFieldMap()

	t.Run("snapshot", func(t *testing.T) {
		cell := telemetry.NewCell(fields)
		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = cell.Update(telemetry.Record{
				Timestamp: time.Now(),
				Fields:    map[string]float64{fields.X: 1, fields.Y: 2, fields.Z: 0, fields.Sensor: 100},
			})
		}()

		assert.NoError(t, waitForTelemetry(context.Background(), cell, time.Second))
	})

	t.Run("timeout", func(t *testing.T) {
		cell := telemetry.NewCell(fields)
		assert.Error(t, waitForTelemetry(context.Background(), cell, 10*time.Millisecond))
	})

	t.Run("stream failed", func(t *testing.T) {
		cell := telemetry.NewCell(fields)
		cell.Fail(telemetry.ErrTooManyParseErrors)

		err := waitForTelemetry(context.Background(), cell, time.Second)
		assert.ErrorIs(t, err, telemetry.ErrTooManyParseErrors)
	})
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/grid-pilot/internal/calibration"
	"github.com/roman-kulish/grid-pilot/internal/flight"
	"github.com/roman-kulish/grid-pilot/internal/link"
	"github.com/roman-kulish/grid-pilot/internal/monitor"
	"github.com/roman-kulish/grid-pilot/internal/obstacle"
	"github.com/roman-kulish/grid-pilot/internal/path"
	"github.com/roman-kulish/grid-pilot/internal/planner"
	"github.com/roman-kulish/grid-pilot/internal/report"
	"github.com/roman-kulish/grid-pilot/internal/storage"
	"github.com/roman-kulish/grid-pilot/internal/telemetry"
)

const (
	storageDir = "data"

	telemetryPollInterval = 50 * time.Millisecond
)

// Run flies the configured planner file once. Everything that can be checked
// without the vehicle is resolved before the first command is sent.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	start := time.Now()

	transform, err := createTransform(&config.Calibration)
	if err != nil {
		return err
	}
	if transform != nil {
		logger.Info("calibration loaded", slog.Any("transform", transform))
	}

	compiler, err := path.NewCompiler(transform, config.Path.FlightHeight,
		path.WithLogger(logger),
		path.WithMode(config.Path.Mode),
		path.WithRotation(config.RotationRadians()),
		path.WithCellSize(config.Path.CellSize),
	)
	if err != nil {
		return fmt.Errorf("failed to create path compiler: %w", err)
	}
	plan := compiler.CompileFile(config.Path.File)

	classifier, err := obstacle.New(config.Detection.classifier(), obstacle.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	journal, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer journal.Close()

	runID, err := journal.CreateRun(ctx, config.Path.File, config)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	if err = journal.StoreWaypoints(ctx, runID, plan.Grid, plan.Waypoints); err != nil {
		return fmt.Errorf("failed to store waypoints: %w", err)
	}

	logger = logger.With(slog.String("run", runID))

	// telemetry outlives ctx so a cancelled run can still finish its window
	streamCtx, stopStream := context.WithCancel(context.WithoutCancel(ctx))
	defer stopStream()

	cell := telemetry.NewCell(config.Telemetry.Fields)
	stream := telemetry.NewStream(createSource(&config.Telemetry), cell,
		telemetry.WithLogger(logger),
		telemetry.WithParseErrorsThreshold(config.Telemetry.ParseErrorsThreshold),
	)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		_ = stream.Run(streamCtx)
	}()

	if err = waitForTelemetry(ctx, cell, time.Duration(config.Telemetry.StartupTimeout)); err != nil {
		logger.Warn("no telemetry before flight", slog.Any("error", err))
	}
	if ctx.Err() != nil {
		return nil
	}

	transport, err := createTransport(&config.Vehicle)
	if err != nil {
		return fmt.Errorf("failed to open vehicle link: %w", err)
	}
	vehicle := link.NewVehicle(transport,
		link.WithLogger(logger),
		link.WithRemainValid(config.Vehicle.RemainValid),
	)
	defer vehicle.Close()

	options := []func(s *flight.Sequencer){
		flight.WithLogger(logger),
		flight.WithObserver(storage.NewFlightRecorder(ctx, journal, runID, storage.WithLogger(logger))),
	}

	if config.Monitor.Listen != "" {
		hub := monitor.NewHub(monitor.WithLogger(logger))
		go func() {
			if err := hub.ListenAndServe(streamCtx, config.Monitor.Listen); err != nil {
				logger.Error("monitor stopped", slog.Any("error", err))
			}
		}()
		options = append(options, flight.WithObserver(hub))
	}

	if config.Report.NatsURL != "" {
		conn, err := report.Connect(config.Report.NatsURL, logger)
		if err != nil {
			logger.Warn("obstacle reports disabled", slog.Any("error", err))
		} else {
			publisher := report.NewPublisher(conn, config.Report.Subject, runID, report.WithLogger(logger))
			defer publisher.Close()
			options = append(options, flight.WithObserver(publisher))
		}
	}

	sequencer, err := flight.NewSequencer(vehicle, cell, classifier, planner.NewObstacleLog(config.Obstacles.File),
		config.Flight.sequencer(config.Vehicle.Yaw), options...)
	if err != nil {
		return err
	}

	result, err := sequencer.Run(ctx, plan)

	stopStream()
	<-streamDone

	attrs := []any{
		slog.String("state", result.State.String()),
		slog.String("visited", fmt.Sprintf("%d/%d", result.Visited, plan.Len())),
		slog.String("packets", humanize.Comma(int64(vehicle.Sent()))),
		slog.String("started", humanize.Time(start)),
		slog.Bool("interrupted", result.Interrupted),
	}
	if result.Obstacle != nil {
		attrs = append(attrs, slog.String("obstacle", result.Obstacle.String()))
	}
	logger.Info("flight finished", attrs...)

	return err
}

func createTransform(config *CalibrationConfig) (*calibration.Transform, error) {
	if len(config.Correspondences) == 0 {
		return nil, nil
	}

	t, err := calibration.New(config.Correspondences)
	if err != nil {
		return nil, fmt.Errorf("failed to calibrate: %w", err)
	}
	return t, nil
}

func createTransport(config *VehicleConfig) (link.Transport, error) {
	switch config.Link {
	case TransportUDP:
		t, err := link.DialUDP(config.Address)
		if err != nil {
			return nil, err
		}
		return t, nil

	case TransportSerial:
		t, err := link.OpenSerial(config.Port, config.BaudRate)
		if err != nil {
			return nil, err
		}
		return t, nil

	default:
		return nil, fmt.Errorf("unknown link '%s'", config.Link)
	}
}

func createSource(config *TelemetryConfig) telemetry.Source {
	if config.Source == TransportSerial {
		return telemetry.SerialSource{Port: config.Port, BaudRate: config.BaudRate}
	}
	return telemetry.UDPSource{Address: config.Address}
}

// waitForTelemetry blocks until the cell holds a snapshot, the stream fails,
// timeout passes or ctx is done.
func waitForTelemetry(ctx context.Context, cell *telemetry.Cell, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(telemetryPollInterval)
	defer ticker.Stop()

	for {
		if _, ok := cell.Get(); ok {
			return nil
		}
		if err := cell.Err(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("no snapshot within %s", timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteJournal, error) {
	dbPath := config.DataDirectory
	if dbPath == "" {
		dbPath = storageDir
	}

	if !filepath.IsAbs(dbPath) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dbPath = filepath.Join(wd, dbPath)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, err
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("flight_%s.sqlite", time.Now().UTC().Format("20060102_150405")))

	return storage.NewSqliteJournal(dbPath), nil
}

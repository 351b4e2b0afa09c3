package app

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/grid-pilot/internal/storage"
)

var ErrNoRuns = errors.New("journal has no runs")

func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	journal := storage.NewSqliteJournal(config.DBPath)
	defer journal.Close()

	if config.List {
		return listRuns(ctx, journal, logger)
	}

	m, err := readFlightMap(ctx, journal, config.RunID)
	if err != nil {
		return err
	}

	logger.Info("run loaded",
		slog.String("run", m.Run.ID),
		slog.String("plannerFile", m.Run.PlannerFile),
		slog.Int("waypoints", len(m.Waypoints)),
		slog.Int("positives", len(m.Positives())),
		slog.Int("obstacles", len(m.Obstacles)),
	)

	renderer, err := NewMapRenderer(RenderConfig{
		CellPixels:    config.CellPixels,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating map renderer: %w", err)
	}

	img, err := renderer.Render(m)
	if err != nil {
		return fmt.Errorf("rendering map: %w", err)
	}

	logger.Info("writing map",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.Int("width", img.Bounds().Dx()),
			slog.Int("height", img.Bounds().Dy()),
		))

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return png.Encode(out, img)
}

func listRuns(ctx context.Context, journal storage.Journal, logger *slog.Logger) error {
	runs, err := journal.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return ErrNoRuns
	}

	for _, run := range runs {
		attrs := []any{
			slog.String("run", run.ID),
			slog.String("started", humanize.Time(run.StartTime)),
			slog.String("plannerFile", run.PlannerFile),
		}
		if run.FinalState != nil {
			attrs = append(attrs, slog.String("state", *run.FinalState))
		}
		logger.Info("run", attrs...)
	}
	return nil
}

// readFlightMap loads runID, or the latest run when runID is empty.
func readFlightMap(ctx context.Context, journal storage.Journal, runID string) (*FlightMap, error) {
	var run *storage.Run
	if runID == "" {
		runs, err := journal.Runs(ctx)
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, ErrNoRuns
		}
		run = runs[len(runs)-1]
	} else {
		var err error
		if run, err = journal.Run(ctx, runID); err != nil {
			return nil, err
		}
	}

	waypoints, err := journal.Waypoints(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	verdicts, err := journal.Verdicts(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	obstacles, err := journal.Obstacles(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	return NewFlightMap(run, waypoints, verdicts, obstacles), nil
}

package app

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/grid-pilot/internal/mission"
	"github.com/roman-kulish/grid-pilot/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func seedJournal(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "flight.sqlite")

	j := storage.NewSqliteJournal(dbPath)
	defer j.Close()

	runID, err := j.CreateRun(ctx, "path.csv", nil)
	require.NoError(t, err)

	grid := []mission.GridPoint{{X: 2, Y: 2}, {X: 3, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 3}}
	waypoints := make(mission.WaypointSequence, len(grid))
	for i, g := range grid {
		waypoints[i] = mission.VehiclePoint{X: g.X * 0.1, Y: -g.Y * 0.1, Z: 0.15}
	}
	require.NoError(t, j.StoreWaypoints(ctx, runID, grid, waypoints))

	now := time.Now().UTC()
	for i := range grid {
		var positives int
		if i == 3 {
			positives = 45
		}
		require.NoError(t, j.StoreVerdict(ctx, runID, storage.Verdict{
			Timestamp:  now,
			Waypoint:   i,
			Positive:   i == 3,
			Positives:  positives,
			WindowSize: 50,
			Exempt:     i == 0,
		}))
	}
	require.NoError(t, j.StoreObstacle(ctx, runID, storage.Obstacle{
		Timestamp: now,
		Waypoint:  3,
		Record:    mission.ObstacleRecord{GridX: 4, GridY: 3},
		Logged:    true,
	}))
	require.NoError(t, j.FinishRun(ctx, runID, "aborted"))

	return dbPath
}

func TestRun_RendersLatestRun(t *testing.T) {
	dbPath := seedJournal(t)
	out := filepath.Join(t.TempDir(), "map.png")

	err := Run(context.Background(), &Config{DBPath: dbPath, OutputFile: out, CellPixels: 32}, discard)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)

	// 5 columns (1..5) and 4 rows (1..4) including the margin
	assert.Equal(t, 5*32+defaultLeftBorder+defaultRightBorder, img.Bounds().Dx())
	assert.Equal(t, 4*32+defaultTopBorder+defaultBottomBorder, img.Bounds().Dy())

	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, rgba(img, 0, 0))

	// inside the obstacle cell (4,3), away from the path
	x := defaultLeftBorder + (4-1)*32 + 3
	y := defaultTopBorder + (3-1)*32 + 3
	assert.Equal(t, rgba(image.NewUniform(obstacleFill), 0, 0), rgba(img, x, y))

	// an empty cell stays white
	x = defaultLeftBorder + (2-1)*32 + 16
	y = defaultTopBorder + (4-1)*32 + 16
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, rgba(img, x, y))
}

func TestRun_List(t *testing.T) {
	dbPath := seedJournal(t)
	assert.NoError(t, Run(context.Background(), &Config{DBPath: dbPath, List: true}, discard))
}

func TestRun_Errors(t *testing.T) {
	err := Run(context.Background(), &Config{DBPath: filepath.Join(t.TempDir(), "missing.sqlite")}, discard)
	assert.ErrorIs(t, err, os.ErrNotExist)

	dbPath := seedJournal(t)
	err = Run(context.Background(), &Config{DBPath: dbPath, RunID: "nope", OutputFile: filepath.Join(t.TempDir(), "m.png")}, discard)
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

func TestNewFlightMap(t *testing.T) {
	m := NewFlightMap(nil, nil, nil, nil)
	assert.Equal(t, 3, m.Columns())
	assert.Equal(t, 3, m.Rows())

	m = NewFlightMap(nil,
		[]storage.Waypoint{{Grid: mission.GridPoint{X: 7, Y: 1}}, {Grid: mission.GridPoint{X: 9.4, Y: 1}}},
		[]storage.Verdict{{Waypoint: 0}, {Waypoint: 1, Positive: true}},
		[]storage.Obstacle{{Record: mission.ObstacleRecord{GridX: 9, GridY: 6}}},
	)
	assert.Equal(t, 6, m.MinX)
	assert.Equal(t, 10, m.MaxX)
	assert.Equal(t, 0, m.MinY)
	assert.Equal(t, 7, m.MaxY)
	assert.Len(t, m.Positives(), 1)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid", config: Config{DBPath: "a.sqlite", OutputFile: "map", CellPixels: 32}},
		{name: "list needs no output", config: Config{DBPath: "a.sqlite", List: true}},
		{name: "no db", config: Config{OutputFile: "map", CellPixels: 32}, wantErr: true},
		{name: "no output", config: Config{DBPath: "a.sqlite", CellPixels: 32}, wantErr: true},
		{name: "tiny cells", config: Config{DBPath: "a.sqlite", OutputFile: "map", CellPixels: 2}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func rgba(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

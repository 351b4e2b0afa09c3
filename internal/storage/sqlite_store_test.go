package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/grid-pilot/internal/flight"
	"github.com/roman-kulish/grid-pilot/internal/mission"
	"github.com/roman-kulish/grid-pilot/internal/obstacle"
)

func newJournal(t *testing.T) *SqliteJournal {
	t.Helper()

	j := NewSqliteJournal(filepath.Join(t.TempDir(), "journal.db"))
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("closing journal: %v", err)
		}
	})
	return j
}

func TestSqliteJournal_Run(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)

	id, err := j.CreateRun(ctx, "path.csv", map[string]any{"height": 0.15})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, j.FinishRun(ctx, id, "aborted"))

	run, err := j.Run(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, id, run.ID)
	assert.Equal(t, "path.csv", run.PlannerFile)
	require.NotNil(t, run.Config)
	assert.JSONEq(t, `{"height": 0.15}`, *run.Config)
	require.NotNil(t, run.FinalState)
	assert.Equal(t, "aborted", *run.FinalState)
	require.NotNil(t, run.EndTime)
	assert.False(t, run.EndTime.Before(run.StartTime))

	runs, err := j.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = j.Run(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSqliteJournal_Waypoints(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)

	id, err := j.CreateRun(ctx, "path.csv", nil)
	require.NoError(t, err)

	grid := []mission.GridPoint{{X: 2, Y: 15}, {X: 8, Y: 2}}
	wps := mission.WaypointSequence{{X: -0.31, Y: -0.18, Z: 0.15}, {X: 0.29, Y: 1.12, Z: 0.15}}
	require.NoError(t, j.StoreWaypoints(ctx, id, grid, wps))

	assert.Error(t, j.StoreWaypoints(ctx, id, grid[:1], wps))

	got, err := j.Waypoints(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []Waypoint{
		{Seq: 0, Grid: grid[0], Vehicle: wps[0]},
		{Seq: 1, Grid: grid[1], Vehicle: wps[1]},
	}, got)
}

func TestFlightRecorder(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)

	id, err := j.CreateRun(ctx, "path.csv", nil)
	require.NoError(t, err)

	now := time.Date(2025, time.May, 20, 14, 0, 0, 0, time.UTC)
	r := NewFlightRecorder(ctx, j, id)

	record := mission.ObstacleRecord{GridX: 8, GridY: 2}
	verdict := obstacle.Verdict{Positive: true, Positives: 47, WindowSize: 50}

	r.Observe(flight.Event{Kind: flight.EventTransition, Time: now, From: flight.Idle, To: flight.Arming, Waypoint: -1})
	r.Observe(flight.Event{Kind: flight.EventVerdict, Time: now, To: flight.Sampling, Waypoint: 1, Verdict: &verdict})
	r.Observe(flight.Event{Kind: flight.EventObstacle, Time: now, Waypoint: 1, Obstacle: &record})
	r.Observe(flight.Event{Kind: flight.EventTransition, Time: now, From: flight.ObstacleLogged, To: flight.Aborted, Waypoint: 1})

	transitions, err := j.Transitions(ctx, id)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, "idle", transitions[0].From)
	assert.Equal(t, "aborted", transitions[1].To)
	assert.True(t, now.Equal(transitions[0].Timestamp))

	verdicts, err := j.Verdicts(ctx, id)
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Positive)
	assert.Equal(t, 47, verdicts[0].Positives)

	obstacles, err := j.Obstacles(ctx, id)
	require.NoError(t, err)
	require.Len(t, obstacles, 1)
	assert.Equal(t, record, obstacles[0].Record)
	assert.True(t, obstacles[0].Logged)
	assert.Nil(t, obstacles[0].Error)

	run, err := j.Run(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, run.FinalState)
	assert.Equal(t, "aborted", *run.FinalState)
}

package storage

import (
	_ "embed"
)

const (
	insertRunSQL = `
INSERT INTO runs (id,
                  start_time,
                  planner_file,
                  config)
VALUES (?, ?, ?, ?)`

	finishRunSQL = `
UPDATE runs
SET end_time    = ?,
    final_state = ?
WHERE id = ?`

	selectRunSQL = `
SELECT id,
       start_time,
       end_time,
       final_state,
       planner_file,
       config
FROM runs
WHERE id = ?`

	selectRunsSQL = `
SELECT id,
       start_time,
       end_time,
       final_state,
       planner_file,
       config
FROM runs
ORDER BY start_time`

	insertWaypointSQL = `
INSERT INTO waypoints (run_id,
                       seq,
                       grid_x,
                       grid_y,
                       x,
                       y,
                       z)
VALUES `

	selectWaypointsSQL = `
SELECT seq,
       grid_x,
       grid_y,
       x,
       y,
       z
FROM waypoints
WHERE run_id = ?
ORDER BY seq`

	insertTransitionSQL = `
INSERT INTO transitions (run_id,
                         timestamp,
                         from_state,
                         to_state,
                         waypoint)
VALUES (?, ?, ?, ?, ?)`

	selectTransitionsSQL = `
SELECT timestamp,
       from_state,
       to_state,
       waypoint
FROM transitions
WHERE run_id = ?
ORDER BY id`

	insertVerdictSQL = `
INSERT INTO verdicts (run_id,
                      timestamp,
                      waypoint,
                      positive,
                      positives,
                      window_size,
                      exempt)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectVerdictsSQL = `
SELECT timestamp,
       waypoint,
       positive,
       positives,
       window_size,
       exempt
FROM verdicts
WHERE run_id = ?
ORDER BY id`

	insertObstacleSQL = `
INSERT INTO obstacles (run_id,
                       timestamp,
                       waypoint,
                       grid_x,
                       grid_y,
                       logged,
                       error)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectObstaclesSQL = `
SELECT timestamp,
       waypoint,
       grid_x,
       grid_y,
       logged,
       error
FROM obstacles
WHERE run_id = ?
ORDER BY id`
)

//go:embed schema.sql
var schemaSQL string

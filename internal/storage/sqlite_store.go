package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/grid-pilot/internal/mission"
)

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("run not found")

// SqliteJournal handles database operations
type SqliteJournal struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Journal = (*SqliteJournal)(nil)

// NewSqliteJournal creates a journal backed by the Sqlite database at dbPath.
// Connections are opened on first use.
func NewSqliteJournal(dbPath string) *SqliteJournal {
	return &SqliteJournal{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteJournal) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteJournal) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// exec runs a single write statement.
func (s *SqliteJournal) exec(ctx context.Context, query string, args ...any) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	_, err = stmt.ExecContext(ctx, args...)
	return err
}

// query runs a read statement and calls scan for every row.
func (s *SqliteJournal) query(ctx context.Context, query string, scan func(rows *sql.Rows) error, args ...any) (err error) {
	db, err := s.getReadDB()
	if err != nil {
		return fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		if err = scan(rows); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
	}
	return rows.Err()
}

func (s *SqliteJournal) CreateRun(ctx context.Context, plannerFile string, config any) (runID string, err error) {
	var configData sql.NullString

	if config != nil {
		switch c := config.(type) {
		case string:
			configData = toNullString(c)

		case []byte:
			configData = toNullString(string(c))

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}
			configData = toNullString(string(p))
		}
	}

	runID = uuid.NewString()

	if err = s.exec(ctx, insertRunSQL, runID, time.Now().UTC(), toNullString(plannerFile), configData); err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return runID, nil
}

func (s *SqliteJournal) FinishRun(ctx context.Context, runID string, finalState string) error {
	if err := s.exec(ctx, finishRunSQL, time.Now().UTC(), finalState, runID); err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var (
		run         Run
		endTime     sql.NullTime
		finalState  sql.NullString
		plannerFile sql.NullString
		config      sql.NullString
	)
	if err := row.Scan(&run.ID, &run.StartTime, &endTime, &finalState, &plannerFile, &config); err != nil {
		return nil, err
	}

	run.EndTime = fromNullTime(endTime)
	run.FinalState = fromNullString(finalState)
	run.PlannerFile = plannerFile.String
	run.Config = fromNullString(config)

	return &run, nil
}

func (s *SqliteJournal) Run(ctx context.Context, runID string) (run *Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	run, err = scanRun(stmt.QueryRowContext(ctx, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	return run, nil
}

func (s *SqliteJournal) Runs(ctx context.Context) (runs []*Run, err error) {
	err = s.query(ctx, selectRunsSQL, func(rows *sql.Rows) error {
		run, err := scanRun(rows)
		if err != nil {
			return err
		}
		runs = append(runs, run)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading runs: %w", err)
	}
	return runs, nil
}

func (s *SqliteJournal) StoreWaypoints(ctx context.Context, runID string, grid []mission.GridPoint, waypoints mission.WaypointSequence) (err error) {
	if len(grid) != len(waypoints) {
		return fmt.Errorf("got %d grid points for %d waypoints", len(grid), len(waypoints))
	}
	if len(waypoints) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	// Prepare values array
	values := make([]any, 0, len(waypoints)*7)

	// Build batch insert query
	valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?)"

	var sb strings.Builder

	sb.WriteString(insertWaypointSQL)

	for i, w := range waypoints {
		values = append(values, runID, i, grid[i].X, grid[i].Y, w.X, w.Y, w.Z)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	// Single batch insert
	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting waypoints: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteJournal) Waypoints(ctx context.Context, runID string) (waypoints []Waypoint, err error) {
	err = s.query(ctx, selectWaypointsSQL, func(rows *sql.Rows) error {
		var w Waypoint
		if err := rows.Scan(&w.Seq, &w.Grid.X, &w.Grid.Y, &w.Vehicle.X, &w.Vehicle.Y, &w.Vehicle.Z); err != nil {
			return err
		}
		waypoints = append(waypoints, w)
		return nil
	}, runID)
	if err != nil {
		return nil, fmt.Errorf("reading waypoints: %w", err)
	}
	return waypoints, nil
}

func (s *SqliteJournal) StoreTransition(ctx context.Context, runID string, t Transition) error {
	if err := s.exec(ctx, insertTransitionSQL, runID, t.Timestamp.UTC(), t.From, t.To, t.Waypoint); err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	return nil
}

func (s *SqliteJournal) Transitions(ctx context.Context, runID string) (transitions []Transition, err error) {
	err = s.query(ctx, selectTransitionsSQL, func(rows *sql.Rows) error {
		var t Transition
		if err := rows.Scan(&t.Timestamp, &t.From, &t.To, &t.Waypoint); err != nil {
			return err
		}
		transitions = append(transitions, t)
		return nil
	}, runID)
	if err != nil {
		return nil, fmt.Errorf("reading transitions: %w", err)
	}
	return transitions, nil
}

func (s *SqliteJournal) StoreVerdict(ctx context.Context, runID string, v Verdict) error {
	err := s.exec(ctx, insertVerdictSQL, runID, v.Timestamp.UTC(), v.Waypoint, v.Positive, v.Positives, v.WindowSize, v.Exempt)
	if err != nil {
		return fmt.Errorf("inserting verdict: %w", err)
	}
	return nil
}

func (s *SqliteJournal) Verdicts(ctx context.Context, runID string) (verdicts []Verdict, err error) {
	err = s.query(ctx, selectVerdictsSQL, func(rows *sql.Rows) error {
		var v Verdict
		if err := rows.Scan(&v.Timestamp, &v.Waypoint, &v.Positive, &v.Positives, &v.WindowSize, &v.Exempt); err != nil {
			return err
		}
		verdicts = append(verdicts, v)
		return nil
	}, runID)
	if err != nil {
		return nil, fmt.Errorf("reading verdicts: %w", err)
	}
	return verdicts, nil
}

func (s *SqliteJournal) StoreObstacle(ctx context.Context, runID string, o Obstacle) error {
	var errText sql.NullString
	if o.Error != nil {
		errText = sql.NullString{String: *o.Error, Valid: true}
	}

	err := s.exec(ctx, insertObstacleSQL, runID, o.Timestamp.UTC(), o.Waypoint, o.Record.GridX, o.Record.GridY, o.Logged, errText)
	if err != nil {
		return fmt.Errorf("inserting obstacle: %w", err)
	}
	return nil
}

func (s *SqliteJournal) Obstacles(ctx context.Context, runID string) (obstacles []Obstacle, err error) {
	err = s.query(ctx, selectObstaclesSQL, func(rows *sql.Rows) error {
		var (
			o       Obstacle
			errText sql.NullString
		)
		if err := rows.Scan(&o.Timestamp, &o.Waypoint, &o.Record.GridX, &o.Record.GridY, &o.Logged, &errText); err != nil {
			return err
		}
		o.Error = fromNullString(errText)
		obstacles = append(obstacles, o)
		return nil
	}, runID)
	if err != nil {
		return nil, fmt.Errorf("reading obstacles: %w", err)
	}
	return obstacles, nil
}

func (s *SqliteJournal) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

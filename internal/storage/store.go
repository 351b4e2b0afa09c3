package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/grid-pilot/internal/mission"
)

// Journal records what happened during each flight so it can be reviewed and
// rendered afterwards. It is safe for concurrent use.
type Journal interface {
	// CreateRun starts a new flight record and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - plannerFile: Path of the planner file the flight was compiled from
	//   - config: Optional flight configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - runID: Unique identifier for the created run
	//   - error: If run creation fails or context is cancelled
	CreateRun(ctx context.Context, plannerFile string, config any) (runID string, err error)

	// FinishRun stores the terminal state of a run.
	FinishRun(ctx context.Context, runID string, finalState string) error

	// Run retrieves a specific run by its ID.
	Run(ctx context.Context, runID string) (*Run, error)

	// Runs returns all runs ordered by start time in ascending order.
	Runs(ctx context.Context) ([]*Run, error)

	// StoreWaypoints saves the compiled path of a run in a single atomic
	// transaction. grid and waypoints must have the same length.
	StoreWaypoints(ctx context.Context, runID string, grid []mission.GridPoint, waypoints mission.WaypointSequence) error

	// Waypoints returns the compiled path of a run in flight order.
	Waypoints(ctx context.Context, runID string) ([]Waypoint, error)

	StoreTransition(ctx context.Context, runID string, t Transition) error
	Transitions(ctx context.Context, runID string) ([]Transition, error)

	StoreVerdict(ctx context.Context, runID string, v Verdict) error
	Verdicts(ctx context.Context, runID string) ([]Verdict, error)

	StoreObstacle(ctx context.Context, runID string, o Obstacle) error
	Obstacles(ctx context.Context, runID string) ([]Obstacle, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}

package planner

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/roman-kulish/grid-pilot/internal/mission"
)

// ObstacleLog appends obstacle records to the planner's obstacle file.
//
// The file is opened in append mode for every write and is never truncated;
// clearing it between runs is up to the operator or the planner.
type ObstacleLog struct {
	path string
	mu   sync.Mutex
}

func NewObstacleLog(path string) *ObstacleLog {
	return &ObstacleLog{path: path}
}

// Path returns the obstacle file location.
func (l *ObstacleLog) Path() string {
	return l.path
}

// Append writes r as a single grid_x,grid_y row.
func (l *ObstacleLog) Append(r mission.ObstacleRecord) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening obstacle log: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing obstacle log: %w", cErr)
		}
	}()

	w := csv.NewWriter(f)
	if err = w.Write([]string{strconv.FormatInt(r.GridX, 10), strconv.FormatInt(r.GridY, 10)}); err != nil {
		return fmt.Errorf("writing obstacle record: %w", err)
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return fmt.Errorf("writing obstacle record: %w", err)
	}

	return nil
}

package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roman-kulish/grid-pilot/internal/mission"
)

func TestObstacleLog_Append(t *testing.T) {
	name := filepath.Join(t.TempDir(), "obstacles.csv")
	if err := os.WriteFile(name, []byte("1,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := NewObstacleLog(name)
	for _, r := range []mission.ObstacleRecord{{GridX: 8, GridY: 2}, {GridX: -3, GridY: 14}} {
		if err := log.Append(r); err != nil {
			t.Fatalf("Append(%s) returned error: %v", r, err)
		}
	}

	b, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), "1,1\n8,2\n-3,14\n"; got != want {
		t.Errorf("Expected file contents %q, got %q", want, got)
	}
}

func TestObstacleLog_AppendFailure(t *testing.T) {
	log := NewObstacleLog(filepath.Join(t.TempDir(), "missing", "obstacles.csv"))

	if err := log.Append(mission.ObstacleRecord{GridX: 1, GridY: 2}); err == nil {
		t.Error("Expected error writing into a missing directory")
	}
}

package mission

import "testing"

func TestNewObstacleRecord_Rounds(t *testing.T) {
	tests := []struct {
		in   GridPoint
		want ObstacleRecord
	}{
		{GridPoint{X: 8, Y: 2}, ObstacleRecord{GridX: 8, GridY: 2}},
		{GridPoint{X: 7.6, Y: 2.4}, ObstacleRecord{GridX: 8, GridY: 2}},
		{GridPoint{X: 2.5, Y: -2.5}, ObstacleRecord{GridX: 3, GridY: -3}},
	}

	for _, tt := range tests {
		if got := NewObstacleRecord(tt.in); got != tt.want {
			t.Errorf("NewObstacleRecord(%s): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

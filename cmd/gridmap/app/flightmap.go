package app

import (
	"math"

	"github.com/roman-kulish/grid-pilot/internal/mission"
	"github.com/roman-kulish/grid-pilot/internal/storage"
)

// margin is the number of empty cells kept around the flown area.
const margin = 1

// FlightMap is everything the renderer draws for one run.
type FlightMap struct {
	Run       *storage.Run
	Waypoints []storage.Waypoint
	Verdicts  []storage.Verdict
	Obstacles []storage.Obstacle

	// Grid cells covered by the image, inclusive.
	MinX, MinY int
	MaxX, MaxY int
}

// NewFlightMap collects the run data and computes the covered grid area. An
// empty run still covers a single cell.
func NewFlightMap(run *storage.Run, waypoints []storage.Waypoint, verdicts []storage.Verdict, obstacles []storage.Obstacle) *FlightMap {
	m := FlightMap{
		Run:       run,
		Waypoints: waypoints,
		Verdicts:  verdicts,
		Obstacles: obstacles,
		MinX:      math.MaxInt,
		MinY:      math.MaxInt,
		MaxX:      math.MinInt,
		MaxY:      math.MinInt,
	}

	for _, w := range waypoints {
		m.extend(w.Grid.Round())
	}
	for _, o := range obstacles {
		m.extend(mission.GridPoint{X: float64(o.Record.GridX), Y: float64(o.Record.GridY)})
	}

	if m.MinX > m.MaxX {
		m.MinX, m.MinY, m.MaxX, m.MaxY = 0, 0, 0, 0
	}

	m.MinX -= margin
	m.MinY -= margin
	m.MaxX += margin
	m.MaxY += margin

	return &m
}

func (m *FlightMap) extend(g mission.GridPoint) {
	x, y := int(g.X), int(g.Y)

	m.MinX = min(m.MinX, x)
	m.MinY = min(m.MinY, y)
	m.MaxX = max(m.MaxX, x)
	m.MaxY = max(m.MaxY, y)
}

// Columns returns the number of grid columns covered.
func (m *FlightMap) Columns() int {
	return m.MaxX - m.MinX + 1
}

// Rows returns the number of grid rows covered.
func (m *FlightMap) Rows() int {
	return m.MaxY - m.MinY + 1
}

// Positives returns the verdicts that flagged an obstacle.
func (m *FlightMap) Positives() []storage.Verdict {
	var positives []storage.Verdict
	for _, v := range m.Verdicts {
		if v.Positive {
			positives = append(positives, v)
		}
	}
	return positives
}

package path

import "github.com/roman-kulish/grid-pilot/internal/mission"

// Corners keeps the first and last point and every interior point at which the
// direction of travel changes.
//
// Directions are compared as raw difference vectors with exact equality, so
// any change, however small, keeps the point, and so does a change in step
// length along the same line. Points dropped on a straight run are never
// visited, which means obstacles lying between two kept corners cannot be
// detected in this mode.
func Corners(points []mission.GridPoint) []mission.GridPoint {
	if len(points) <= 2 {
		return append([]mission.GridPoint(nil), points...)
	}

	out := make([]mission.GridPoint, 0, len(points))
	out = append(out, points[0])

	for i := 1; i < len(points)-1; i++ {
		prev, cur, next := points[i-1], points[i], points[i+1]

		inX, inY := cur.X-prev.X, cur.Y-prev.Y
		outX, outY := next.X-cur.X, next.Y-cur.Y

		if inX != outX || inY != outY {
			out = append(out, cur)
		}
	}

	return append(out, points[len(points)-1])
}

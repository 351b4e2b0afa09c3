// Package planner reads and writes the files shared with the external path
// planner: the grid path it produces and the obstacle log it consumes.
package planner

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/roman-kulish/grid-pilot/internal/mission"
)

// ErrNoRows is wrapped in an InputError when a planner file contains no usable
// rows.
var ErrNoRows = errors.New("no usable rows")

// ReadGridPoints reads grid points from a planner CSV file. Each row holds
// grid_x and grid_y in its first two fields; extra fields are ignored and rows
// with fewer than two numeric fields are skipped.
//
// The points read so far are always returned. A missing or unreadable file, or
// one without a single usable row, is reported as *InputError.
func ReadGridPoints(path string) ([]mission.GridPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	defer f.Close()

	points, skipped, err := ParseGridPoints(f)
	if err != nil {
		return points, &InputError{Path: path, Err: err}
	}
	if len(points) == 0 {
		return nil, &InputError{Path: path, Err: fmt.Errorf("%w (%d skipped)", ErrNoRows, skipped)}
	}

	return points, nil
}

// ParseGridPoints parses planner rows from r and returns the usable points
// together with the number of skipped rows.
func ParseGridPoints(r io.Reader) (points []mission.GridPoint, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return points, skipped, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return points, skipped, fmt.Errorf("reading row: %w", err)
		}

		p, ok := parseRow(record)
		if !ok {
			skipped++
			continue
		}
		points = append(points, p)
	}
}

func parseRow(record []string) (mission.GridPoint, bool) {
	if len(record) < 2 {
		return mission.GridPoint{}, false
	}

	x, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
	if err != nil {
		return mission.GridPoint{}, false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return mission.GridPoint{}, false
	}
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return mission.GridPoint{}, false
	}

	return mission.GridPoint{X: x, Y: y}, true
}

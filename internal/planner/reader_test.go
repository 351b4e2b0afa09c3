package planner

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/grid-pilot/internal/mission"
)

func TestParseGridPoints(t *testing.T) {
	input := strings.Join([]string{
		"grid_x,grid_y",
		"2,15",
		"3, 15, extra, fields",
		"4",
		"",
		"a,b",
		"NaN,1",
		"# comment",
		"5.5,-1",
	}, "\n")

	points, skipped, err := ParseGridPoints(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []mission.GridPoint{{X: 2, Y: 15}, {X: 3, Y: 15}, {X: 5.5, Y: -1}}, points)
	assert.Equal(t, 4, skipped)
}

func TestReadGridPoints_Missing(t *testing.T) {
	points, err := ReadGridPoints(filepath.Join(t.TempDir(), "path.csv"))

	assert.Empty(t, points)

	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr), "expected *InputError, got %T", err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadGridPoints_NoUsableRows(t *testing.T) {
	name := filepath.Join(t.TempDir(), "path.csv")
	require.NoError(t, os.WriteFile(name, []byte("x,y\nfoo\n\n"), 0o644))

	points, err := ReadGridPoints(name)

	assert.Empty(t, points)
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestReadGridPoints(t *testing.T) {
	name := filepath.Join(t.TempDir(), "path.csv")
	require.NoError(t, os.WriteFile(name, []byte("2,15\n8,2\n15,2\n"), 0o644))

	points, err := ReadGridPoints(name)
	require.NoError(t, err)
	assert.Equal(t, []mission.GridPoint{{X: 2, Y: 15}, {X: 8, Y: 2}, {X: 15, Y: 2}}, points)
}

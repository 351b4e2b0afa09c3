package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(ts int64, x, y, z, sensor float64) Record {
	return Record{
		Timestamp: time.UnixMilli(ts).UTC(),
		Fields: map[string]float64{
			"stateEstimate.x": x,
			"stateEstimate.y": y,
			"stateEstimate.z": z,
			"motion.shutter":  sensor,
		},
	}
}

func TestCell_Update(t *testing.T) {
	c := NewCell(DefaultFieldMap())

	_, ok := c.Get()
	assert.False(t, ok, "no snapshot before the first record")

	require.NoError(t, c.Update(record(1000, 0.1, 0.2, 0.3, 2400)))

	snap, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Equal(t, 0.1, snap.Position.X)
	assert.Equal(t, 0.2, snap.Position.Y)
	assert.Equal(t, 0.3, snap.Position.Z)
	assert.Equal(t, 2400.0, snap.Sensor.Value)
	assert.Equal(t, time.UnixMilli(1000).UTC(), snap.Sensor.Timestamp)
	assert.Equal(t, 2400.0, c.Sensor().Value)
}

func TestCell_UpdateMissingField(t *testing.T) {
	c := NewCell(DefaultFieldMap())
	require.NoError(t, c.Update(record(1, 1, 1, 1, 1)))

	r := record(2, 2, 2, 2, 2)
	delete(r.Fields, "motion.shutter")

	err := c.Update(r)
	assert.ErrorIs(t, err, ErrMissingField)

	snap, _ := c.Get()
	assert.Equal(t, uint64(1), snap.Seq, "rejected record must not change the state")
	assert.Equal(t, 1.0, snap.Position.X)
}

func TestCell_Fail(t *testing.T) {
	c := NewCell(DefaultFieldMap())
	assert.NoError(t, c.Err())

	first := errors.New("radio lost")
	c.Fail(first)
	c.Fail(errors.New("second"))

	assert.Same(t, first, c.Err())
}

// Every record carries the same value in all fields, so a torn read shows up as
// a snapshot with mixed values.
func TestCell_ConsistentSnapshots(t *testing.T) {
	c := NewCell(DefaultFieldMap())
	require.NoError(t, c.Update(record(0, 0, 0, 0, 0)))

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 5000; i++ {
			v := float64(i)
			_ = c.Update(record(int64(i), v, v, v, v))
		}
		close(done)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap, _ := c.Get()
				p := snap.Position
				if p.X != p.Y || p.Y != p.Z || p.Z != snap.Sensor.Value {
					t.Errorf("torn snapshot: %s sensor=%g", p, snap.Sensor.Value)
					return
				}
			}
		}()
	}

	wg.Wait()

	snap, _ := c.Get()
	assert.Equal(t, uint64(5001), snap.Seq)
}

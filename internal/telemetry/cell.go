package telemetry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roman-kulish/grid-pilot/internal/mission"
)

var (
	// ErrMissingField is returned when a record lacks one of the mapped fields
	ErrMissingField = errors.New("missing telemetry field")

	// ErrStreamClosed is reported when the stream ends without an error
	ErrStreamClosed = errors.New("telemetry stream closed")
)

// Cell is the shared vehicle state. The telemetry stream is its only writer;
// the sequencer and the classifier read it concurrently. All fields of a
// snapshot come from the same record.
type Cell struct {
	fields FieldMap

	mu    sync.RWMutex
	snap  Snapshot
	valid bool
	err   error
}

func NewCell(fields FieldMap) *Cell {
	return &Cell{fields: fields}
}

// Update replaces the state with the values of r. A record missing any mapped
// field is rejected and leaves the state unchanged.
func (c *Cell) Update(r Record) error {
	var values [4]float64
	for i, name := range []string{c.fields.X, c.fields.Y, c.fields.Z, c.fields.Sensor} {
		v, ok := r.Fields[name]
		if !ok {
			return fmt.Errorf("%w %q", ErrMissingField, name)
		}
		values[i] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap = Snapshot{
		Seq:       c.snap.Seq + 1,
		Timestamp: r.Timestamp,
		Position:  mission.VehiclePoint{X: values[0], Y: values[1], Z: values[2]},
		Sensor:    mission.SensorSample{Value: values[3], Timestamp: r.Timestamp},
	}
	c.valid = true

	return nil
}

func (c *Cell) Get() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap, c.valid
}

// Sensor returns the latest sensor reading, zero before the first record.
func (c *Cell) Sensor() mission.SensorSample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Sensor
}

// Fail marks the subscription as lost. Only the first error is kept.
func (c *Cell) Fail(err error) {
	if err == nil {
		err = ErrStreamClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err == nil {
		c.err = err
	}
}

func (c *Cell) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

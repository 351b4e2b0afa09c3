package report

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/grid-pilot/internal/flight"
	"github.com/roman-kulish/grid-pilot/internal/mission"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	messages []message
	err      error
	flushErr error
	calls    []string
	flushed  int // Messages published before the last flush
	drained  bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, message{subject, data})
	return nil
}

func (c *fakeConn) FlushTimeout(time.Duration) error {
	c.calls = append(c.calls, "flush")
	c.flushed = len(c.messages)
	return c.flushErr
}

func (c *fakeConn) Drain() error {
	c.calls = append(c.calls, "drain")
	c.drained = true
	return nil
}

func TestPublisher_Observe(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, DefaultSubject, "run-1")

	now := time.Date(2025, time.May, 20, 14, 0, 0, 0, time.UTC)
	record := mission.ObstacleRecord{GridX: 8, GridY: 2}

	p.Observe(flight.Event{Kind: flight.EventTransition, To: flight.Settling})
	p.Observe(flight.Event{Kind: flight.EventObstacle, Time: now, Waypoint: 1, Obstacle: &record})
	p.Observe(flight.Event{Kind: flight.EventTransition, Time: now, From: flight.ObstacleLogged, To: flight.Aborted})

	require.Len(t, conn.messages, 2)

	assert.Equal(t, DefaultSubject, conn.messages[0].subject)
	var r ObstacleReport
	require.NoError(t, json.Unmarshal(conn.messages[0].data, &r))
	assert.Equal(t, ObstacleReport{RunID: "run-1", GridX: 8, GridY: 2, Waypoint: 1, Logged: true, Time: now}, r)

	assert.Equal(t, DefaultSubject+".status", conn.messages[1].subject)
	var s RunStatus
	require.NoError(t, json.Unmarshal(conn.messages[1].data, &s))
	assert.Equal(t, "aborted", s.State)

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
	assert.Equal(t, []string{"flush", "drain"}, conn.calls)
	assert.Equal(t, 2, conn.flushed, "the run status is flushed before the connection drains")

	// closed publishers ignore events
	p.Observe(flight.Event{Kind: flight.EventObstacle, Obstacle: &record})
	assert.Len(t, conn.messages, 2)
}

func TestPublisher_PublishFailureIsNotFatal(t *testing.T) {
	p := NewPublisher(&fakeConn{err: errors.New("nats: connection closed")}, DefaultSubject, "run-1")

	assert.NotPanics(t, func() {
		p.Observe(flight.Event{Kind: flight.EventObstacle, Obstacle: &mission.ObstacleRecord{}})
	})
}

func TestPublisher_CloseReportsFlushFailure(t *testing.T) {
	conn := &fakeConn{flushErr: errors.New("nats: timeout")}
	p := NewPublisher(conn, DefaultSubject, "run-1")

	err := p.Close()
	assert.EqualError(t, err, "nats: timeout")
	assert.True(t, conn.drained)

	// a second close is a no-op
	assert.NoError(t, p.Close())
	assert.Equal(t, []string{"flush", "drain"}, conn.calls)
}

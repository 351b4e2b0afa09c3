// Package report publishes detected obstacles to the planner over NATS so it
// can replan without polling the obstacle file.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roman-kulish/grid-pilot/internal/flight"
)

const (
	DefaultSubject = "gridpilot.obstacles"

	// closeFlushTimeout bounds how long Close waits for the server to
	// acknowledge buffered messages
	closeFlushTimeout = 2 * time.Second
)

// Conn is the subset of *nats.Conn used by the publisher.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// ObstacleReport is the message sent for every detected obstacle.
type ObstacleReport struct {
	RunID    string    `json:"runId"`
	GridX    int64     `json:"gridX"`
	GridY    int64     `json:"gridY"`
	Waypoint int       `json:"waypoint"`
	Logged   bool      `json:"logged"` // Also appended to the obstacle file
	Time     time.Time `json:"time"`
}

// RunStatus is sent once a run reaches a terminal state.
type RunStatus struct {
	RunID string    `json:"runId"`
	State string    `json:"state"`
	Time  time.Time `json:"time"`
}

// WithLogger sets the logger for the publisher
func WithLogger(logger *slog.Logger) func(p *Publisher) {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// Publisher turns flight events into planner messages. Publishing failures
// are logged; the obstacle file stays the source of truth.
type Publisher struct {
	mu      sync.Mutex
	conn    Conn
	subject string
	runID   string
	logger  *slog.Logger
}

var _ flight.Observer = (*Publisher)(nil)

func NewPublisher(conn Conn, subject, runID string, options ...func(p *Publisher)) *Publisher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	p := Publisher{
		conn:    conn,
		subject: subject,
		runID:   runID,
		logger:  logger,
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Connect dials the NATS server at url with reconnects enabled.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("grid-pilot"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return nc, nil
}

func (p *Publisher) Observe(e flight.Event) {
	switch {
	case e.Kind == flight.EventObstacle && e.Obstacle != nil:
		p.publish(p.subject, ObstacleReport{
			RunID:    p.runID,
			GridX:    e.Obstacle.GridX,
			GridY:    e.Obstacle.GridY,
			Waypoint: e.Waypoint,
			Logged:   e.Error == "",
			Time:     e.Time,
		})

	case e.Kind == flight.EventTransition && e.To.Terminal():
		p.publish(p.subject+".status", RunStatus{RunID: p.runID, State: e.To.String(), Time: e.Time})
	}
}

func (p *Publisher) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("failed to encode report", slog.Any("error", err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return
	}
	if err = p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish report", slog.String("subject", subject), slog.Any("error", err))
		return
	}
	p.logger.Debug("report published", slog.String("subject", subject))
}

// Close flushes pending messages and closes the connection. Drain returns
// before the connection is closed, so the buffered run status is flushed
// first.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	flushErr := p.conn.FlushTimeout(closeFlushTimeout)
	if flushErr != nil {
		p.logger.Warn("failed to flush reports", slog.Any("error", flushErr))
	}
	err := p.conn.Drain()
	p.conn = nil
	if err != nil {
		return err
	}
	return flushErr
}

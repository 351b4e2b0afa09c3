package link

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
)

// WithLogger sets the logger for the vehicle
func WithLogger(logger *slog.Logger) func(v *Vehicle) {
	return func(v *Vehicle) {
		v.logger = logger
	}
}

// WithRemainValid sets how long, in milliseconds, the last setpoint stays
// valid after NotifySetpointStop.
func WithRemainValid(ms uint32) func(v *Vehicle) {
	return func(v *Vehicle) {
		v.remainValid = ms
	}
}

// Vehicle sends flight commands over a Transport. Commands are fire and
// forget: a failed send is returned to the caller and never retried.
type Vehicle struct {
	transport   Transport
	remainValid uint32
	sent        atomic.Uint64
	logger      *slog.Logger
}

func NewVehicle(t Transport, options ...func(v *Vehicle)) *Vehicle {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	v := Vehicle{
		transport: t,
		logger:    logger,
	}

	for _, option := range options {
		option(&v)
	}

	return &v
}

func (v *Vehicle) Arm() error {
	return v.send("arming request", &ArmingRequest{Arm: true})
}

func (v *Vehicle) SendPositionSetpoint(x, y, z, yaw float64) error {
	return v.send("position setpoint", &PositionSetpoint{X: float32(x), Y: float32(y), Z: float32(z), Yaw: float32(yaw)})
}

func (v *Vehicle) SendStopSetpoint() error {
	return v.send("stop setpoint", &StopSetpoint{})
}

func (v *Vehicle) NotifySetpointStop() error {
	return v.send("notify setpoint stop", &NotifySetpointStop{RemainValid: v.remainValid})
}

// Sent returns the number of packets delivered to the transport.
func (v *Vehicle) Sent() uint64 {
	return v.sent.Load()
}

func (v *Vehicle) Close() error {
	return v.transport.Close()
}

func (v *Vehicle) send(name string, p Packet) error {
	if err := v.transport.Send(Encode(p)); err != nil {
		return fmt.Errorf("error sending %s: %w", name, err)
	}

	v.sent.Add(1)
	v.logger.Debug("packet sent", slog.String("packet", name))

	return nil
}

package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"

	"go.bug.st/serial"
)

// Source opens the byte stream carrying telemetry records.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// maxDatagramSize is large enough for any record the bridge sends.
const maxDatagramSize = 64 * 1024

// UDPSource listens for records sent as UDP datagrams, one or more
// newline-separated records per datagram.
type UDPSource struct {
	Address string // Local listen address, e.g. ":9630"
}

func (s UDPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", s.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP: %w", err)
	}
	return &datagramReader{conn: conn, buf: make([]byte, maxDatagramSize)}, nil
}

func (s UDPSource) String() string {
	return "udp://" + s.Address
}

// datagramReader turns datagrams into a line stream, terminating each with a
// newline so records never span two datagrams.
type datagramReader struct {
	conn    net.PacketConn
	buf     []byte
	pending []byte
}

func (r *datagramReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		n, _, err := r.conn.ReadFrom(r.buf)
		if err != nil {
			return 0, err
		}
		r.pending = append(bytes.TrimRight(r.buf[:n], "\r\n"), '\n')
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *datagramReader) Close() error {
	return r.conn.Close()
}

// SerialSource reads newline-separated records from a serial port.
type SerialSource struct {
	Port     string
	BaudRate int
}

func (s SerialSource) Open(context.Context) (io.ReadCloser, error) {
	port, err := serial.Open(s.Port, &serial.Mode{
		BaudRate: s.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

func (s SerialSource) String() string {
	return fmt.Sprintf("serial://%s@%d", s.Port, s.BaudRate)
}

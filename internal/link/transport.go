package link

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.bug.st/serial"
)

// Transport delivers encoded CRTP packets to the vehicle.
type Transport interface {
	Send(packet []byte) error
	Close() error
}

// UDPTransport sends one CRTP packet per datagram, as expected by the
// simulator and by radio bridges.
type UDPTransport struct {
	conn net.Conn
}

func DialUDP(address string) (*UDPTransport, error) {
	conn, err := net.Dial("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP: %w", err)
	}
	return &UDPTransport{conn: conn}, nil
}

func (t *UDPTransport) Send(packet []byte) error {
	_, err := t.conn.Write(packet)
	return err
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// syslink framing
const (
	syslinkStart1   = 0xBC
	syslinkStart2   = 0xCF
	syslinkRadioRaw = 0x00
)

// ErrPacketTooLarge is returned for packets that do not fit a single frame
var ErrPacketTooLarge = errors.New("packet too large")

// Frame wraps a CRTP packet into a syslink radio frame: start bytes, type,
// length, data and a two byte Fletcher checksum over type, length and data.
func Frame(packet []byte) ([]byte, error) {
	if len(packet) > MaxPayload+1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(packet))
	}

	frame := make([]byte, 0, len(packet)+6)
	frame = append(frame, syslinkStart1, syslinkStart2, syslinkRadioRaw, byte(len(packet)))
	frame = append(frame, packet...)

	var a, b byte
	for _, c := range frame[2:] {
		a += c
		b += a
	}

	return append(frame, a, b), nil
}

// SerialPort is the subset of a serial port used by SerialTransport.
type SerialPort interface {
	Write(p []byte) (int, error)
	Close() error
}

// SerialTransport writes syslink frames to a serial port.
type SerialTransport struct {
	mu   sync.Mutex
	port SerialPort
}

func OpenSerial(name string, baudRate int) (*SerialTransport, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return NewSerialTransport(port), nil
}

func NewSerialTransport(port SerialPort) *SerialTransport {
	return &SerialTransport{port: port}
}

func (t *SerialTransport) Send(packet []byte) error {
	frame, err := Frame(packet)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err = t.port.Write(frame); err != nil {
		return err
	}
	return nil
}

func (t *SerialTransport) Close() error {
	return t.port.Close()
}

package link

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	frame, err := Frame([]byte{0x7C, 0x00})
	require.NoError(t, err)

	// type 0x00 + len 0x02 + 0x7C + 0x00
	// a: 0x00 0x02 0x7E 0x7E, b: 0x00 0x02 0x80 0xFE
	assert.Equal(t, []byte{0xBC, 0xCF, 0x00, 0x02, 0x7C, 0x00, 0x7E, 0xFE}, frame)

	_, err = Frame(make([]byte, MaxPayload+2))
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}

type bufferPort struct {
	bytes.Buffer
	closed bool
}

func (p *bufferPort) Close() error {
	p.closed = true
	return nil
}

func TestSerialTransport(t *testing.T) {
	port := &bufferPort{}
	tr := NewSerialTransport(port)

	require.NoError(t, tr.Send(Encode(&StopSetpoint{})))
	require.NoError(t, tr.Send(Encode(&ArmingRequest{Arm: true})))

	out := port.Bytes()
	assert.Equal(t, []byte{0xBC, 0xCF, 0x00, 0x02, 0x7C, 0x00}, out[:6])
	assert.Len(t, out, 8+9)

	require.NoError(t, tr.Close())
	assert.True(t, port.closed)
}

func TestUDPTransport(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	tr, err := DialUDP(conn.LocalAddr().String())
	require.NoError(t, err)
	defer tr.Close()

	packet := Encode(&PositionSetpoint{X: 1, Y: 2, Z: 0.15, Yaw: 90})
	require.NoError(t, tr.Send(packet))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 64)
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, packet, buf[:n])
}

type recordingTransport struct {
	packets [][]byte
	err     error
}

func (t *recordingTransport) Send(p []byte) error {
	if t.err != nil {
		return t.err
	}
	t.packets = append(t.packets, p)
	return nil
}

func (t *recordingTransport) Close() error { return nil }

func TestVehicle_Commands(t *testing.T) {
	tr := &recordingTransport{}
	v := NewVehicle(tr, WithRemainValid(100))

	require.NoError(t, v.Arm())
	require.NoError(t, v.SendPositionSetpoint(0.29, 1.12, 0.15, 90))
	require.NoError(t, v.SendStopSetpoint())
	require.NoError(t, v.NotifySetpointStop())

	require.Len(t, tr.packets, 4)
	assert.Equal(t, Encode(&ArmingRequest{Arm: true}), tr.packets[0])
	assert.Equal(t, Encode(&PositionSetpoint{X: 0.29, Y: 1.12, Z: 0.15, Yaw: 90}), tr.packets[1])
	assert.Equal(t, Encode(&StopSetpoint{}), tr.packets[2])
	assert.Equal(t, Encode(&NotifySetpointStop{RemainValid: 100}), tr.packets[3])
	assert.Equal(t, uint64(4), v.Sent())
}

func TestVehicle_SendError(t *testing.T) {
	cause := errors.New("radio unplugged")
	v := NewVehicle(&recordingTransport{err: cause})

	err := v.SendPositionSetpoint(0, 0, 0, 0)
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, v.Sent())
}

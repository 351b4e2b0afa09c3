// Package link implements the vehicle control port on top of Crazyflie CRTP
// packets carried over UDP or a serial syslink.
package link

import (
	"encoding/binary"
	"math"
)

// Port is a CRTP port number.
type Port uint8

// Channel is a CRTP channel within a port.
type Channel uint8

const (
	PortCommanderGeneric Port = 0x07
	PortPlatform         Port = 0x0D
)

const (
	channelGenericSetpoint Channel = 0
	channelGenericMeta     Channel = 1
	channelPlatformCommand Channel = 0
)

// Generic commander setpoint types.
const (
	setpointTypeStop     = 0
	setpointTypePosition = 7
)

const (
	metaNotifySetpointStop = 0
	platformArmingRequest  = 1
)

// MaxPayload is the largest CRTP payload.
const MaxPayload = 30

// Packet is a CRTP request.
type Packet interface {
	Port() Port
	Channel() Channel
	Bytes() []byte
}

// Encode prepends the CRTP header to the packet payload.
func Encode(p Packet) []byte {
	payload := p.Bytes()
	out := make([]byte, 0, len(payload)+1)
	out = append(out, Header(p.Port(), p.Channel()))
	return append(out, payload...)
}

// Header returns the CRTP header byte, with both link bits set.
func Header(port Port, channel Channel) byte {
	return byte(port&0x0F)<<4 | 0x03<<2 | byte(channel&0x03)
}

// ---- COMMANDER: POSITION SETPOINT ----

// PositionSetpoint targets an absolute position, yaw in degrees.
type PositionSetpoint struct {
	X, Y, Z, Yaw float32
}

func (p *PositionSetpoint) Port() Port {
	return PortCommanderGeneric
}

func (p *PositionSetpoint) Channel() Channel {
	return channelGenericSetpoint
}

func (p *PositionSetpoint) Bytes() []byte {
	packet := make([]byte, 17)
	packet[0] = setpointTypePosition
	binary.LittleEndian.PutUint32(packet[1:5], math.Float32bits(p.X))
	binary.LittleEndian.PutUint32(packet[5:9], math.Float32bits(p.Y))
	binary.LittleEndian.PutUint32(packet[9:13], math.Float32bits(p.Z))
	binary.LittleEndian.PutUint32(packet[13:17], math.Float32bits(p.Yaw))
	return packet
}

// ---- COMMANDER: STOP SETPOINT ----

// StopSetpoint cuts the motors.
type StopSetpoint struct{}

func (p *StopSetpoint) Port() Port {
	return PortCommanderGeneric
}

func (p *StopSetpoint) Channel() Channel {
	return channelGenericSetpoint
}

func (p *StopSetpoint) Bytes() []byte {
	return []byte{setpointTypeStop}
}

// ---- COMMANDER META: NOTIFY SETPOINT STOP ----

// NotifySetpointStop tells the firmware that low level setpoints end here, so
// the high level commander takes over after RemainValid milliseconds.
type NotifySetpointStop struct {
	RemainValid uint32
}

func (p *NotifySetpointStop) Port() Port {
	return PortCommanderGeneric
}

func (p *NotifySetpointStop) Channel() Channel {
	return channelGenericMeta
}

func (p *NotifySetpointStop) Bytes() []byte {
	packet := make([]byte, 5)
	packet[0] = metaNotifySetpointStop
	binary.LittleEndian.PutUint32(packet[1:5], p.RemainValid)
	return packet
}

// ---- PLATFORM: ARMING REQUEST ----

type ArmingRequest struct {
	Arm bool
}

func (p *ArmingRequest) Port() Port {
	return PortPlatform
}

func (p *ArmingRequest) Channel() Channel {
	return channelPlatformCommand
}

func (p *ArmingRequest) Bytes() []byte {
	var arm byte
	if p.Arm {
		arm = 1
	}
	return []byte{platformArmingRequest, arm}
}

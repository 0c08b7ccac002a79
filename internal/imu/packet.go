package imu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// PacketSize is the length of one binary IMU datagram.
//
//	offset size field
//	0      4    magic "IMU1"
//	4      4    flags (uint32)
//	8      8    seq (uint64)
//	16     8    timestamp, unix nanos (int64)
//	24     48   angle x,y,z then rate x,y,z (float64)
//
// All integers and floats are little-endian.
const PacketSize = 72

// PacketMagic prefixes every datagram.
const PacketMagic = "IMU1"

// Packet flag bits.
const (
	// FlagResync marks the first packet after the device restarted its
	// stream. Receivers reset their estimate on it.
	FlagResync uint32 = 1 << 0
)

var (
	ErrShortPacket = errors.New("imu: packet too short")
	ErrBadMagic    = errors.New("imu: bad packet magic")
)

// Packet is a Sample with the transport flags of its datagram.
type Packet struct {
	Flags  uint32
	Sample Sample
}

// MarshalBinary encodes p into a PacketSize-byte datagram.
func (p Packet) MarshalBinary() ([]byte, error) {
	buf := make([]byte, PacketSize)
	p.put(buf)
	return buf, nil
}

func (p Packet) put(buf []byte) {
	copy(buf[0:4], PacketMagic)
	binary.LittleEndian.PutUint32(buf[4:], p.Flags)
	binary.LittleEndian.PutUint64(buf[8:], p.Sample.Seq)
	binary.LittleEndian.PutUint64(buf[16:], uint64(p.Sample.TimestampNanos))
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint64(buf[24+8*i:], math.Float64bits(p.Sample.Angle[i]))
		binary.LittleEndian.PutUint64(buf[48+8*i:], math.Float64bits(p.Sample.Rate[i]))
	}
}

// UnmarshalBinary decodes a datagram. Bytes past PacketSize are ignored.
// A datagram carrying NaN or ±Inf fails with ErrNonFinite.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) < PacketSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrShortPacket, len(data), PacketSize)
	}
	if string(data[0:4]) != PacketMagic {
		return fmt.Errorf("%w: %q", ErrBadMagic, data[0:4])
	}
	p.Flags = binary.LittleEndian.Uint32(data[4:])
	p.Sample.Seq = binary.LittleEndian.Uint64(data[8:])
	p.Sample.TimestampNanos = int64(binary.LittleEndian.Uint64(data[16:]))
	for i := 0; i < 3; i++ {
		p.Sample.Angle[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[24+8*i:]))
		p.Sample.Rate[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[48+8*i:]))
	}
	if !p.Sample.IsFinite() {
		return fmt.Errorf("%w: seq %d", ErrNonFinite, p.Sample.Seq)
	}
	return nil
}

// DecodePacket is a convenience wrapper around Packet.UnmarshalBinary.
func DecodePacket(data []byte) (Packet, error) {
	var p Packet
	err := p.UnmarshalBinary(data)
	return p, err
}

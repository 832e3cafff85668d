package sim

import (
	"encoding/binary"
	"math"
)

// Encode serializes the state to its canonical byte layout: frame and
// player count, then per-player position, velocity, and rotation as
// little-endian float64 bits. The layout is fixed so identical states
// always checksum identically across peers.
func (s *State) Encode() []byte {
	buf := make([]byte, 0, 8+s.NumPlayers*5*8)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.Frame))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.NumPlayers))
	for i := 0; i < s.NumPlayers; i++ {
		buf = appendFloat(buf, s.Positions[i].X)
		buf = appendFloat(buf, s.Positions[i].Y)
		buf = appendFloat(buf, s.Velocities[i].X)
		buf = appendFloat(buf, s.Velocities[i].Y)
		buf = appendFloat(buf, s.Rotations[i])
	}
	return buf
}

func appendFloat(buf []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(buf, floatBits(v))
}

// floatBits canonicalizes negative zero so states that differ only in
// zero sign checksum identically.
func floatBits(v float64) uint64 {
	if v == 0 {
		return 0
	}
	return math.Float64bits(v)
}

// Fletcher16 computes the two-accumulator mod-255 checksum over data.
// Cheap and good enough for eyeballing divergence between clients; not
// cryptographic and not collision-proof.
func Fletcher16(data []byte) uint16 {
	var sum1, sum2 uint16
	for _, b := range data {
		sum1 = (sum1 + uint16(b)) % 255
		sum2 = (sum2 + sum1) % 255
	}
	return sum2<<8 | sum1
}

// Checksum is shorthand for the Fletcher16 of the canonical encoding.
func (s *State) Checksum() uint16 {
	return Fletcher16(s.Encode())
}

package sim

import (
	"fmt"
	"math"
)

// Frame numbers one discrete simulation step. Frames start at 0 and only
// grow; NullFrame marks bookkeeping slots that have not seen a frame yet.
type Frame int32

const NullFrame Frame = -1

// Vec2 is a plain 2D vector. No methods beyond what the advance step
// needs; this is not a general math library.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State holds the full deterministic world: a frame counter plus
// per-player kinematics. It is replaced wholesale on a Load request and
// mutated in place on Advance; everyone else gets read-only copies.
type State struct {
	Frame      Frame     `json:"frame"`
	NumPlayers int       `json:"numPlayers"`
	Positions  []Vec2    `json:"positions"`
	Velocities []Vec2    `json:"velocities"`
	Rotations  []float64 `json:"rotations"`
}

// NewState places players evenly on a circle of radius arenaWidth/4
// centered in the arena, each facing the circle's center with zero
// velocity.
func NewState(tun Tuning, numPlayers int) (*State, error) {
	if numPlayers < 1 || numPlayers > MaxPlayers {
		return nil, fmt.Errorf("invalid player count %d (want 1..%d)", numPlayers, MaxPlayers)
	}
	tun = tun.Normalized()

	s := &State{
		Frame:      0,
		NumPlayers: numPlayers,
		Positions:  make([]Vec2, numPlayers),
		Velocities: make([]Vec2, numPlayers),
		Rotations:  make([]float64, numPlayers),
	}

	r := tun.ArenaWidth / 4
	for i := 0; i < numPlayers; i++ {
		rot := float64(i) / float64(numPlayers) * 2 * math.Pi
		s.Positions[i] = Vec2{
			X: tun.ArenaWidth/2 + r*math.Cos(rot),
			Y: tun.ArenaHeight/2 + r*math.Sin(rot),
		}
		s.Rotations[i] = wrapAngle(rot + math.Pi)
	}
	return s, nil
}

// Advance runs one deterministic step. It is total: any input slice is
// accepted, with short slices padded by the missing-input sentinel. Given
// identical prior state and inputs the result is bit-identical, which the
// rollback session relies on when replaying predicted frames.
func (s *State) Advance(tun Tuning, inputs []PlayerInput) {
	s.Frame++

	for i := 0; i < s.NumPlayers; i++ {
		input := MissingInput()
		if i < len(inputs) {
			input = inputs[i]
		}
		mask := input.Effective()

		vel := s.Velocities[i]
		rot := s.Rotations[i]

		// Damping applies before any new force.
		vel.X *= tun.Friction
		vel.Y *= tun.Friction

		// Opposing presses cancel: no net thrust, no net turn.
		if mask.Up() && !mask.Down() {
			vel.X += tun.Thrust * math.Cos(rot)
			vel.Y += tun.Thrust * math.Sin(rot)
		}
		if mask.Down() && !mask.Up() {
			vel.X -= tun.Thrust * math.Cos(rot)
			vel.Y -= tun.Thrust * math.Sin(rot)
		}
		if mask.Left() && !mask.Right() {
			rot = wrapAngle(rot - tun.TurnRate)
		}
		if mask.Right() && !mask.Left() {
			rot = wrapAngle(rot + tun.TurnRate)
		}

		// Limit speed by uniform rescaling.
		magnitude := math.Hypot(vel.X, vel.Y)
		if magnitude > tun.MaxSpeed {
			vel.X = vel.X * tun.MaxSpeed / magnitude
			vel.Y = vel.Y * tun.MaxSpeed / magnitude
		}

		pos := s.Positions[i]
		pos.X += vel.X
		pos.Y += vel.Y

		// Position clamps to the arena; velocity deliberately does not.
		// A ship driven into a wall keeps pushing into it on later
		// frames. Known edge behavior, kept bit-for-bit.
		pos.X = clamp(pos.X, 0, tun.ArenaWidth)
		pos.Y = clamp(pos.Y, 0, tun.ArenaHeight)

		s.Positions[i] = pos
		s.Velocities[i] = vel
		s.Rotations[i] = rot
	}
}

// Clone returns a deep copy safe to store in a save slot.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	cloned := &State{
		Frame:      s.Frame,
		NumPlayers: s.NumPlayers,
		Positions:  append([]Vec2(nil), s.Positions...),
		Velocities: append([]Vec2(nil), s.Velocities...),
		Rotations:  append([]float64(nil), s.Rotations...),
	}
	return cloned
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// wrapAngle maps an angle into [0, 2*pi), matching rem_euclid semantics
// for negative inputs.
func wrapAngle(a float64) float64 {
	wrapped := math.Mod(a, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped
}

package sim

import (
	"bytes"
	"math"
	"math/rand"
	"testing"
)

func newTestState(t *testing.T, numPlayers int) *State {
	t.Helper()
	state, err := NewState(DefaultTuning(), numPlayers)
	if err != nil {
		t.Fatalf("failed to construct state: %v", err)
	}
	return state
}

func TestNewStateRejectsInvalidPlayerCounts(t *testing.T) {
	for _, count := range []int{-1, 0, MaxPlayers + 1} {
		if _, err := NewState(DefaultTuning(), count); err == nil {
			t.Fatalf("expected error for player count %d", count)
		}
	}
}

func TestNewStateTwoPlayerPlacement(t *testing.T) {
	tun := DefaultTuning()
	state := newTestState(t, 2)

	r := tun.ArenaWidth / 4
	const tolerance = 1e-9

	if got := state.Positions[0]; math.Abs(got.X-(tun.ArenaWidth/2+r)) > tolerance || math.Abs(got.Y-tun.ArenaHeight/2) > tolerance {
		t.Fatalf("unexpected player 0 position: %+v", got)
	}
	if got := state.Rotations[0]; got != math.Pi {
		t.Fatalf("unexpected player 0 rotation: %v", got)
	}

	if got := state.Positions[1]; math.Abs(got.X-(tun.ArenaWidth/2-r)) > tolerance || math.Abs(got.Y-tun.ArenaHeight/2) > tolerance {
		t.Fatalf("unexpected player 1 position: %+v", got)
	}
	if got := state.Rotations[1]; got != 0 {
		t.Fatalf("unexpected player 1 rotation: %v", got)
	}

	for i := 0; i < 2; i++ {
		if state.Velocities[i] != (Vec2{}) {
			t.Fatalf("expected zero initial velocity for player %d", i)
		}
	}
}

func TestAdvanceAllZeroInputsIsANoOpBesidesFrame(t *testing.T) {
	tun := DefaultTuning()
	state := newTestState(t, 2)
	before := state.Clone()

	state.Advance(tun, []PlayerInput{{}, {}})

	if state.Frame != before.Frame+1 {
		t.Fatalf("expected frame to increment, got %d", state.Frame)
	}
	for i := 0; i < 2; i++ {
		if state.Positions[i] != before.Positions[i] {
			t.Fatalf("player %d position changed: %+v -> %+v", i, before.Positions[i], state.Positions[i])
		}
		if state.Velocities[i] != before.Velocities[i] {
			t.Fatalf("player %d velocity changed", i)
		}
		if state.Rotations[i] != before.Rotations[i] {
			t.Fatalf("player %d rotation changed", i)
		}
	}
}

func TestAdvanceIsDeterministic(t *testing.T) {
	tun := DefaultTuning()
	const frames = 500

	for _, numPlayers := range []int{1, 2, 3, 4} {
		a := newTestState(t, numPlayers)
		b := newTestState(t, numPlayers)

		script := rand.New(rand.NewSource(int64(numPlayers)))
		for frame := 0; frame < frames; frame++ {
			inputs := make([]PlayerInput, numPlayers)
			for i := range inputs {
				inputs[i] = PlayerInput{Mask: Input(script.Intn(16))}
				if script.Intn(10) == 0 {
					inputs[i] = MissingInput()
				}
			}

			a.Advance(tun, inputs)
			b.Advance(tun, inputs)

			if !bytes.Equal(a.Encode(), b.Encode()) {
				t.Fatalf("states diverged at frame %d with %d players", frame+1, numPlayers)
			}
			if a.Checksum() != b.Checksum() {
				t.Fatalf("checksums diverged at frame %d with %d players", frame+1, numPlayers)
			}
		}
	}
}

func TestAdvanceOpposingInputsCancel(t *testing.T) {
	tun := DefaultTuning()

	t.Run("thrust", func(t *testing.T) {
		state := newTestState(t, 1)
		state.Velocities[0] = Vec2{X: 2, Y: -1}
		wantVel := Vec2{X: 2 * tun.Friction, Y: -1 * tun.Friction}
		wantRot := state.Rotations[0]

		state.Advance(tun, []PlayerInput{{Mask: MaskUp | MaskDown}})

		if state.Velocities[0] != wantVel {
			t.Fatalf("expected friction-only velocity %+v, got %+v", wantVel, state.Velocities[0])
		}
		if state.Rotations[0] != wantRot {
			t.Fatalf("rotation changed without turn input")
		}
	})

	t.Run("turn", func(t *testing.T) {
		state := newTestState(t, 1)
		wantRot := state.Rotations[0]

		state.Advance(tun, []PlayerInput{{Mask: MaskLeft | MaskRight}})

		if state.Rotations[0] != wantRot {
			t.Fatalf("expected rotation %v, got %v", wantRot, state.Rotations[0])
		}
	})
}

func TestMissingInputBehavesLikeTurnRight(t *testing.T) {
	tun := DefaultTuning()
	missing := newTestState(t, 2)
	explicit := newTestState(t, 2)

	// Spin the ships first so the substitution is checked at an
	// arbitrary rotation, not just the spawn facing.
	warmup := []PlayerInput{{Mask: MaskLeft}, {Mask: MaskUp}}
	for i := 0; i < 17; i++ {
		missing.Advance(tun, warmup)
		explicit.Advance(tun, warmup)
	}

	for i := 0; i < 50; i++ {
		missing.Advance(tun, []PlayerInput{MissingInput(), {Mask: MaskUp}})
		explicit.Advance(tun, []PlayerInput{{Mask: MaskRight}, {Mask: MaskUp}})
	}

	if !bytes.Equal(missing.Encode(), explicit.Encode()) {
		t.Fatalf("missing input did not match explicit turn-right")
	}
}

func TestAdvancePadsShortInputSlices(t *testing.T) {
	tun := DefaultTuning()
	padded := newTestState(t, 2)
	explicit := newTestState(t, 2)

	padded.Advance(tun, []PlayerInput{{Mask: MaskUp}})
	explicit.Advance(tun, []PlayerInput{{Mask: MaskUp}, MissingInput()})

	if !bytes.Equal(padded.Encode(), explicit.Encode()) {
		t.Fatalf("short input slice was not padded with the missing sentinel")
	}
}

func TestAdvanceClampsPositionAndCapsSpeed(t *testing.T) {
	tun := DefaultTuning()
	state := newTestState(t, 1)
	state.Rotations[0] = 0 // facing +X, straight at the right wall

	hitWall := false
	for i := 0; i < 2000; i++ {
		state.Advance(tun, []PlayerInput{{Mask: MaskUp}})

		pos := state.Positions[0]
		if pos.X < 0 || pos.X > tun.ArenaWidth || pos.Y < 0 || pos.Y > tun.ArenaHeight {
			t.Fatalf("position escaped arena at frame %d: %+v", i+1, pos)
		}
		speed := math.Hypot(state.Velocities[0].X, state.Velocities[0].Y)
		if speed > tun.MaxSpeed {
			t.Fatalf("speed %v exceeds cap %v at frame %d", speed, tun.MaxSpeed, i+1)
		}
		if pos.X == tun.ArenaWidth {
			hitWall = true
		}
	}

	if !hitWall {
		t.Fatalf("expected sustained thrust to reach the wall")
	}
	// The clamp affects position only: the ship keeps a velocity pushing
	// into the wall. Intentional legacy behavior, pinned here so nobody
	// "fixes" it and desyncs against older builds.
	if state.Positions[0].X != tun.ArenaWidth || state.Velocities[0].X <= 0 {
		t.Fatalf("expected residual velocity into the wall, got pos=%+v vel=%+v",
			state.Positions[0], state.Velocities[0])
	}
}

func TestAdvanceKeepsRotationWrapped(t *testing.T) {
	tun := DefaultTuning()
	state := newTestState(t, 1)

	for _, mask := range []Input{MaskLeft, MaskRight} {
		for i := 0; i < 1000; i++ {
			state.Advance(tun, []PlayerInput{{Mask: mask}})
			rot := state.Rotations[0]
			if rot < 0 || rot >= 2*math.Pi {
				t.Fatalf("rotation %v escaped [0, 2pi) after frame %d", rot, i+1)
			}
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	tun := DefaultTuning()
	state := newTestState(t, 2)
	cloned := state.Clone()

	state.Advance(tun, []PlayerInput{{Mask: MaskUp}, {Mask: MaskLeft}})

	if cloned.Frame != 0 {
		t.Fatalf("clone frame mutated: %d", cloned.Frame)
	}
	if bytes.Equal(state.Encode(), cloned.Encode()) {
		t.Fatalf("expected advanced state to differ from clone")
	}
}

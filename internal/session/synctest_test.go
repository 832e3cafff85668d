package session

import (
	"errors"
	"math/rand"
	"testing"

	"driftbox/client/internal/sim"
)

// testExecutor applies request lists the way the game dispatcher does,
// with an optional hook to corrupt the state and provoke a desync.
type testExecutor struct {
	t       *testing.T
	tun     sim.Tuning
	state   *sim.State
	corrupt func(*sim.State)
}

func newTestExecutor(t *testing.T, numPlayers int) *testExecutor {
	t.Helper()
	tun := sim.DefaultTuning()
	state, err := sim.NewState(tun, numPlayers)
	if err != nil {
		t.Fatalf("failed to construct state: %v", err)
	}
	return &testExecutor{t: t, tun: tun, state: state}
}

func (e *testExecutor) apply(requests []Request) {
	e.t.Helper()
	for _, request := range requests {
		switch request.Type {
		case RequestSave:
			if request.Save.Frame != e.state.Frame {
				e.t.Fatalf("save for frame %d while state is at %d", request.Save.Frame, e.state.Frame)
			}
			request.Save.Slots.Put(SavedState{
				Frame:    e.state.Frame,
				State:    e.state.Clone(),
				Checksum: e.state.Checksum(),
			})
		case RequestLoad:
			saved, ok := request.Load.Slots.Get(request.Load.Frame)
			if !ok {
				e.t.Fatalf("load for unsaved frame %d", request.Load.Frame)
			}
			e.state = saved.State.Clone()
		case RequestAdvance:
			e.state.Advance(e.tun, request.Advance.Inputs)
			if e.corrupt != nil {
				e.corrupt(e.state)
			}
		default:
			e.t.Fatalf("unknown request type %q", request.Type)
		}
	}
}

func newSyncTestSession(t *testing.T, numPlayers, checkDistance int) *SyncTest {
	t.Helper()
	sess, err := NewSyncTest(SyncTestConfig{NumPlayers: numPlayers, CheckDistance: checkDistance})
	if err != nil {
		t.Fatalf("failed to construct sync test session: %v", err)
	}
	return sess
}

func TestSyncTestFirstFrameIsSaveThenAdvance(t *testing.T) {
	sess := newSyncTestSession(t, 2, 7)
	if err := sess.AddLocalInput(0, sim.MaskUp); err != nil {
		t.Fatalf("add input: %v", err)
	}

	requests, err := sess.AdvanceFrame()
	if err != nil {
		t.Fatalf("advance frame: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("expected save+advance on first frame, got %d requests", len(requests))
	}
	if requests[0].Type != RequestSave || requests[0].Save.Frame != 0 {
		t.Fatalf("expected Save(0) first, got %+v", requests[0])
	}
	if requests[1].Type != RequestAdvance {
		t.Fatalf("expected Advance second, got %+v", requests[1])
	}
	inputs := requests[1].Advance.Inputs
	if len(inputs) != 2 {
		t.Fatalf("expected 2 player inputs, got %d", len(inputs))
	}
	if inputs[0].Missing || inputs[0].Mask != sim.MaskUp {
		t.Fatalf("staged input lost: %+v", inputs[0])
	}
	if !inputs[1].Missing {
		t.Fatalf("unstaged handle should carry the missing sentinel: %+v", inputs[1])
	}
}

func TestSyncTestReplayWindowPassesForDeterministicGame(t *testing.T) {
	const checkDistance = 7
	sess := newSyncTestSession(t, 2, checkDistance)
	exec := newTestExecutor(t, 2)

	script := rand.New(rand.NewSource(11))
	for tick := 0; tick < 60; tick++ {
		for _, handle := range sess.LocalPlayerHandles() {
			if err := sess.AddLocalInput(handle, sim.Input(script.Intn(16))); err != nil {
				t.Fatalf("add input: %v", err)
			}
		}
		requests, err := sess.AdvanceFrame()
		if err != nil {
			t.Fatalf("advance frame %d: %v", tick, err)
		}
		exec.apply(requests)
	}

	if got := exec.state.Frame; got != 60 {
		t.Fatalf("expected state at frame 60, got %d", got)
	}
}

func TestSyncTestDetectsNondeterministicGame(t *testing.T) {
	sess := newSyncTestSession(t, 1, 3)
	exec := newTestExecutor(t, 1)

	// A game that folds wall-clock noise into its state diverges on
	// replay; the session must notice via mismatched re-save checksums.
	noise := rand.New(rand.NewSource(5))
	exec.corrupt = func(state *sim.State) {
		state.Positions[0].X += float64(noise.Intn(3)) * 1e-9
	}

	var sawDesync bool
	for tick := 0; tick < 40; tick++ {
		requests, err := sess.AdvanceFrame()
		if err != nil {
			if !errors.Is(err, ErrDesync) {
				t.Fatalf("expected desync error, got %v", err)
			}
			sawDesync = true
			break
		}
		exec.apply(requests)
	}

	if !sawDesync {
		t.Fatalf("nondeterministic game was never flagged")
	}
}

func TestSyncTestEvictsOutsideReplayWindow(t *testing.T) {
	const checkDistance = 4
	sess := newSyncTestSession(t, 1, checkDistance)
	exec := newTestExecutor(t, 1)

	for tick := 0; tick < 50; tick++ {
		requests, err := sess.AdvanceFrame()
		if err != nil {
			t.Fatalf("advance frame %d: %v", tick, err)
		}
		exec.apply(requests)
	}

	if got := sess.Slots().Len(); got > checkDistance+1 {
		t.Fatalf("slots retained %d saves, want at most %d", got, checkDistance+1)
	}
}

func TestSyncTestSessionSurface(t *testing.T) {
	sess := newSyncTestSession(t, 3, 2)

	if got := sess.CurrentState(); got != Running {
		t.Fatalf("expected running state, got %v", got)
	}
	if got := sess.FramesAhead(); got != 0 {
		t.Fatalf("expected no frames ahead, got %d", got)
	}
	if events := sess.Events(); len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
	if got := sess.LocalPlayerHandles(); len(got) != 3 {
		t.Fatalf("expected 3 local handles, got %v", got)
	}
	if got := sess.RemotePlayerHandles(); len(got) != 0 {
		t.Fatalf("expected no remote handles, got %v", got)
	}
	if _, err := sess.NetworkStats(0); !errors.Is(err, ErrNoStats) {
		t.Fatalf("expected ErrNoStats, got %v", err)
	}
	if err := sess.AddLocalInput(3, 0); err == nil {
		t.Fatalf("expected error for out-of-range handle")
	}
}

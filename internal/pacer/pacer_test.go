package pacer

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"driftbox/client/internal/game"
	"driftbox/client/internal/session"
	"driftbox/client/internal/sim"
	"driftbox/client/logging"
)

type fakeSession struct {
	state   session.SyncState
	ahead   int
	events  []session.Event
	stats   map[int]session.NetworkStats
	statsOK bool
	local   []int
	remote  []int

	polls        int
	advanceCalls int
	advanceErrs  []error
	added        []sim.Input
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		state:   session.Running,
		statsOK: true,
		local:   []int{0},
		remote:  []int{1},
		stats:   map[int]session.NetworkStats{},
	}
}

func (f *fakeSession) Poll() { f.polls++ }

func (f *fakeSession) CurrentState() session.SyncState { return f.state }

func (f *fakeSession) FramesAhead() int { return f.ahead }

func (f *fakeSession) Events() []session.Event {
	drained := f.events
	f.events = nil
	return drained
}

func (f *fakeSession) NetworkStats(handle int) (session.NetworkStats, error) {
	if !f.statsOK {
		return session.NetworkStats{}, session.ErrNoStats
	}
	return f.stats[handle], nil
}

func (f *fakeSession) LocalPlayerHandles() []int { return f.local }

func (f *fakeSession) RemotePlayerHandles() []int { return f.remote }

func (f *fakeSession) AddLocalInput(handle int, input sim.Input) error {
	f.added = append(f.added, input)
	return nil
}

func (f *fakeSession) AdvanceFrame() ([]session.Request, error) {
	call := f.advanceCalls
	f.advanceCalls++
	if call < len(f.advanceErrs) && f.advanceErrs[call] != nil {
		return nil, f.advanceErrs[call]
	}
	return nil, nil
}

var _ session.Session = (*fakeSession)(nil)

type testHarness struct {
	pacer   *Pacer
	session *fakeSession
	game    *game.Game
	now     time.Time
	pumps   *int
	results []TickResult
}

func newHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()
	g, err := game.New(game.Config{NumPlayers: 2})
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	h := &testHarness{session: newFakeSession(), game: g, pumps: new(int)}
	h.now = time.Unix(1000, 0)
	p, err := New(cfg, Deps{
		Session:   h.session,
		Game:      g,
		Scheduler: SchedulerFunc(func() { *h.pumps++ }),
		Clock:     logging.ClockFunc(func() time.Time { return h.now }),
	}, Hooks{AfterTick: func(r TickResult) { h.results = append(h.results, r) }})
	if err != nil {
		t.Fatalf("new pacer: %v", err)
	}
	h.pacer = p
	return h
}

func (h *testHarness) advanceClock(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *testHarness) tick(t *testing.T) TickResult {
	t.Helper()
	if err := h.pacer.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	return h.results[len(h.results)-1]
}

func TestTickPumpsSchedulerAroundPoll(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.tick(t)

	if *h.pumps != 3 {
		t.Fatalf("pumps = %d, want 3", *h.pumps)
	}
	if h.session.polls != 1 {
		t.Fatalf("polls = %d, want 1", h.session.polls)
	}
}

func TestTickPaysDownAccumulatedDebt(t *testing.T) {
	h := newHarness(t, Config{FPS: 60, AheadDilation: 1.1})
	step := time.Second / 60

	h.advanceClock(3*step + time.Millisecond)
	result := h.tick(t)

	if result.Frames != 3 {
		t.Fatalf("frames = %d, want 3", result.Frames)
	}
	if h.session.advanceCalls != 3 {
		t.Fatalf("advance calls = %d, want 3", h.session.advanceCalls)
	}
	if len(h.session.added) != 3 {
		t.Fatalf("staged inputs = %d, want 3", len(h.session.added))
	}
	if result.Status != StatusNormal {
		t.Fatalf("status = %v, want normal", result.Status)
	}

	// The leftover debt is below one step, so the next tick with no
	// elapsed time runs nothing.
	result = h.tick(t)
	if result.Frames != 0 {
		t.Fatalf("frames on idle tick = %d, want 0", result.Frames)
	}
}

func TestAheadSignalDilatesStep(t *testing.T) {
	h := newHarness(t, Config{FPS: 60, AheadDilation: 1.1})
	h.session.ahead = 1
	step := time.Second / 60

	// 1.05 steps of real time is under the 1.1x dilated step.
	h.advanceClock(step + step/20)
	result := h.tick(t)
	if result.Frames != 0 {
		t.Fatalf("frames under dilated step = %d, want 0", result.Frames)
	}
	if !result.Dilated {
		t.Fatalf("expected dilated tick")
	}

	// Another 0.15 steps pushes the debt past the dilated step.
	h.advanceClock(3 * step / 20)
	result = h.tick(t)
	if result.Frames != 1 {
		t.Fatalf("frames past dilated step = %d, want 1", result.Frames)
	}
	if result.Status != StatusSlow {
		t.Fatalf("status = %v, want slow", result.Status)
	}
}

func TestPredictionThresholdHaltsWithoutFailing(t *testing.T) {
	h := newHarness(t, Config{FPS: 60})
	h.session.advanceErrs = []error{session.ErrPredictionThreshold}
	step := time.Second / 60

	h.advanceClock(step + time.Millisecond)
	result := h.tick(t)

	if result.Frames != 0 {
		t.Fatalf("frames = %d, want 0", result.Frames)
	}
	if result.Status != StatusHalted {
		t.Fatalf("status = %v, want halted", result.Status)
	}

	// The next successful frame recovers to normal.
	h.advanceClock(step + time.Millisecond)
	result = h.tick(t)
	if result.Frames != 1 {
		t.Fatalf("frames after recovery = %d, want 1", result.Frames)
	}
	if result.Status != StatusNormal {
		t.Fatalf("status after recovery = %v, want normal", result.Status)
	}
}

func TestFatalSessionErrorPropagates(t *testing.T) {
	h := newHarness(t, Config{FPS: 60})
	boom := fmt.Errorf("socket torn down")
	h.session.advanceErrs = []error{boom}

	h.advanceClock(time.Second/60 + time.Millisecond)
	err := h.pacer.Tick()
	if err == nil {
		t.Fatalf("expected tick to fail")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped %v", err, boom)
	}
}

func TestEventsAndStatsFlowIntoTracker(t *testing.T) {
	h := newHarness(t, Config{FPS: 60})
	h.session.events = []session.Event{{Kind: session.EventSynchronized, Handles: []int{1}}}
	h.session.stats[1] = session.NetworkStats{Ping: 42 * time.Millisecond}

	h.tick(t)

	info := h.game.Tracker().Info(1)
	if info.Status != game.StatusRunning {
		t.Fatalf("remote status = %v, want running", info.Status)
	}
	if info.Stats == nil || info.Stats.Ping != 42*time.Millisecond {
		t.Fatalf("stats not refreshed: %+v", info.Stats)
	}

	// A failing stats query keeps the previous value.
	h.session.statsOK = false
	h.session.stats[1] = session.NetworkStats{}
	h.tick(t)
	info = h.game.Tracker().Info(1)
	if info.Stats == nil || info.Stats.Ping != 42*time.Millisecond {
		t.Fatalf("stale stats dropped: %+v", info.Stats)
	}
}

func TestDebtAccruesWhileSynchronizing(t *testing.T) {
	h := newHarness(t, Config{FPS: 60})
	h.session.state = session.Synchronizing
	step := time.Second / 60

	// Five steps of wall time pass while the session is still syncing.
	h.advanceClock(5 * step)
	result := h.tick(t)
	if result.Running || result.Frames != 0 {
		t.Fatalf("ran frames while synchronizing: %+v", result)
	}

	// Once the session runs, the whole backlog is paid in one burst.
	h.session.state = session.Running
	h.advanceClock(time.Millisecond)
	result = h.tick(t)
	if result.Frames != 5 {
		t.Fatalf("burst frames = %d, want 5", result.Frames)
	}
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	g, err := game.New(game.Config{NumPlayers: 2})
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	if _, err := New(DefaultConfig(), Deps{Game: g}, Hooks{}); err == nil {
		t.Fatalf("expected error without session")
	}
	if _, err := New(DefaultConfig(), Deps{Session: newFakeSession()}, Hooks{}); err == nil {
		t.Fatalf("expected error without game")
	}
}

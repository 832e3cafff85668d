package session

import (
	"fmt"

	"driftbox/client/internal/sim"
	"driftbox/client/internal/telemetry"
)

// SyncTestConfig tunes the sync-test session.
type SyncTestConfig struct {
	NumPlayers int
	// CheckDistance is how many confirmed frames are reloaded and
	// replayed each tick to verify determinism. 0 disables replay and
	// degrades the session to a plain frame driver.
	CheckDistance int
	Logger        telemetry.Logger
	Metrics       telemetry.Metrics
}

// SyncTest is a local session that turns the determinism requirement into
// a runtime check: every tick it re-loads a frame CheckDistance steps in
// the past and replays the recorded inputs, comparing the checksums the
// game re-saves against the originals. All players are local; there is no
// networking and no prediction. It issues the exact request stream shape
// a P2P rollback session would.
type SyncTest struct {
	numPlayers    int
	checkDistance int
	logger        telemetry.Logger
	metrics       telemetry.Metrics

	slots   *SaveSlots
	current sim.Frame
	inputs  map[sim.Frame][]sim.PlayerInput
	staged  []*sim.Input
	pending []pendingCheck
}

type pendingCheck struct {
	frame sim.Frame
	want  uint16
}

// NewSyncTest constructs a sync-test session for the given player count.
func NewSyncTest(cfg SyncTestConfig) (*SyncTest, error) {
	if cfg.NumPlayers < 1 || cfg.NumPlayers > sim.MaxPlayers {
		return nil, fmt.Errorf("invalid player count %d (want 1..%d)", cfg.NumPlayers, sim.MaxPlayers)
	}
	if cfg.CheckDistance < 0 {
		return nil, fmt.Errorf("invalid check distance %d", cfg.CheckDistance)
	}
	return &SyncTest{
		numPlayers:    cfg.NumPlayers,
		checkDistance: cfg.CheckDistance,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		slots:         NewSaveSlots(),
		inputs:        make(map[sim.Frame][]sim.PlayerInput),
		staged:        make([]*sim.Input, cfg.NumPlayers),
	}, nil
}

// Slots exposes the storage cell for diagnostics.
func (s *SyncTest) Slots() *SaveSlots {
	return s.slots
}

// Poll is a no-op: the sync-test session has no transport.
func (s *SyncTest) Poll() {}

// CurrentState always reports Running: there are no peers to wait for.
func (s *SyncTest) CurrentState() SyncState {
	return Running
}

// FramesAhead is always zero: a local session cannot outrun itself.
func (s *SyncTest) FramesAhead() int {
	return 0
}

// Events never reports anything: all players stay local for the whole
// session.
func (s *SyncTest) Events() []Event {
	return nil
}

// NetworkStats always fails: there are no remote peers to measure.
func (s *SyncTest) NetworkStats(handle int) (NetworkStats, error) {
	return NetworkStats{}, fmt.Errorf("handle %d: %w", handle, ErrNoStats)
}

// LocalPlayerHandles lists every handle: the sync-test session controls
// all players on this machine.
func (s *SyncTest) LocalPlayerHandles() []int {
	handles := make([]int, s.numPlayers)
	for i := range handles {
		handles[i] = i
	}
	return handles
}

// RemotePlayerHandles is empty for a local session.
func (s *SyncTest) RemotePlayerHandles() []int {
	return nil
}

// AddLocalInput stages one player's input for the upcoming frame.
// Handles without a staged input advance with the missing-input sentinel.
func (s *SyncTest) AddLocalInput(handle int, input sim.Input) error {
	if handle < 0 || handle >= s.numPlayers {
		return fmt.Errorf("invalid player handle %d", handle)
	}
	staged := input
	s.staged[handle] = &staged
	return nil
}

// AdvanceFrame verifies last tick's replayed checksums, then emits this
// tick's requests: an optional load-and-replay segment over the check
// window, followed by the canonical save and advance of the current
// frame.
func (s *SyncTest) AdvanceFrame() ([]Request, error) {
	if err := s.verifyPending(); err != nil {
		return nil, err
	}

	inputs := s.drainStaged()
	s.inputs[s.current] = inputs

	var requests []Request

	if s.checkDistance > 0 && s.current >= sim.Frame(s.checkDistance) {
		oldest := s.current - sim.Frame(s.checkDistance)
		requests = append(requests, NewLoad(s.slots, oldest))
		for frame := oldest; frame < s.current; frame++ {
			requests = append(requests, NewAdvance(s.inputs[frame]))
			resaved := frame + 1
			if resaved < s.current {
				if canonical, ok := s.slots.Get(resaved); ok {
					s.pending = append(s.pending, pendingCheck{frame: resaved, want: canonical.Checksum})
					requests = append(requests, NewSave(s.slots, resaved))
				}
			}
		}
		if s.metrics != nil {
			s.metrics.Add("synctest_replays", 1)
		}
	}

	requests = append(requests, NewSave(s.slots, s.current))
	requests = append(requests, NewAdvance(inputs))

	s.evictConfirmed()
	s.current++
	return requests, nil
}

func (s *SyncTest) verifyPending() error {
	for _, check := range s.pending {
		resaved, ok := s.slots.Get(check.frame)
		if !ok {
			return fmt.Errorf("replayed frame %d was never re-saved: %w", check.frame, ErrDesync)
		}
		if resaved.Checksum != check.want {
			if s.logger != nil {
				s.logger.Printf("[synctest] frame %d checksum %#04x != original %#04x",
					check.frame, resaved.Checksum, check.want)
			}
			if s.metrics != nil {
				s.metrics.Add("synctest_mismatches", 1)
			}
			return fmt.Errorf("frame %d replayed with checksum %#04x, originally %#04x: %w",
				check.frame, resaved.Checksum, check.want, ErrDesync)
		}
	}
	s.pending = s.pending[:0]
	return nil
}

func (s *SyncTest) drainStaged() []sim.PlayerInput {
	inputs := make([]sim.PlayerInput, s.numPlayers)
	for i, staged := range s.staged {
		if staged == nil {
			inputs[i] = sim.MissingInput()
			continue
		}
		inputs[i] = sim.PlayerInput{Mask: *staged}
		s.staged[i] = nil
	}
	return inputs
}

// evictConfirmed drops saves and recorded inputs that have fallen out of
// the replay window. Retention is this session's responsibility, not the
// game's.
func (s *SyncTest) evictConfirmed() {
	if s.checkDistance <= 0 {
		// No replay window: only the newest save can ever be loaded.
		s.slots.EvictBefore(s.current)
		delete(s.inputs, s.current-1)
		return
	}
	// Keep the full window including this tick's load target; the
	// requests emitted above are dispatched after this runs.
	horizon := s.current - sim.Frame(s.checkDistance)
	if horizon <= 0 {
		return
	}
	s.slots.EvictBefore(horizon)
	for frame := range s.inputs {
		if frame < horizon {
			delete(s.inputs, frame)
		}
	}
}

var _ Session = (*SyncTest)(nil)

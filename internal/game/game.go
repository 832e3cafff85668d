// Package game owns the local half of the rollback contract: it applies
// the session's Save/Load/Advance requests to the deterministic state,
// keeps checksum bookkeeping for divergence spotting, and tracks
// per-player connection status.
package game

import (
	"context"
	"errors"
	"fmt"

	"driftbox/client/internal/session"
	"driftbox/client/internal/sim"
	"driftbox/client/internal/telemetry"
	"driftbox/client/logging"
)

// ErrFrameMismatch reports a Save request whose target frame does not
// match the simulation frame. The session and the game disagree about
// frame bookkeeping; there is no safe way to continue.
var ErrFrameMismatch = errors.New("save frame does not match simulation frame")

// ErrMissingSave reports a Load request for a frame that was never saved.
// The rollback contract guarantees loads only target saved frames, so
// this is equally unrecoverable.
var ErrMissingSave = errors.New("load requested for unsaved frame")

// ChecksumRecord pairs a frame with the checksum computed right after it
// was simulated. Display-only; nothing compares these automatically.
type ChecksumRecord struct {
	Frame    sim.Frame
	Checksum uint16
}

// InputSource samples the current local control state for one player
// handle. The render layer provides the real one; tests provide fakes.
type InputSource interface {
	Sample(handle int) sim.Input
}

// InputSourceFunc adapts functions into the InputSource interface.
type InputSourceFunc func(handle int) sim.Input

func (f InputSourceFunc) Sample(handle int) sim.Input {
	if f == nil {
		return 0
	}
	return f(handle)
}

// Config assembles a Game.
type Config struct {
	Tuning     sim.Tuning
	NumPlayers int
	Source     InputSource
	Publisher  logging.Publisher
	Logger     telemetry.Logger
	Metrics    telemetry.Metrics
}

// Game is the frame request dispatcher plus its observability
// bookkeeping. It runs on a single control flow; nothing here locks.
type Game struct {
	tuning     sim.Tuning
	numPlayers int
	state      *sim.State
	tracker    *Tracker
	source     InputSource
	publisher  logging.Publisher
	logger     telemetry.Logger
	metrics    telemetry.Metrics

	lastChecksum     ChecksumRecord
	periodicChecksum ChecksumRecord
}

// New constructs a game with freshly placed players.
func New(cfg Config) (*Game, error) {
	tuning := cfg.Tuning.Normalized()
	state, err := sim.NewState(tuning, cfg.NumPlayers)
	if err != nil {
		return nil, err
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Game{
		tuning:           tuning,
		numPlayers:       cfg.NumPlayers,
		state:            state,
		tracker:          NewTracker(cfg.NumPlayers),
		source:           cfg.Source,
		publisher:        publisher,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		lastChecksum:     ChecksumRecord{Frame: sim.NullFrame},
		periodicChecksum: ChecksumRecord{Frame: sim.NullFrame},
	}, nil
}

// Tuning returns the normalized tuning the game runs with.
func (g *Game) Tuning() sim.Tuning {
	return g.tuning
}

// Frame reports the current simulation frame.
func (g *Game) Frame() sim.Frame {
	return g.state.Frame
}

// Tracker exposes the connection status tracker.
func (g *Game) Tracker() *Tracker {
	return g.tracker
}

// HandleRequests applies a session request list strictly in order. The
// first failure aborts the remainder; every failure here is a broken
// rollback contract.
func (g *Game) HandleRequests(requests []session.Request) error {
	for _, request := range requests {
		var err error
		switch request.Type {
		case session.RequestSave:
			err = g.saveState(request.Save)
		case session.RequestLoad:
			err = g.loadState(request.Load)
		case session.RequestAdvance:
			err = g.advanceFrame(request.Advance)
		default:
			err = fmt.Errorf("unknown request type %q", request.Type)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// saveState serializes the current state and its checksum into the
// session-owned slot for the requested frame.
func (g *Game) saveState(request *session.SaveRequest) error {
	if request == nil || request.Slots == nil {
		return fmt.Errorf("malformed save request")
	}
	if request.Frame != g.state.Frame {
		return fmt.Errorf("save for frame %d while simulation is at %d: %w",
			request.Frame, g.state.Frame, ErrFrameMismatch)
	}
	request.Slots.Put(session.SavedState{
		Frame:    g.state.Frame,
		State:    g.state.Clone(),
		Checksum: g.state.Checksum(),
	})
	if g.metrics != nil {
		g.metrics.Add("frames_saved", 1)
	}
	return nil
}

// loadState replaces the simulation state wholesale with a prior save.
func (g *Game) loadState(request *session.LoadRequest) error {
	if request == nil || request.Slots == nil {
		return fmt.Errorf("malformed load request")
	}
	saved, ok := request.Slots.Get(request.Frame)
	if !ok {
		return fmt.Errorf("frame %d: %w", request.Frame, ErrMissingSave)
	}
	g.state = saved.State.Clone()
	if g.metrics != nil {
		g.metrics.Add("frames_loaded", 1)
	}
	return nil
}

// advanceFrame runs one simulation step and refreshes the checksum
// records. Serializing the whole state every frame just for a checksum
// is wasteful but matches what the divergence display needs.
func (g *Game) advanceFrame(request *session.AdvanceRequest) error {
	if request == nil {
		return fmt.Errorf("malformed advance request")
	}
	g.state.Advance(g.tuning, request.Inputs)

	record := ChecksumRecord{Frame: g.state.Frame, Checksum: g.state.Checksum()}
	g.lastChecksum = record
	if g.state.Frame%g.tuning.ChecksumPeriod == 0 {
		g.periodicChecksum = record
		g.publisher.Publish(context.Background(), logging.Event{
			Type:     "periodic_checksum",
			Frame:    int64(record.Frame),
			Category: logging.CategorySim,
			Severity: logging.SeverityDebug,
			Payload:  map[string]any{"checksum": record.Checksum},
		})
	}
	if g.metrics != nil {
		g.metrics.Add("frames_advanced", 1)
	}
	return nil
}

// LocalInput samples the control state for one locally-controlled player.
func (g *Game) LocalInput(handle int) sim.Input {
	if g.source == nil {
		return 0
	}
	return g.source.Sample(handle)
}

// LastChecksum returns the record for the most recent advance.
func (g *Game) LastChecksum() ChecksumRecord {
	return g.lastChecksum
}

// PeriodicChecksum returns the record for the most recent frame divisible
// by the checksum period.
func (g *Game) PeriodicChecksum() ChecksumRecord {
	return g.periodicChecksum
}

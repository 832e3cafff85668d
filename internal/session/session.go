// Package session defines the contract between the deterministic game
// core and a rollback-netcode session. The session owns input prediction,
// frame rewinding, and peer synchronization; the core only answers its
// Save/Load/Advance requests and reacts to its events. The one session
// implementation shipped here is the local sync-test session; a P2P
// session is an external collaborator behind the same interface.
package session

import (
	"errors"
	"time"

	"driftbox/client/internal/sim"
)

// SyncState reports whether the session is still exchanging handshakes or
// ready to run frames.
type SyncState int

const (
	Synchronizing SyncState = iota
	Running
)

func (s SyncState) String() string {
	switch s {
	case Synchronizing:
		return "synchronizing"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// ErrPredictionThreshold signals that the session has simulated as far
// ahead of confirmed remote input as it is allowed to. Expected,
// recoverable flow control: skip the frame and try again next tick.
var ErrPredictionThreshold = errors.New("prediction window exhausted")

// ErrDesync reports that a replayed frame produced a different checksum
// than its original simulation. Not recoverable.
var ErrDesync = errors.New("desync detected")

// ErrNoStats is returned for players without network statistics, such as
// local players or sync-test handles.
var ErrNoStats = errors.New("no network stats for player")

// RequestType tags the Request variants.
type RequestType string

const (
	RequestSave    RequestType = "Save"
	RequestLoad    RequestType = "Load"
	RequestAdvance RequestType = "Advance"
)

// Request is one operation the session asks the game to perform. Exactly
// one payload pointer matching Type is set. Requests from a single
// AdvanceFrame call must be consumed strictly in order.
type Request struct {
	Type    RequestType
	Save    *SaveRequest
	Load    *LoadRequest
	Advance *AdvanceRequest
}

// SaveRequest asks the game to serialize the state for Frame into Slots.
// The game must be exactly at Frame when it executes the request.
type SaveRequest struct {
	Frame sim.Frame
	Slots *SaveSlots
}

// LoadRequest asks the game to replace its state wholesale with the
// snapshot previously saved for Frame.
type LoadRequest struct {
	Frame sim.Frame
	Slots *SaveSlots
}

// AdvanceRequest asks the game to run one simulation step with the given
// per-player inputs.
type AdvanceRequest struct {
	Inputs []sim.PlayerInput
}

// NewSave builds a Save request.
func NewSave(slots *SaveSlots, frame sim.Frame) Request {
	return Request{Type: RequestSave, Save: &SaveRequest{Frame: frame, Slots: slots}}
}

// NewLoad builds a Load request.
func NewLoad(slots *SaveSlots, frame sim.Frame) Request {
	return Request{Type: RequestLoad, Load: &LoadRequest{Frame: frame, Slots: slots}}
}

// NewAdvance builds an Advance request.
func NewAdvance(inputs []sim.PlayerInput) Request {
	return Request{Type: RequestAdvance, Advance: &AdvanceRequest{Inputs: inputs}}
}

// EventKind tags session connectivity events.
type EventKind string

const (
	EventSynchronized       EventKind = "synchronized"
	EventDisconnected       EventKind = "disconnected"
	EventNetworkInterrupted EventKind = "network_interrupted"
	EventNetworkResumed     EventKind = "network_resumed"
)

// Event reports a connectivity change for one or more player handles.
type Event struct {
	Kind    EventKind
	Handles []int
	// Timeout is set for network_interrupted events: how long until the
	// session gives up and disconnects the peer.
	Timeout time.Duration
}

// NetworkStats is the session's latest estimate for one remote player.
type NetworkStats struct {
	Ping         time.Duration
	KbpsSent     int
	SendQueueLen int
}

// Session is the rollback-netcode collaborator driven by the frame pacer.
// All methods are non-blocking; Poll must be cheap enough to call every
// outer tick.
type Session interface {
	// Poll lets the session process inbound and outbound protocol
	// traffic. Called once per outer tick between scheduler pumps.
	Poll()

	CurrentState() SyncState

	// FramesAhead reports how far the local client has simulated past
	// the slowest remote peer. Positive values are the backpressure
	// signal that dilates the local frame step.
	FramesAhead() int

	// Events drains connectivity events accumulated since the last call.
	Events() []Event

	NetworkStats(handle int) (NetworkStats, error)

	LocalPlayerHandles() []int
	RemotePlayerHandles() []int

	// AddLocalInput stages one local player's input for the next frame.
	AddLocalInput(handle int, input sim.Input) error

	// AdvanceFrame asks the session to move the game one frame forward.
	// It returns the ordered request list to apply, or
	// ErrPredictionThreshold when the prediction window is exhausted.
	// Any other error is a broken session.
	AdvanceFrame() ([]Request, error)
}

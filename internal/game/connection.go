package game

import "driftbox/client/internal/session"

// Status is one player's connection state as reported by the session.
// The zero value is Synchronizing, the state every remote player starts
// in.
type Status int

const (
	StatusSynchronizing Status = iota
	StatusLocal
	StatusRunning
	StatusInterrupted
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusSynchronizing:
		return "synchronizing"
	case StatusLocal:
		return "local"
	case StatusRunning:
		return "running"
	case StatusInterrupted:
		return "interrupted"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionInfo is the tracked state for one player: the status machine
// plus the last known network stats. Stats survive a disconnect on
// purpose; the status flag tells the display layer they are stale.
type ConnectionInfo struct {
	Status Status
	Stats  *session.NetworkStats
}

// Tracker is the per-player connection state machine. Session events are
// the only transition trigger; everything else reads.
type Tracker struct {
	infos []ConnectionInfo
}

// NewTracker creates one ConnectionInfo per player, all Synchronizing.
// Entries live for the whole session; they are never removed.
func NewTracker(numPlayers int) *Tracker {
	if numPlayers < 0 {
		numPlayers = 0
	}
	return &Tracker{infos: make([]ConnectionInfo, numPlayers)}
}

// MarkLocal pins the given handles to StatusLocal. Assigned once at
// session start; local players never transition away.
func (t *Tracker) MarkLocal(handles ...int) {
	for _, handle := range handles {
		if !t.valid(handle) {
			continue
		}
		t.infos[handle].Status = StatusLocal
	}
}

// Apply advances the state machine for every handle the event names.
// Events that do not match a legal transition are dropped: the session
// may report a disconnect for an already-disconnected peer, and Local
// and Disconnected are both sticky.
func (t *Tracker) Apply(event session.Event) {
	for _, handle := range event.Handles {
		if !t.valid(handle) {
			continue
		}
		status := t.infos[handle].Status
		if status == StatusLocal || status == StatusDisconnected {
			continue
		}
		switch event.Kind {
		case session.EventSynchronized:
			if status == StatusSynchronizing {
				t.infos[handle].Status = StatusRunning
			}
		case session.EventNetworkInterrupted:
			if status == StatusRunning {
				t.infos[handle].Status = StatusInterrupted
			}
		case session.EventNetworkResumed:
			if status == StatusInterrupted {
				t.infos[handle].Status = StatusRunning
			}
		case session.EventDisconnected:
			t.infos[handle].Status = StatusDisconnected
		}
	}
}

// UpdateStats caches the latest network stats for a handle. Called every
// tick for remote players regardless of status.
func (t *Tracker) UpdateStats(handle int, stats session.NetworkStats) {
	if !t.valid(handle) {
		return
	}
	t.infos[handle].Stats = &stats
}

// Info returns the tracked state for one handle.
func (t *Tracker) Info(handle int) ConnectionInfo {
	if !t.valid(handle) {
		return ConnectionInfo{}
	}
	return t.infos[handle]
}

// Infos returns a copy of every player's tracked state.
func (t *Tracker) Infos() []ConnectionInfo {
	copied := make([]ConnectionInfo, len(t.infos))
	copy(copied, t.infos)
	return copied
}

func (t *Tracker) valid(handle int) bool {
	return handle >= 0 && handle < len(t.infos)
}

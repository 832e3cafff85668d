package session

import "driftbox/client/internal/sim"

// SavedState is one stored snapshot with the checksum computed at save
// time.
type SavedState struct {
	Frame    sim.Frame
	State    *sim.State
	Checksum uint16
}

// SaveSlots is the session-owned storage cell the game writes saves into
// and reads loads from, keyed by frame. Retention policy belongs to the
// session, not the game. Single control flow, so no locking.
type SaveSlots struct {
	entries map[sim.Frame]SavedState
}

func NewSaveSlots() *SaveSlots {
	return &SaveSlots{entries: make(map[sim.Frame]SavedState)}
}

// Put stores a snapshot, replacing any previous save for the same frame.
func (s *SaveSlots) Put(saved SavedState) {
	if s == nil || saved.State == nil {
		return
	}
	s.entries[saved.Frame] = saved
}

// Get returns the snapshot saved for frame, if any.
func (s *SaveSlots) Get(frame sim.Frame) (SavedState, bool) {
	if s == nil {
		return SavedState{}, false
	}
	saved, ok := s.entries[frame]
	return saved, ok
}

// EvictBefore drops every save older than frame and reports how many
// entries were removed.
func (s *SaveSlots) EvictBefore(frame sim.Frame) int {
	if s == nil {
		return 0
	}
	evicted := 0
	for f := range s.entries {
		if f < frame {
			delete(s.entries, f)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of retained saves.
func (s *SaveSlots) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

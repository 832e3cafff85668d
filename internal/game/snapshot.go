package game

import "driftbox/client/internal/sim"

// PlayerView is one player's renderable state.
type PlayerView struct {
	Position   sim.Vec2
	Rotation   float64
	Connection ConnectionInfo
}

// Snapshot is the read-only view handed to the display layer once per
// outer tick. It copies everything it exposes; rendering never touches
// live simulation state.
type Snapshot struct {
	Frame            sim.Frame
	ArenaWidth       float64
	ArenaHeight      float64
	Players          []PlayerView
	LastChecksum     ChecksumRecord
	PeriodicChecksum ChecksumRecord
}

// Snapshot captures the current display view.
func (g *Game) Snapshot() Snapshot {
	players := make([]PlayerView, g.numPlayers)
	for i := 0; i < g.numPlayers; i++ {
		players[i] = PlayerView{
			Position:   g.state.Positions[i],
			Rotation:   g.state.Rotations[i],
			Connection: g.tracker.Info(i),
		}
	}
	return Snapshot{
		Frame:            g.state.Frame,
		ArenaWidth:       g.tuning.ArenaWidth,
		ArenaHeight:      g.tuning.ArenaHeight,
		Players:          players,
		LastChecksum:     g.lastChecksum,
		PeriodicChecksum: g.periodicChecksum,
	}
}

package sim

// MaxPlayers bounds the per-frame input vector exchanged with peers.
const MaxPlayers = 4

// Tuning collects every numeric constant the simulation depends on. All
// peers in a session must run the same tuning; values feed the checksum
// indirectly through the state they produce.
type Tuning struct {
	ArenaWidth     float64 `json:"arenaWidth"`
	ArenaHeight    float64 `json:"arenaHeight"`
	Thrust         float64 `json:"thrust"`
	TurnRate       float64 `json:"turnRate"`
	MaxSpeed       float64 `json:"maxSpeed"`
	Friction       float64 `json:"friction"`
	FPS            int     `json:"fps"`
	ChecksumPeriod Frame   `json:"checksumPeriod"`
}

// DefaultTuning mirrors the original box-game constants: an 800x800 arena
// at 60 frames per second with per-frame thrust and turn steps.
func DefaultTuning() Tuning {
	const fps = 60
	return Tuning{
		ArenaWidth:     800,
		ArenaHeight:    800,
		Thrust:         15.0 / fps,
		TurnRate:       2.5 / fps,
		MaxSpeed:       7,
		Friction:       0.98,
		FPS:            fps,
		ChecksumPeriod: 100,
	}
}

// Normalized replaces out-of-range values with usable defaults.
func (t Tuning) Normalized() Tuning {
	def := DefaultTuning()
	if t.ArenaWidth <= 0 {
		t.ArenaWidth = def.ArenaWidth
	}
	if t.ArenaHeight <= 0 {
		t.ArenaHeight = def.ArenaHeight
	}
	if t.Thrust <= 0 {
		t.Thrust = def.Thrust
	}
	if t.TurnRate <= 0 {
		t.TurnRate = def.TurnRate
	}
	if t.MaxSpeed <= 0 {
		t.MaxSpeed = def.MaxSpeed
	}
	if t.Friction <= 0 || t.Friction > 1 {
		t.Friction = def.Friction
	}
	if t.FPS <= 0 {
		t.FPS = def.FPS
	}
	if t.ChecksumPeriod <= 0 {
		t.ChecksumPeriod = def.ChecksumPeriod
	}
	return t
}

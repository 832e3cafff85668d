package app

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"driftbox/client/internal/sim"
	"driftbox/client/internal/telemetry"
)

// Config is the process configuration, loaded from environment variables.
type Config struct {
	// NumPlayers is the total player count, local plus remote.
	NumPlayers int `env:"DRIFTBOX_PLAYERS" envDefault:"2"`
	// CheckDistance is the sync-test replay depth. 0 disables the
	// per-tick determinism replay.
	CheckDistance int `env:"DRIFTBOX_CHECK_DISTANCE" envDefault:"7"`
	// RelayURL points at the lobby relay. Empty skips the lobby and
	// starts the session with all players local.
	RelayURL string `env:"DRIFTBOX_RELAY_URL"`
	// Headless runs without a terminal viewer, driving ships with a
	// scripted pilot. RunFrames bounds the run; 0 means until canceled.
	Headless  bool `env:"DRIFTBOX_HEADLESS" envDefault:"false"`
	RunFrames int  `env:"DRIFTBOX_RUN_FRAMES" envDefault:"0"`

	FPS         int     `env:"DRIFTBOX_FPS" envDefault:"60"`
	ArenaWidth  float64 `env:"DRIFTBOX_ARENA_WIDTH" envDefault:"800"`
	ArenaHeight float64 `env:"DRIFTBOX_ARENA_HEIGHT" envDefault:"800"`

	LogColor bool `env:"DRIFTBOX_LOG_COLOR" envDefault:"true"`

	Logger telemetry.Logger `env:"-"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the session cannot run with.
func (c Config) Validate() error {
	if c.NumPlayers < 1 || c.NumPlayers > sim.MaxPlayers {
		return fmt.Errorf("invalid DRIFTBOX_PLAYERS=%d (want 1..%d)", c.NumPlayers, sim.MaxPlayers)
	}
	if c.CheckDistance < 0 {
		return fmt.Errorf("invalid DRIFTBOX_CHECK_DISTANCE=%d", c.CheckDistance)
	}
	if c.RunFrames < 0 {
		return fmt.Errorf("invalid DRIFTBOX_RUN_FRAMES=%d", c.RunFrames)
	}
	return nil
}

// tuning maps the config overrides onto the simulation constants.
func (c Config) tuning() sim.Tuning {
	t := sim.DefaultTuning()
	t.ArenaWidth = c.ArenaWidth
	t.ArenaHeight = c.ArenaHeight
	if c.FPS > 0 && c.FPS != t.FPS {
		// Per-frame steps are derived from per-second rates, so an FPS
		// override rescales them.
		t.Thrust = t.Thrust * float64(t.FPS) / float64(c.FPS)
		t.TurnRate = t.TurnRate * float64(t.FPS) / float64(c.FPS)
		t.FPS = c.FPS
	}
	return t.Normalized()
}

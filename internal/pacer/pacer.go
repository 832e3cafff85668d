// Package pacer drives the outer tick: it pumps the cooperative network
// scheduler, polls the rollback session, routes connectivity events, and
// runs logical frames against a fixed timestep with catch-up dilation.
package pacer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"driftbox/client/internal/game"
	"driftbox/client/internal/session"
	"driftbox/client/internal/telemetry"
	"driftbox/client/logging"
)

// Scheduler is the externally owned cooperative task runner responsible
// for network I/O. The pacer ticks it at defined points so messages are
// drained without blocking the simulation flow.
type Scheduler interface {
	Pump()
}

// SchedulerFunc adapts functions into the Scheduler interface.
type SchedulerFunc func()

func (f SchedulerFunc) Pump() {
	if f == nil {
		return
	}
	f()
}

type nopScheduler struct{}

func (nopScheduler) Pump() {}

// Status describes how the most recent logical frame went.
type Status int

const (
	// StatusNormal: frames run at the base step.
	StatusNormal Status = iota
	// StatusSlow: the session reported the local client ahead of its
	// peers, so the step is dilated to let them catch up.
	StatusSlow
	// StatusHalted: the prediction window is exhausted and the frame
	// was skipped. Expected flow control, not an error.
	StatusHalted
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusSlow:
		return "slow"
	case StatusHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// Config tunes the pacing loop.
type Config struct {
	// FPS is the fixed simulation rate. The base step is 1/FPS.
	FPS int
	// AheadDilation multiplies the step while the session reports the
	// local client ahead. Linear, uncontrolled damping; nothing feeds
	// back into it.
	AheadDilation float64
}

// DefaultConfig matches the original demo: 60 FPS with a 1.1x dilation.
func DefaultConfig() Config {
	return Config{FPS: 60, AheadDilation: 1.1}
}

func (c Config) normalized() Config {
	if c.FPS <= 0 {
		c.FPS = 60
	}
	if c.AheadDilation < 1 {
		c.AheadDilation = 1.1
	}
	return c
}

// TickResult summarizes one outer tick for hooks and the display layer.
type TickResult struct {
	Frames      int
	Status      Status
	Running     bool
	Dilated     bool
	Accumulator time.Duration
}

// Hooks let the host observe the loop without owning it.
type Hooks struct {
	AfterTick func(TickResult)
}

// Deps carries the collaborators the pacer drives.
type Deps struct {
	Session   session.Session
	Game      *game.Game
	Scheduler Scheduler
	Clock     logging.Clock
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
}

// Pacer owns the accumulated time debt and the last wall-clock sample.
type Pacer struct {
	cfg       Config
	session   session.Session
	game      *game.Game
	sched     Scheduler
	clock     logging.Clock
	publisher logging.Publisher
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	hooks     Hooks

	accumulator time.Duration
	last        time.Time
	status      Status
}

// New wires a pacer around a session and game.
func New(cfg Config, deps Deps, hooks Hooks) (*Pacer, error) {
	if deps.Session == nil {
		return nil, fmt.Errorf("pacer requires a session")
	}
	if deps.Game == nil {
		return nil, fmt.Errorf("pacer requires a game")
	}
	clock := deps.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	sched := deps.Scheduler
	if sched == nil {
		sched = nopScheduler{}
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Pacer{
		cfg:       cfg.normalized(),
		session:   deps.Session,
		game:      deps.Game,
		sched:     sched,
		clock:     clock,
		publisher: publisher,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		hooks:     hooks,
		last:      clock.Now(),
	}, nil
}

// Status reports the most recently recorded pace status.
func (p *Pacer) Status() Status {
	return p.status
}

// Accumulator reports the current time debt, for diagnostics.
func (p *Pacer) Accumulator() time.Duration {
	return p.accumulator
}

// Tick runs one outer tick. It never blocks; a non-nil error means the
// session contract is broken and the process should stop.
func (p *Pacer) Tick() error {
	// Drain network I/O around the session poll so inbound messages are
	// visible to it and its outbound messages leave promptly.
	p.sched.Pump()
	p.session.Poll()
	p.sched.Pump()

	p.routeEvents()
	p.refreshStats()

	result := TickResult{Status: p.status}

	if p.session.CurrentState() == session.Running {
		result.Running = true
		frames, dilated, err := p.runFrames()
		if err != nil {
			return err
		}
		result.Frames = frames
		result.Dilated = dilated
	}
	// While synchronizing, the wall-clock sample is deliberately left
	// alone: debt keeps accruing and is paid in a catch-up burst once
	// the session starts running. Matches the original; whether the
	// burst should be capped is an open question upstream.

	p.sched.Pump()

	result.Status = p.status
	result.Accumulator = p.accumulator
	if p.metrics != nil {
		p.metrics.Add("outer_ticks", 1)
	}
	if p.hooks.AfterTick != nil {
		p.hooks.AfterTick(result)
	}
	return nil
}

// runFrames pays down accumulated time debt one fixed step at a time.
func (p *Pacer) runFrames() (int, bool, error) {
	step := time.Duration(float64(time.Second) / float64(p.cfg.FPS))
	dilated := p.session.FramesAhead() > 0
	if dilated {
		step = time.Duration(float64(step) * p.cfg.AheadDilation)
	}

	now := p.clock.Now()
	if delta := now.Sub(p.last); delta > 0 {
		p.accumulator += delta
	}
	p.last = now

	frames := 0
	for p.accumulator > step {
		p.accumulator -= step

		for _, handle := range p.session.LocalPlayerHandles() {
			if err := p.session.AddLocalInput(handle, p.game.LocalInput(handle)); err != nil {
				return frames, dilated, fmt.Errorf("add local input for handle %d: %w", handle, err)
			}
		}

		requests, err := p.session.AdvanceFrame()
		switch {
		case err == nil:
			if err := p.game.HandleRequests(requests); err != nil {
				return frames, dilated, fmt.Errorf("apply frame requests: %w", err)
			}
			frames++
			if dilated {
				p.setStatus(StatusSlow)
			} else {
				p.setStatus(StatusNormal)
			}
			if p.metrics != nil {
				p.metrics.Add("frames_run", 1)
			}
		case errors.Is(err, session.ErrPredictionThreshold):
			// Expected backpressure: skip this frame and let the next
			// tick try again once the session confirms remote input.
			p.setStatus(StatusHalted)
			if p.metrics != nil {
				p.metrics.Add("frames_halted", 1)
			}
		default:
			return frames, dilated, fmt.Errorf("session advance failed: %w", err)
		}
	}
	return frames, dilated, nil
}

// routeEvents feeds connectivity events into the tracker.
func (p *Pacer) routeEvents() {
	for _, ev := range p.session.Events() {
		p.game.Tracker().Apply(ev)
		p.publisher.Publish(context.Background(), logging.Event{
			Type:     logging.EventType("session_" + string(ev.Kind)),
			Frame:    int64(p.game.Frame()),
			Category: logging.CategoryNetcode,
			Severity: logging.SeverityInfo,
			Payload:  map[string]any{"handles": ev.Handles},
		})
	}
}

// refreshStats caches network stats for remote players. Failed queries
// leave the previous value in place.
func (p *Pacer) refreshStats() {
	for _, handle := range p.session.RemotePlayerHandles() {
		stats, err := p.session.NetworkStats(handle)
		if err != nil {
			continue
		}
		p.game.Tracker().UpdateStats(handle, stats)
	}
}

func (p *Pacer) setStatus(status Status) {
	if p.status == status {
		return
	}
	p.status = status
	p.publisher.Publish(context.Background(), logging.Event{
		Type:     "pace_status",
		Frame:    int64(p.game.Frame()),
		Category: logging.CategoryPacing,
		Severity: logging.SeverityDebug,
		Payload:  map[string]any{"status": status.String()},
	})
}

// Run drives Tick at the outer rate until the stop channel closes or a
// tick fails.
func (p *Pacer) Run(stop <-chan struct{}) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / float64(p.cfg.FPS)))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			if err := p.Tick(); err != nil {
				return err
			}
		}
	}
}

// Package app assembles the demo client: lobby, session, game, pacer and
// viewer, in that order, torn down in reverse.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"driftbox/client/internal/game"
	"driftbox/client/internal/pacer"
	"driftbox/client/internal/relay"
	"driftbox/client/internal/render"
	"driftbox/client/internal/session"
	"driftbox/client/internal/sim"
	"driftbox/client/internal/telemetry"
	"driftbox/client/logging"
	loggingSinks "driftbox/client/logging/sinks"
)

// Run drives the whole client lifecycle: Lobby (when a relay is set),
// then Connecting (session construction), then Game (the pacer loop).
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	logConfig := logging.DefaultConfig()
	logConfig.Console.UseColor = cfg.LogColor
	var namedSinks []logging.NamedSink
	if !cfg.Headless || os.Getenv("DRIFTBOX_LOG_STDOUT") != "" {
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: "console",
			Sink: loggingSinks.NewConsoleSink(os.Stderr, logConfig.Console),
		})
	}
	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, namedSinks)
	if err != nil {
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	counters := &logging.Metrics{}
	metrics := telemetry.WrapMetrics(counters)

	// Lobby phase: wait for the roster to fill before the session starts.
	var scheduler pacer.Scheduler
	if cfg.RelayURL != "" {
		client, err := relay.Dial(ctx, relay.Config{
			URL:       cfg.RelayURL,
			Logger:    telemetryLogger,
			Publisher: router,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		if err := waitForPeers(ctx, client, cfg.NumPlayers-1); err != nil {
			return err
		}
		telemetryLogger.Printf("lobby complete: %d peers", len(client.Peers()))
		scheduler = client
	}

	// Connecting phase: build the session and its game.
	sess, err := session.NewSyncTest(session.SyncTestConfig{
		NumPlayers:    cfg.NumPlayers,
		CheckDistance: cfg.CheckDistance,
		Logger:        telemetryLogger,
		Metrics:       metrics,
	})
	if err != nil {
		return err
	}

	var viewer *render.Viewer
	var source game.InputSource
	if cfg.Headless {
		source = scriptedPilot()
	} else {
		viewer, err = render.New(render.Config{})
		if err != nil {
			return fmt.Errorf("open viewer: %w", err)
		}
		defer viewer.Close()
		source = viewer
	}

	g, err := newGame(cfg, sess, source, router, telemetryLogger, metrics)
	if err != nil {
		return err
	}

	// Game phase: the pacer owns the loop from here.
	stop := make(chan struct{})
	var stopOnce sync.Once
	closeStop := func() {
		stopOnce.Do(func() { close(stop) })
	}

	framesRun := 0
	p, err := pacer.New(pacer.Config{FPS: cfg.FPS, AheadDilation: 1.1}, pacer.Deps{
		Session:   sess,
		Game:      g,
		Scheduler: scheduler,
		Publisher: router,
		Logger:    telemetryLogger,
		Metrics:   metrics,
	}, pacer.Hooks{
		AfterTick: func(result pacer.TickResult) {
			framesRun += result.Frames
			if viewer != nil {
				if !viewer.PollEvents() {
					closeStop()
					return
				}
				viewer.Draw(g.Snapshot(), result.Status)
			}
			if cfg.RunFrames > 0 && framesRun >= cfg.RunFrames {
				closeStop()
			}
		},
	})
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			closeStop()
		case <-stop:
		}
	}()

	telemetryLogger.Printf("session running: %d players, check distance %d",
		cfg.NumPlayers, cfg.CheckDistance)
	if err := p.Run(stop); err != nil {
		return fmt.Errorf("game loop failed: %w", err)
	}

	for key, value := range counters.Snapshot() {
		telemetryLogger.Printf("counter %s=%d", key, value)
	}
	return nil
}

// newGame builds the dispatcher for a session and pins the session's
// local handles on the tracker. Local status is assigned once here;
// those players never transition afterwards.
func newGame(cfg Config, sess session.Session, source game.InputSource,
	publisher logging.Publisher, logger telemetry.Logger, metrics telemetry.Metrics) (*game.Game, error) {
	g, err := game.New(game.Config{
		Tuning:     cfg.tuning(),
		NumPlayers: cfg.NumPlayers,
		Source:     source,
		Publisher:  publisher,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		return nil, err
	}
	g.Tracker().MarkLocal(sess.LocalPlayerHandles()...)
	return g, nil
}

// waitForPeers pumps the relay until the roster holds the wanted count.
func waitForPeers(ctx context.Context, client *relay.Client, want int) error {
	for {
		client.Pump()
		if err := client.Err(); err != nil {
			return fmt.Errorf("relay failed during lobby: %w", err)
		}
		if len(client.Peers()) >= want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// scriptedPilot is the headless input source: constant thrust with a
// lazily alternating turn, enough to sweep the arena and hit the walls.
func scriptedPilot() game.InputSource {
	var ticks int
	return game.InputSourceFunc(func(handle int) sim.Input {
		ticks++
		input := sim.MaskUp
		if (ticks/120+handle)%2 == 0 {
			input |= sim.MaskLeft
		} else {
			input |= sim.MaskRight
		}
		return input
	})
}

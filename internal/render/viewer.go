// Package render is the terminal viewer. It draws the arena from a
// read-only snapshot and doubles as the local input source: terminals
// report key presses but not releases, so a press keeps its direction
// bit set for a short hold window.
package render

import (
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"

	"driftbox/client/internal/game"
	"driftbox/client/internal/pacer"
	"driftbox/client/internal/sim"
	"driftbox/client/logging"
)

// Config tunes the viewer.
type Config struct {
	// HoldDuration is how long a key press keeps its direction active.
	// Zero means 150ms, roughly the auto-repeat period of a terminal.
	HoldDuration time.Duration
	Clock        logging.Clock
}

func (c Config) normalized() Config {
	if c.HoldDuration <= 0 {
		c.HoldDuration = 150 * time.Millisecond
	}
	if c.Clock == nil {
		c.Clock = logging.SystemClock{}
	}
	return c
}

// Viewer owns the tcell screen and the key hold state. Single control
// flow except for the event reader goroutine, which only feeds a channel.
type Viewer struct {
	cfg    Config
	screen tcell.Screen
	clock  logging.Clock
	events chan tcell.Event

	held map[sim.Input]time.Time
	quit bool
}

// New opens the real terminal screen.
func New(cfg Config) (*Viewer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("open screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("init screen: %w", err)
	}
	return NewWithScreen(screen, cfg)
}

// NewWithScreen wraps an already initialized screen. Tests pass a
// tcell.SimulationScreen here.
func NewWithScreen(screen tcell.Screen, cfg Config) (*Viewer, error) {
	if screen == nil {
		return nil, fmt.Errorf("viewer requires a screen")
	}
	cfg = cfg.normalized()
	v := &Viewer{
		cfg:    cfg,
		screen: screen,
		clock:  cfg.Clock,
		events: make(chan tcell.Event, 64),
		held:   map[sim.Input]time.Time{},
	}
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			v.events <- ev
		}
	}()
	return v, nil
}

// Close restores the terminal.
func (v *Viewer) Close() {
	v.screen.Fini()
}

// PollEvents drains pending terminal events without blocking. It returns
// false once the player asked to quit.
func (v *Viewer) PollEvents() bool {
	for {
		select {
		case ev := <-v.events:
			v.handleEvent(ev)
		default:
			return !v.quit
		}
	}
}

func (v *Viewer) handleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			v.quit = true
			return
		}
		if mask, ok := keyMask(ev); ok {
			v.held[mask] = v.clock.Now().Add(v.cfg.HoldDuration)
		}
	case *tcell.EventResize:
		v.screen.Sync()
	}
}

func keyMask(ev *tcell.EventKey) (sim.Input, bool) {
	switch ev.Key() {
	case tcell.KeyUp:
		return sim.MaskUp, true
	case tcell.KeyDown:
		return sim.MaskDown, true
	case tcell.KeyLeft:
		return sim.MaskLeft, true
	case tcell.KeyRight:
		return sim.MaskRight, true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'w', 'W':
			return sim.MaskUp, true
		case 's', 'S':
			return sim.MaskDown, true
		case 'a', 'A':
			return sim.MaskLeft, true
		case 'd', 'D':
			return sim.MaskRight, true
		}
	}
	return 0, false
}

// Sample reports the currently held direction bits. The handle is
// ignored; one terminal drives one local player.
func (v *Viewer) Sample(handle int) sim.Input {
	now := v.clock.Now()
	var input sim.Input
	for mask, until := range v.held {
		if now.Before(until) {
			input |= mask
		} else {
			delete(v.held, mask)
		}
	}
	return input
}

var _ game.InputSource = (*Viewer)(nil)

// Draw renders one frame: the arena border, every ship, and the status
// lines underneath.
func (v *Viewer) Draw(snap game.Snapshot, pace pacer.Status) {
	v.screen.Clear()
	width, height := v.screen.Size()

	hudLines := 3 + len(snap.Players)
	arenaH := height - hudLines
	if width < 4 || arenaH < 4 {
		v.drawText(0, 0, tcell.StyleDefault, "terminal too small")
		v.screen.Show()
		return
	}

	v.drawBorder(width, arenaH)
	for i, player := range snap.Players {
		x, y := v.project(player.Position, snap, width, arenaH)
		style := playerStyle(i, player.Connection.Status)
		v.screen.SetContent(x, y, shipGlyph(player.Rotation), nil, style)
	}
	v.drawHUD(snap, pace, arenaH)
	v.screen.Show()
}

// project maps arena coordinates into the cell grid inside the border.
func (v *Viewer) project(pos sim.Vec2, snap game.Snapshot, width, arenaH int) (int, int) {
	innerW := float64(width - 2)
	innerH := float64(arenaH - 2)
	x := 1 + int(pos.X/snap.ArenaWidth*innerW)
	y := 1 + int(pos.Y/snap.ArenaHeight*innerH)
	if x > width-2 {
		x = width - 2
	}
	if y > arenaH-2 {
		y = arenaH - 2
	}
	return x, y
}

func (v *Viewer) drawBorder(width, arenaH int) {
	style := tcell.StyleDefault.Foreground(tcell.ColorGray)
	for x := 0; x < width; x++ {
		v.screen.SetContent(x, 0, tcell.RuneHLine, nil, style)
		v.screen.SetContent(x, arenaH-1, tcell.RuneHLine, nil, style)
	}
	for y := 1; y < arenaH-1; y++ {
		v.screen.SetContent(0, y, tcell.RuneVLine, nil, style)
		v.screen.SetContent(width-1, y, tcell.RuneVLine, nil, style)
	}
	v.screen.SetContent(0, 0, tcell.RuneULCorner, nil, style)
	v.screen.SetContent(width-1, 0, tcell.RuneURCorner, nil, style)
	v.screen.SetContent(0, arenaH-1, tcell.RuneLLCorner, nil, style)
	v.screen.SetContent(width-1, arenaH-1, tcell.RuneLRCorner, nil, style)
}

func (v *Viewer) drawHUD(snap game.Snapshot, pace pacer.Status, arenaH int) {
	line := arenaH
	v.drawText(0, line, tcell.StyleDefault,
		fmt.Sprintf("frame %d  pace %s", snap.Frame, pace))
	line++
	v.drawText(0, line, tcell.StyleDefault,
		fmt.Sprintf("checksum last %d:%04x  periodic %d:%04x",
			snap.LastChecksum.Frame, snap.LastChecksum.Checksum,
			snap.PeriodicChecksum.Frame, snap.PeriodicChecksum.Checksum))
	line++
	for i, player := range snap.Players {
		text := fmt.Sprintf("p%d %s", i, player.Connection.Status)
		if stats := player.Connection.Stats; stats != nil {
			text += fmt.Sprintf("  ping %dms  queue %d",
				stats.Ping.Milliseconds(), stats.SendQueueLen)
		}
		v.drawText(0, line, tcell.StyleDefault, text)
		line++
	}
}

func (v *Viewer) drawText(x, y int, style tcell.Style, text string) {
	for _, r := range text {
		v.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

// shipGlyph picks an arrow for the nearest of eight facings. Rotation 0
// points along +x and the arena's y axis grows downward, same as the
// screen's.
func shipGlyph(rotation float64) rune {
	glyphs := []rune{'→', '↘', '↓', '↙', '←', '↖', '↑', '↗'}
	sector := int(rotation/(2*math.Pi)*8 + 0.5)
	return glyphs[sector%8]
}

func playerStyle(index int, status game.Status) tcell.Style {
	colors := []tcell.Color{
		tcell.ColorYellow, tcell.ColorAqua, tcell.ColorFuchsia, tcell.ColorLime,
	}
	style := tcell.StyleDefault.Foreground(colors[index%len(colors)])
	switch status {
	case game.StatusDisconnected:
		style = style.Dim(true)
	case game.StatusInterrupted:
		style = style.Blink(true)
	}
	return style
}

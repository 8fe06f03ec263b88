// Package render draws a scene with ebiten and turns keyboard, mouse and
// touch input into jumps, restarts and shop actions.
package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/krigga/flappy-ton/internal/app"
	"github.com/krigga/flappy-ton/internal/game"
	"github.com/krigga/flappy-ton/internal/scene"
	"github.com/krigga/flappy-ton/internal/scripting"
	"github.com/krigga/flappy-ton/internal/shop"
)

const (
	groundHeight = 16
	shopTimeout  = 30 * time.Second
)

// Options wires a Game. Loop, Scene and App are required.
type Options struct {
	Loop      *game.Loop
	Scene     *scene.Scene
	App       *app.App
	Shop      *shop.Shop
	Balance   *shop.BalanceWatcher
	Autopilot *scripting.Autopilot
	Logger    *log.Logger
}

// Game implements ebiten.Game. Update ticks the loop once per frame.
type Game struct {
	loop      *game.Loop
	scene     *scene.Scene
	app       *app.App
	shop      *shop.Shop
	balance   *shop.BalanceWatcher
	autopilot *scripting.Autopilot
	logger    *log.Logger

	keys    []ebiten.Key
	touches []ebiten.TouchID

	mu      sync.Mutex
	message string
	busy    bool
}

// New returns a game ready for ebiten.RunGame.
func New(opts Options) *Game {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Game{
		loop:      opts.Loop,
		scene:     opts.Scene,
		app:       opts.App,
		shop:      opts.Shop,
		balance:   opts.Balance,
		autopilot: opts.Autopilot,
		logger:    logger,
		message:   "Press space to start",
	}
}

func (g *Game) Update() error {
	g.drainResults()

	// OpenShop reads the loop state from its own goroutine.
	if g.isBusy() && g.loop.State() != game.StateRunning {
		return nil
	}
	if g.shop != nil && g.shop.Shown() {
		g.updateShop()
		return nil
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyS) && g.loop.State() != game.StateRunning && g.shop != nil {
		g.openShop()
		return nil
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) && g.loop.State() == game.StateRunning {
		g.app.Restart()
		return nil
	}

	pressed := g.pressed()
	switch g.loop.State() {
	case game.StateRunning:
		if g.autopilot != nil {
			if err := g.autopilot.Step(g.loop); err != nil {
				g.setMessage("Autopilot stopped: " + err.Error())
				g.autopilot = nil
			}
		} else if pressed {
			g.loop.RequestJump()
		}
		g.loop.Tick(1)
	default:
		if pressed || g.autopilot != nil {
			if err := g.loop.Start(); err != nil {
				return fmt.Errorf("render: start run: %w", err)
			}
			g.setMessage("")
		}
	}
	return nil
}

// pressed reports whether any jump input arrived this frame.
func (g *Game) pressed() bool {
	g.keys = inpututil.AppendJustPressedKeys(g.keys[:0])
	for _, k := range g.keys {
		if k != ebiten.KeyS && k != ebiten.KeyR && k != ebiten.KeyEscape {
			return true
		}
	}
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		return true
	}
	g.touches = inpututil.AppendJustPressedTouchIDs(g.touches[:0])
	return len(g.touches) > 0
}

func (g *Game) updateShop() {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		g.app.CloseShop()
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft):
		g.shop.Prev()
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowRight):
		g.shop.Next()
	case inpututil.IsKeyJustPressed(ebiten.KeyEnter):
		g.background(func(ctx context.Context) {
			action, err := g.shop.Use(ctx)
			switch {
			case err != nil:
				g.setMessage("Purchase failed: " + err.Error())
			case action == shop.ActionBought:
				g.setMessage("Purchase sent, it shows up once confirmed")
			case action == shop.ActionSelected:
				g.setMessage("Skin selected")
			}
		})
	}
}

func (g *Game) openShop() {
	g.background(func(ctx context.Context) {
		if err := g.app.OpenShop(ctx); err != nil {
			if errors.Is(err, app.ErrRunInProgress) {
				return
			}
			g.setMessage("Could not load the shop")
			g.logger.Printf("shop_open_failed error=%v", err)
		}
	})
}

func (g *Game) isBusy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

// background runs fn off the update goroutine, one at a time.
func (g *Game) background(fn func(ctx context.Context)) {
	g.mu.Lock()
	if g.busy {
		g.mu.Unlock()
		return
	}
	g.busy = true
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			g.busy = false
			g.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), shopTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (g *Game) drainResults() {
	for {
		select {
		case out := <-g.app.Results():
			g.setMessage(outcomeMessage(out))
		default:
			return
		}
	}
}

func outcomeMessage(out app.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score %d", out.Score)
	if out.NewBest {
		b.WriteString("  New best!")
	}
	switch {
	case out.Err != nil:
		b.WriteString("\nResult was not submitted")
	case out.Submitted && out.Reward.IsPositive():
		fmt.Fprintf(&b, "\nReward %s", out.Reward.String())
	}
	for _, a := range out.Achievements {
		fmt.Fprintf(&b, "\nAchievement: %s", a)
	}
	b.WriteString("\nPress space to play again, S for the shop")
	return b.String()
}

func (g *Game) setMessage(m string) {
	g.mu.Lock()
	g.message = m
	g.mu.Unlock()
}

func (g *Game) Draw(screen *ebiten.Image) {
	t := g.loop.Tuning()
	screen.Fill(skyColor)
	drawItems(screen, g.scene.Items())
	fillRect(screen, scene.Rect{Y: t.WorldHeight - groundHeight, W: t.WorldWidth, H: groundHeight}, groundColor)

	hud := fmt.Sprintf("Score %d  Best %d", g.loop.Score(), max(g.app.Best(), g.loop.Score()))
	if g.balance != nil {
		if bal, ok := g.balance.Balance(); ok {
			hud += "  Balance " + bal.StringFixed(2)
		}
	}
	ebitenutil.DebugPrintAt(screen, hud, 8, 8)

	if g.shop != nil && g.shop.Shown() {
		g.drawShop(screen, t)
		return
	}

	g.mu.Lock()
	msg := g.message
	g.mu.Unlock()
	if msg != "" && g.loop.State() != game.StateRunning {
		ebitenutil.DebugPrintAt(screen, msg, 24, int(t.WorldHeight/3))
	}
}

func (g *Game) drawShop(screen *ebiten.Image, t game.Tuning) {
	fillRect(screen, scene.Rect{W: t.WorldWidth, H: t.WorldHeight}, overlayColor)

	item, idx := g.shop.Preview()
	cx := t.WorldWidth/2 - t.ObstacleWidth/2
	fillRect(screen, scene.Rect{X: cx, Y: t.WorldHeight / 3, W: t.ObstacleWidth, H: t.WorldHeight / 3}, skinColor(item.SystemName))

	arrows := "   "
	if g.shop.CanPrev() {
		arrows = "<  "
	}
	if g.shop.CanNext() {
		arrows += ">"
	}
	lines := []string{
		fmt.Sprintf("Item %d of %d: %s", idx+1, len(g.shop.Catalog()), item.SystemName),
		arrows,
		"[Enter] " + g.shop.ActionLabel(),
		"[Esc] Close",
	}
	g.mu.Lock()
	if g.message != "" {
		lines = append(lines, "", g.message)
	}
	g.mu.Unlock()
	ebitenutil.DebugPrintAt(screen, strings.Join(lines, "\n"), 24, int(t.WorldHeight*2/3)+16)
}

// Layout keeps the logical screen at world size and lets ebiten scale it.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	t := g.loop.Tuning()
	return int(t.WorldWidth), int(t.WorldHeight)
}

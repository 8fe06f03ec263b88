// Package scripting runs player-written JavaScript autopilots. A script
// defines ontick(), reads the bird, next obstacle and world globals, and calls
// jump() to flap:
//
//	function ontick() {
//	    if (next && bird.y > next.gapbottom - bird.height - 20) jump();
//	}
package scripting

import (
	"errors"
	"sync"

	"github.com/dop251/goja"

	"github.com/krigga/flappy-ton/internal/game"
)

// DefaultScript flaps whenever the bird sinks to just above the bottom of the
// next gap. A jump climbs about 93 units, so any gap of 125 or more is cleared.
const DefaultScript = `
function ontick() {
    var limit = world.height / 2;
    if (next) {
        limit = next.gapbottom - bird.height - 7;
    }
    if (bird.y > limit && bird.velocity >= 0) {
        jump();
    }
}
`

// State represents the autopilot's lifecycle state.
type State string

const (
	StateRunning State = "running"
	StateError   State = "error"
)

// View is what a script sees on each tick.
type View struct {
	Tick        int
	Score       int
	BirdX       float64
	BirdY       float64
	Velocity    float64
	BirdHeight  float64
	WorldWidth  float64
	WorldHeight float64
	Next        *game.ObstaclePair
	ObstacleW   float64
}

// ViewOf builds the script view of a loop.
func ViewOf(l *game.Loop) View {
	snap := l.Snapshot()
	t := l.Tuning()
	v := View{
		Tick:        snap.Run.Ticks,
		Score:       snap.Run.Score,
		BirdX:       snap.Bird.X,
		BirdY:       snap.Bird.Y,
		Velocity:    snap.Bird.Velocity,
		BirdHeight:  snap.Bird.Height,
		WorldWidth:  t.WorldWidth,
		WorldHeight: t.WorldHeight,
		ObstacleW:   t.ObstacleWidth,
	}
	if p, ok := l.NextPair(); ok {
		v.Next = &p
	}
	return v
}

func (v View) inject(rt *goja.Runtime) {
	rt.Set("tick", v.Tick)
	rt.Set("score", v.Score)
	rt.Set("bird", map[string]any{
		"x":        v.BirdX,
		"y":        v.BirdY,
		"velocity": v.Velocity,
		"height":   v.BirdHeight,
	})
	rt.Set("world", map[string]any{
		"width":  v.WorldWidth,
		"height": v.WorldHeight,
	})
	if v.Next == nil {
		rt.Set("next", goja.Null())
		return
	}
	rt.Set("next", map[string]any{
		"x":         v.Next.X,
		"width":     v.ObstacleW,
		"gaptop":    v.Next.GapTop,
		"gapbottom": v.Next.GapBottom,
	})
}

// Autopilot drives a loop from a script. After the first script error it
// stops issuing jumps until it is loaded again.
type Autopilot struct {
	mu    sync.Mutex
	vm    *VM
	state State
	err   error
}

// NewAutopilot compiles source and checks that it defines ontick().
func NewAutopilot(source string) (*Autopilot, error) {
	vm := NewVM()
	if err := vm.Execute(source); err != nil {
		return nil, err
	}
	if !vm.HasOnTick() {
		return nil, errors.New("scripting: ontick() function is not defined")
	}
	return &Autopilot{vm: vm, state: StateRunning}, nil
}

// Step runs ontick() for the current loop state and requests a jump when the
// script called jump(). It must be called before each Tick.
func (a *Autopilot) Step(l *game.Loop) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateRunning {
		return a.err
	}
	if l.State() != game.StateRunning {
		return nil
	}

	jump, err := a.vm.CallOnTick(ViewOf(l))
	if err != nil {
		a.state = StateError
		a.err = err
		return err
	}
	if jump {
		l.RequestJump()
	}
	return nil
}

// State returns the lifecycle state and the error that stopped the script.
func (a *Autopilot) State() (State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.err
}

// Logs returns the script's log output.
func (a *Autopilot) Logs() []LogEntry {
	return a.vm.GetLogs()
}

// Package game implements the Flappy run: bird physics, obstacle generation
// with a difficulty ramp, collision detection and scoring, driven one tick at
// a time by Loop.Tick.
//
// The package is headless. Rendering goes through Scene, obstacle skins
// through SkinSource, and the end of a run is published as a RunEnded event:
//
//	loop, err := game.NewLoop(game.DefaultTuning(), scene, shop)
//	if err != nil {
//	    return err
//	}
//	loop.Subscribe(func(ev game.RunEnded) { log.Printf("score=%d", ev.Score) })
//	loop.Start()
//	for loop.Tick(1) {
//	    // once per frame
//	}
package game

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// State represents the loop's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateTerminated State = "terminated"
)

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New("game: run already in progress")

// RunEnded is published exactly once when a run collides.
type RunEnded struct {
	RunID uuid.UUID `json:"runId"`
	Score int       `json:"score"`
	Ticks int       `json:"ticks"`
	Collision
}

// Snapshot is a copy of the loop state, safe to keep after the next tick.
type Snapshot struct {
	State State          `json:"state"`
	RunID uuid.UUID      `json:"runId"`
	Bird  Bird           `json:"bird"`
	Run   RunState       `json:"run"`
	Pairs []ObstaclePair `json:"pairs"`
}

// Loop owns one run at a time. Tick, Start, Restart and Stop must be called
// from a single goroutine; RequestJump and Subscribe may be called from any.
type Loop struct {
	tuning   Tuning
	scene    Scene
	skins    SkinSource
	newRand  RandFactory
	recorder FrameRecorder

	mu          sync.Mutex
	pendingJump bool
	subs        []subscriber
	nextSub     int

	state      State
	runID      uuid.UUID
	rng        Rand
	bird       Bird
	birdSprite Sprite
	run        RunState
	pairs      []*ObstaclePair
	nextPairID int
}

// NewLoop validates the tuning and returns an idle loop. A nil scene draws
// nothing and a nil skin source always yields "pipe-green".
func NewLoop(t Tuning, scene Scene, skins SkinSource) (*Loop, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if scene == nil {
		scene = NopScene{}
	}
	if skins == nil {
		skins = StaticSkin("pipe-green")
	}
	return &Loop{
		tuning:  t,
		scene:   scene,
		skins:   skins,
		newRand: defaultRandFactory,
		state:   StateIdle,
		bird:    NewBird(t),
		run:     NewRunState(t),
	}, nil
}

// SetRandFactory replaces the per-run randomness source.
// Must be called before Start().
func (l *Loop) SetRandFactory(f RandFactory) {
	if f == nil {
		f = defaultRandFactory
	}
	l.newRand = f
}

// SetRecorder attaches a frame recorder.
// Must be called before Start().
func (l *Loop) SetRecorder(rec FrameRecorder) {
	l.recorder = rec
}

type subscriber struct {
	id int
	fn func(RunEnded)
}

// Subscribe registers fn for RunEnded events and returns a function that
// removes it. Listeners are called in registration order on the ticking
// goroutine and must not block.
func (l *Loop) Subscribe(fn func(RunEnded)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs = append(l.subs, subscriber{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

// Start begins a new run from Idle or Terminated.
func (l *Loop) Start() error {
	if l.state == StateRunning {
		return ErrAlreadyRunning
	}
	l.reset()
	return nil
}

// Restart abandons any run in progress without publishing an event and
// begins a new one.
func (l *Loop) Restart() {
	l.reset()
}

// Stop moves a running loop back to Idle without publishing an event.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.state == StateRunning {
		l.state = StateIdle
	}
	l.pendingJump = false
	l.mu.Unlock()
}

// RequestJump asks for a jump on the next tick. Requests outside a run are
// ignored and requests between two ticks coalesce.
func (l *Loop) RequestJump() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateRunning {
		return
	}
	l.pendingJump = true
}

// Tick advances the run by delta frames and reports whether it is still
// running afterwards.
func (l *Loop) Tick(delta float64) bool {
	if l.state != StateRunning {
		return false
	}
	t := l.tuning

	l.mu.Lock()
	requested := l.pendingJump
	l.pendingJump = false
	l.mu.Unlock()

	l.run.Ticks++
	if l.recorder != nil {
		l.recorder.RecordFrame(l.runID, Frame{Tick: l.run.Ticks, Delta: delta, Jump: requested})
	}

	l.run.TicksSinceJump++
	accepted := requested && l.run.TicksSinceJump >= t.JumpCooldownTicks
	if accepted {
		l.run.TicksSinceJump = 0
	}
	Integrate(&l.bird, delta, accepted, t)

	if c := CheckCollision(l.bird, l.pairs, t); c.Hit() {
		l.syncBird()
		l.terminate(c)
		return false
	}

	AdvanceDifficulty(&l.run, delta, t)
	if SpawnDue(l.run) {
		l.spawn()
	}
	ShiftPairs(l.pairs, l.run.ObstacleSpeed)
	l.run.Score += CountPassed(l.bird, l.pairs, t)
	l.pairs = RemoveOffscreen(l.pairs, t, func(p *ObstaclePair) {
		l.scene.Remove(p.top, p.bottom)
	})

	l.syncBird()
	for _, p := range l.pairs {
		p.top.SetPosition(p.X, p.GapTop)
		p.bottom.SetPosition(p.X, p.GapBottom)
	}
	return true
}

// State returns the lifecycle state.
func (l *Loop) State() State { return l.state }

// Score returns the score of the current or last run.
func (l *Loop) Score() int { return l.run.Score }

// RunID returns the identifier of the current or last run.
func (l *Loop) RunID() uuid.UUID { return l.runID }

// Tuning returns the constants the loop was built with.
func (l *Loop) Tuning() Tuning { return l.tuning }

// Snapshot copies the current state.
func (l *Loop) Snapshot() Snapshot {
	pairs := make([]ObstaclePair, len(l.pairs))
	for i, p := range l.pairs {
		pairs[i] = *p
		pairs[i].top, pairs[i].bottom = nil, nil
	}
	return Snapshot{
		State: l.state,
		RunID: l.runID,
		Bird:  l.bird,
		Run:   l.run,
		Pairs: pairs,
	}
}

// NextPair returns a copy of the nearest pair the bird has not yet cleared.
func (l *Loop) NextPair() (ObstaclePair, bool) {
	var best *ObstaclePair
	for _, p := range l.pairs {
		if p.X+l.tuning.ObstacleWidth < l.bird.X {
			continue
		}
		if best == nil || p.X < best.X {
			best = p
		}
	}
	if best == nil {
		return ObstaclePair{}, false
	}
	cp := *best
	cp.top, cp.bottom = nil, nil
	return cp, true
}

func (l *Loop) reset() {
	for _, p := range l.pairs {
		l.scene.Remove(p.top, p.bottom)
	}
	l.pairs = l.pairs[:0]
	l.nextPairID = 0

	l.runID = uuid.New()
	l.rng = l.newRand(l.runID)
	l.bird = NewBird(l.tuning)
	l.run = NewRunState(l.tuning)

	if l.birdSprite == nil {
		l.birdSprite = l.scene.NewSprite(SpriteBird, l.bird.Pose.Frame())
		l.scene.Add(l.birdSprite)
	}
	l.syncBird()

	l.mu.Lock()
	l.pendingJump = false
	l.state = StateRunning
	l.mu.Unlock()
}

func (l *Loop) spawn() {
	l.nextPairID++
	p := NewPair(l.nextPairID, l.rng, l.skins.CurrentSkin(), l.tuning)

	p.top = l.scene.NewSprite(SpriteObstacle, p.Skin)
	p.top.SetScale(1, -1)
	p.bottom = l.scene.NewSprite(SpriteObstacle, p.Skin)
	l.scene.Add(p.top)
	l.scene.Add(p.bottom)

	l.pairs = append(l.pairs, p)
	l.run.LastSpawn = l.run.Clock
	l.run.Spawned++
}

func (l *Loop) syncBird() {
	l.birdSprite.SetPosition(l.bird.X, l.bird.Y)
	l.birdSprite.SetFrame(l.bird.Pose.Frame())
}

func (l *Loop) terminate(c Collision) {
	l.mu.Lock()
	l.state = StateTerminated
	l.pendingJump = false
	subs := l.subs
	l.mu.Unlock()

	ev := RunEnded{RunID: l.runID, Score: l.run.Score, Ticks: l.run.Ticks, Collision: c}
	for _, s := range subs {
		s.fn(ev)
	}
}

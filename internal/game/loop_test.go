package game

import (
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSprite struct {
	kind   SpriteKind
	frame  string
	x, y   float64
	sx, sy float64
}

func (s *fakeSprite) SetPosition(x, y float64) { s.x, s.y = x, y }
func (s *fakeSprite) SetScale(sx, sy float64)  { s.sx, s.sy = sx, sy }
func (s *fakeSprite) SetFrame(name string)     { s.frame = name }

type fakeScene struct {
	live map[*fakeSprite]bool
}

func newFakeScene() *fakeScene {
	return &fakeScene{live: make(map[*fakeSprite]bool)}
}

func (s *fakeScene) NewSprite(kind SpriteKind, frame string) Sprite {
	return &fakeSprite{kind: kind, frame: frame, sx: 1, sy: 1}
}

func (s *fakeScene) Add(sp Sprite) { s.live[sp.(*fakeSprite)] = true }

func (s *fakeScene) Remove(sps ...Sprite) {
	for _, sp := range sps {
		delete(s.live, sp.(*fakeSprite))
	}
}

func (s *fakeScene) count(kind SpriteKind) int {
	n := 0
	for sp := range s.live {
		if sp.kind == kind {
			n++
		}
	}
	return n
}

type frameLog struct {
	frames []Frame
}

func (f *frameLog) RecordFrame(_ uuid.UUID, fr Frame) { f.frames = append(f.frames, fr) }

func newTestLoop(t *testing.T, tun Tuning) (*Loop, *fakeScene) {
	t.Helper()
	scene := newFakeScene()
	loop, err := NewLoop(tun, scene, StaticSkin("pipe-red"))
	require.NoError(t, err)
	return loop, scene
}

// hover keeps the bird between y=250 and y=400 when called before every tick.
func hover(l *Loop) {
	if l.Snapshot().Bird.Y > 350 {
		l.RequestJump()
	}
}

func TestNewLoopRejectsBadTuning(t *testing.T) {
	tun := DefaultTuning()
	tun.JumpVelocity = 3

	_, err := NewLoop(tun, nil, nil)
	require.ErrorIs(t, err, ErrInvalidTuning)
}

func TestLoopLifecycle(t *testing.T) {
	loop, _ := newTestLoop(t, DefaultTuning())
	assert.Equal(t, StateIdle, loop.State())
	assert.False(t, loop.Tick(1), "idle loop does not tick")

	require.NoError(t, loop.Start())
	assert.Equal(t, StateRunning, loop.State())
	assert.ErrorIs(t, loop.Start(), ErrAlreadyRunning)

	loop.Stop()
	assert.Equal(t, StateIdle, loop.State())
	require.NoError(t, loop.Start())
}

func TestJumpCooldown(t *testing.T) {
	loop, _ := newTestLoop(t, DefaultTuning())
	require.NoError(t, loop.Start())

	loop.RequestJump()
	loop.Tick(1)
	assert.Equal(t, -6.0, loop.Snapshot().Bird.Velocity, "first jump of a run is accepted")

	loop.RequestJump()
	loop.Tick(1)
	assert.InDelta(t, -5.8, loop.Snapshot().Bird.Velocity, 1e-9, "jump inside cooldown is dropped")

	loop.RequestJump()
	loop.Tick(1)
	assert.Equal(t, -6.0, loop.Snapshot().Bird.Velocity, "jump after cooldown is accepted")
}

func TestRequestJumpCoalesces(t *testing.T) {
	loop, _ := newTestLoop(t, DefaultTuning())
	require.NoError(t, loop.Start())

	loop.RequestJump()
	loop.RequestJump()
	loop.RequestJump()
	loop.Tick(1)
	loop.Tick(1)
	assert.InDelta(t, -5.8, loop.Snapshot().Bird.Velocity, 1e-9, "three requests produce one jump")
}

func TestRequestJumpIgnoredOutsideRun(t *testing.T) {
	loop, _ := newTestLoop(t, DefaultTuning())

	loop.RequestJump()
	require.NoError(t, loop.Start())
	loop.Tick(1)
	assert.InDelta(t, 0.2, loop.Snapshot().Bird.Velocity, 1e-9, "jump before start is not buffered")

	for loop.Tick(1) {
	}
	require.Equal(t, StateTerminated, loop.State())

	before := loop.Snapshot().Bird
	loop.RequestJump()
	assert.False(t, loop.Tick(1))
	assert.Equal(t, before, loop.Snapshot().Bird, "terminated loop does not move")
}

func TestRunEndedPublishedOnce(t *testing.T) {
	loop, _ := newTestLoop(t, DefaultTuning())

	var events []RunEnded
	loop.Subscribe(func(ev RunEnded) { events = append(events, ev) })

	var other int
	unsubscribe := loop.Subscribe(func(RunEnded) { other++ })
	unsubscribe()

	require.NoError(t, loop.Start())
	ticks := 0
	for loop.Tick(1) {
		ticks++
		require.Less(t, ticks, 1000, "free fall must hit the floor")
	}
	for i := 0; i < 10; i++ {
		loop.Tick(1)
	}

	require.Len(t, events, 1)
	assert.Equal(t, CauseBoundary, events[0].Cause)
	assert.Equal(t, loop.RunID(), events[0].RunID)
	assert.Equal(t, 0, events[0].Score)
	assert.Equal(t, ticks+1, events[0].Ticks)
	assert.Zero(t, other, "unsubscribed listener is not called")
}

func TestRunEndedListenersInRegistrationOrder(t *testing.T) {
	loop, _ := newTestLoop(t, DefaultTuning())

	var order []string
	loop.Subscribe(func(RunEnded) { order = append(order, "store") })
	drop := loop.Subscribe(func(RunEnded) { order = append(order, "dropped") })
	loop.Subscribe(func(RunEnded) { order = append(order, "submit") })
	loop.Subscribe(func(RunEnded) { order = append(order, "notify") })
	drop()

	for run := 0; run < 3; run++ {
		order = order[:0]
		require.NoError(t, loop.Start())
		for i := 0; loop.Tick(1); i++ {
			require.Less(t, i, 1000)
		}
		assert.Equal(t, []string{"store", "submit", "notify"}, order)
	}
}

func TestSpawnSchedule(t *testing.T) {
	loop, scene := newTestLoop(t, DefaultTuning())
	require.NoError(t, loop.Start())

	hover(loop)
	loop.Tick(1)
	snap := loop.Snapshot()
	require.Len(t, snap.Pairs, 1, "first tick spawns")
	assert.Equal(t, "pipe-red", snap.Pairs[0].Skin)
	assert.Equal(t, 2, scene.count(SpriteObstacle))

	for i := 0; i < 149; i++ {
		hover(loop)
		require.True(t, loop.Tick(1))
	}
	assert.Equal(t, 1, loop.Snapshot().Run.Spawned)

	for i := 0; i < 50; i++ {
		hover(loop)
		require.True(t, loop.Tick(1))
	}
	snap = loop.Snapshot()
	assert.Equal(t, 2, snap.Run.Spawned, "second pair after roughly 3s of simulated time")
	assert.Len(t, snap.Pairs, 2)
	assert.Equal(t, 4, scene.count(SpriteObstacle))
}

func TestRestartResetsRun(t *testing.T) {
	tun := DefaultTuning()
	loop, scene := newTestLoop(t, tun)
	require.NoError(t, loop.Start())
	firstRun := loop.RunID()

	for i := 0; i < 200; i++ {
		hover(loop)
		loop.Tick(1)
	}
	require.NotEmpty(t, loop.Snapshot().Pairs)

	loop.RequestJump()
	loop.Restart()
	snap := loop.Snapshot()

	assert.Equal(t, StateRunning, snap.State)
	assert.NotEqual(t, firstRun, snap.RunID)
	assert.Equal(t, 0, snap.Run.Score)
	assert.Equal(t, 0.0, snap.Bird.Velocity)
	assert.Equal(t, tun.WorldHeight/2, snap.Bird.Y)
	assert.Empty(t, snap.Pairs)
	assert.Equal(t, tun.SpawnInterval, snap.Run.SpawnInterval)
	assert.Equal(t, tun.ObstacleSpeed, snap.Run.ObstacleSpeed)
	assert.Zero(t, scene.count(SpriteObstacle), "obstacle sprites leave the scene")
	assert.Equal(t, 1, scene.count(SpriteBird))

	loop.Tick(1)
	assert.InDelta(t, 0.2, loop.Snapshot().Bird.Velocity, 1e-9, "pending jump does not survive restart")
}

func TestScoreCountsPassedPairs(t *testing.T) {
	tun := DefaultTuning()
	// A gap spanning the whole world means only the boundary can end the run.
	tun.GapStart, tun.GapEnd = 0, 0
	tun.GapMin, tun.GapMax = tun.WorldHeight, tun.WorldHeight

	loop, _ := newTestLoop(t, tun)
	require.NoError(t, loop.Start())

	last := 0
	for i := 0; i < 2000; i++ {
		hover(loop)
		require.True(t, loop.Tick(1))
		score := loop.Score()
		require.GreaterOrEqual(t, score, last)
		require.LessOrEqual(t, score-last, 1)
		last = score
	}

	snap := loop.Snapshot()
	assert.Greater(t, snap.Run.Score, 0)
	assert.LessOrEqual(t, snap.Run.Score, snap.Run.Spawned)
	for _, p := range snap.Pairs {
		if p.X+tun.ObstacleWidth < snap.Bird.X {
			assert.True(t, p.Counted)
		}
	}
}

func TestIdenticalDeltasGiveIdenticalRamp(t *testing.T) {
	tun := DefaultTuning()
	tun.GapStart, tun.GapEnd = 0, 0
	tun.GapMin, tun.GapMax = tun.WorldHeight, tun.WorldHeight

	a, _ := newTestLoop(t, tun)
	b, _ := newTestLoop(t, tun)
	a.SetRandFactory(func(uuid.UUID) Rand { return rand.New(rand.NewPCG(1, 2)) })
	b.SetRandFactory(func(uuid.UUID) Rand { return rand.New(rand.NewPCG(3, 4)) })
	require.NoError(t, a.Start())
	require.NoError(t, b.Start())

	for i := 0; i < 3000; i++ {
		delta := 1.0
		if i%3 == 0 {
			delta = 1.5
		}
		hover(a)
		hover(b)
		require.Equal(t, a.Tick(delta), b.Tick(delta))

		sa, sb := a.Snapshot(), b.Snapshot()
		require.Len(t, sb.Pairs, len(sa.Pairs), "tick %d", i)
		require.Equal(t, sa.Run.ObstacleSpeed, sb.Run.ObstacleSpeed, "tick %d", i)
		require.Equal(t, sa.Run.SpawnInterval, sb.Run.SpawnInterval, "tick %d", i)
	}
}

func TestRecorderSeesEveryTick(t *testing.T) {
	loop, _ := newTestLoop(t, DefaultTuning())
	rec := &frameLog{}
	loop.SetRecorder(rec)
	require.NoError(t, loop.Start())

	loop.RequestJump()
	loop.Tick(1)
	loop.Tick(0.5)

	require.Len(t, rec.frames, 2)
	assert.Equal(t, Frame{Tick: 1, Delta: 1, Jump: true}, rec.frames[0])
	assert.Equal(t, Frame{Tick: 2, Delta: 0.5, Jump: false}, rec.frames[1])
}

func TestSpritesFollowState(t *testing.T) {
	loop, scene := newTestLoop(t, DefaultTuning())
	require.NoError(t, loop.Start())
	loop.RequestJump()
	loop.Tick(1)

	snap := loop.Snapshot()
	for sp := range scene.live {
		switch sp.kind {
		case SpriteBird:
			assert.Equal(t, snap.Bird.X, sp.x)
			assert.Equal(t, snap.Bird.Y, sp.y)
			assert.Equal(t, PoseFlapUp.Frame(), sp.frame)
		case SpriteObstacle:
			assert.Equal(t, snap.Pairs[0].X, sp.x)
			assert.Equal(t, "pipe-red", sp.frame)
			if sp.sy < 0 {
				assert.Equal(t, snap.Pairs[0].GapTop, sp.y)
			} else {
				assert.Equal(t, snap.Pairs[0].GapBottom, sp.y)
			}
		}
	}
}

package game

// ObstaclePair is a top and bottom barrier sharing an x coordinate. The top
// barrier covers [0, GapTop) and the bottom barrier covers [GapBottom, height].
type ObstaclePair struct {
	ID        int     `json:"id"`
	X         float64 `json:"x"`
	GapTop    float64 `json:"gapTop"`
	GapBottom float64 `json:"gapBottom"`
	Skin      string  `json:"skin"`
	Counted   bool    `json:"counted"`

	top    Sprite
	bottom Sprite
}

// RunState is the mutable per-run bookkeeping owned by the Loop.
type RunState struct {
	Score         int     `json:"score"`
	ObstacleSpeed float64 `json:"obstacleSpeed"`
	SpawnInterval float64 `json:"spawnInterval"` // ms
	Clock         float64 `json:"clock"`         // simulated ms since restart
	LastSpawn     float64 `json:"lastSpawn"`
	Spawned       int     `json:"spawned"`
	// TicksSinceJump counts ticks since the last accepted jump, including the current one.
	TicksSinceJump int `json:"ticksSinceJump"`
	Ticks          int `json:"ticks"`
}

// NewRunState returns the initial run state for a tuning.
func NewRunState(t Tuning) RunState {
	return RunState{
		ObstacleSpeed:  t.ObstacleSpeed,
		SpawnInterval:  t.SpawnInterval,
		TicksSinceJump: t.JumpCooldownTicks,
	}
}

// AdvanceDifficulty ramps the spawn interval down and the obstacle speed up,
// clamped to the tuning bounds, and advances the simulated clock.
func AdvanceDifficulty(r *RunState, delta float64, t Tuning) {
	r.Clock += delta * t.FrameMillis

	r.SpawnInterval -= t.IntervalDecay * delta
	if t.MinSpawnInterval > 0 && r.SpawnInterval < t.MinSpawnInterval {
		r.SpawnInterval = t.MinSpawnInterval
	}
	r.ObstacleSpeed += t.SpeedGrowth * delta
	if t.MaxObstacleSpeed > 0 && r.ObstacleSpeed > t.MaxObstacleSpeed {
		r.ObstacleSpeed = t.MaxObstacleSpeed
	}
}

// SpawnDue reports whether a new pair should be created this tick. The first
// tick of a run always spawns.
func SpawnDue(r RunState) bool {
	return r.Spawned == 0 || r.Clock-r.LastSpawn > r.SpawnInterval
}

// NewPair builds a pair at the right edge of the world with a gap drawn from
// the tuning bands.
func NewPair(id int, rng Rand, skin string, t Tuning) *ObstaclePair {
	gapTop := t.GapStart + rng.Float64()*(t.GapEnd-t.GapStart)
	gapSize := t.GapMin + rng.Float64()*(t.GapMax-t.GapMin)
	return &ObstaclePair{
		ID:        id,
		X:         t.WorldWidth,
		GapTop:    gapTop,
		GapBottom: gapTop + gapSize,
		Skin:      skin,
	}
}

// ShiftPairs moves every pair left by speed.
func ShiftPairs(pairs []*ObstaclePair, speed float64) {
	for _, p := range pairs {
		p.X -= speed
	}
}

// RemoveOffscreen drops pairs that are fully past the left edge. Removal swaps
// with the last element, so the order of the remaining pairs is not preserved.
// removed is called for each dropped pair when non-nil.
func RemoveOffscreen(pairs []*ObstaclePair, t Tuning, removed func(*ObstaclePair)) []*ObstaclePair {
	for i := 0; i < len(pairs); {
		p := pairs[i]
		if p.X >= -t.ObstacleWidth {
			i++
			continue
		}
		if removed != nil {
			removed(p)
		}
		last := len(pairs) - 1
		pairs[i] = pairs[last]
		pairs[last] = nil
		pairs = pairs[:last]
	}
	return pairs
}

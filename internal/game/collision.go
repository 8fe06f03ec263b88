package game

// Cause describes why a run ended.
type Cause string

const (
	CauseNone     Cause = ""
	CauseBoundary Cause = "boundary"
	CauseObstacle Cause = "obstacle"
	CauseStopped  Cause = "stopped"
)

// Collision is the result of a collision check. PairID is set only for
// obstacle hits.
type Collision struct {
	Cause  Cause `json:"cause"`
	PairID int   `json:"pairId,omitempty"`
}

// Hit reports whether the check found a collision.
func (c Collision) Hit() bool {
	return c.Cause == CauseBoundary || c.Cause == CauseObstacle
}

// OutOfBounds reports whether the bird has left the playable area. Touching
// the top or bottom edge exactly is allowed.
func OutOfBounds(b Bird, t Tuning) bool {
	return b.Y < 0 || b.Y > t.WorldHeight-b.Height
}

// Overlaps reports whether the bird's span intersects the pair's span, i.e.
// the bird's leading edge lies in [pair.X - bird width, pair.X + obstacle width).
func Overlaps(b Bird, p *ObstaclePair, t Tuning) bool {
	return b.X >= p.X-b.Width && b.X < p.X+t.ObstacleWidth
}

// InGap reports whether the bird's vertical extent lies inside the pair's gap.
func InGap(b Bird, p *ObstaclePair) bool {
	return b.Y >= p.GapTop && b.Y <= p.GapBottom-b.Height
}

// CheckCollision tests the world boundary first and then every pair in slice
// order, returning the first violation.
func CheckCollision(b Bird, pairs []*ObstaclePair, t Tuning) Collision {
	if OutOfBounds(b, t) {
		return Collision{Cause: CauseBoundary}
	}
	for _, p := range pairs {
		if Overlaps(b, p, t) && !InGap(b, p) {
			return Collision{Cause: CauseObstacle, PairID: p.ID}
		}
	}
	return Collision{}
}

// CountPassed marks every uncounted pair whose trailing edge is behind the
// bird's leading edge and returns how many were marked.
func CountPassed(b Bird, pairs []*ObstaclePair, t Tuning) int {
	n := 0
	for _, p := range pairs {
		if p.Counted || p.X+t.ObstacleWidth >= b.X {
			continue
		}
		p.Counted = true
		n++
	}
	return n
}

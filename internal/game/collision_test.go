package game

import "testing"

func TestOutOfBounds(t *testing.T) {
	tun := DefaultTuning()
	bottom := tun.WorldHeight - tun.BirdHeight

	tests := []struct {
		name string
		y    float64
		want bool
	}{
		{"top edge", 0, false},
		{"above top", -0.01, true},
		{"middle", 300, false},
		{"exactly at bottom", bottom, false},
		{"one unit below bottom", bottom + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBird(tun)
			b.Y = tt.y
			if got := OutOfBounds(b, tun); got != tt.want {
				t.Errorf("OutOfBounds(y=%v) = %v, want %v", tt.y, got, tt.want)
			}
			c := CheckCollision(b, nil, tun)
			if c.Hit() != tt.want {
				t.Errorf("CheckCollision(y=%v).Hit() = %v, want %v", tt.y, c.Hit(), tt.want)
			}
			if tt.want && c.Cause != CauseBoundary {
				t.Errorf("cause = %q, want %q", c.Cause, CauseBoundary)
			}
		})
	}
}

func TestCheckCollisionGap(t *testing.T) {
	tun := DefaultTuning()
	pair := &ObstaclePair{ID: 7, X: 40, GapTop: 100, GapBottom: 250}

	tests := []struct {
		name string
		y    float64
		want bool
	}{
		{"inside gap", 150, false},
		{"below gap", 260, true},
		{"touching gap top", 100, false},
		{"above gap top", 99, true},
		{"touching gap bottom", 250 - tun.BirdHeight, false},
		{"just past gap bottom", 250 - tun.BirdHeight + 0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBird(tun)
			b.Y = tt.y
			c := CheckCollision(b, []*ObstaclePair{pair}, tun)
			if c.Hit() != tt.want {
				t.Fatalf("Hit() = %v, want %v", c.Hit(), tt.want)
			}
			if tt.want && (c.Cause != CauseObstacle || c.PairID != 7) {
				t.Errorf("collision = %+v, want obstacle hit on pair 7", c)
			}
		})
	}
}

func TestOverlapsSpan(t *testing.T) {
	tun := DefaultTuning()
	b := NewBird(tun) // x = 50, width 34

	tests := []struct {
		name  string
		pairX float64
		want  bool
	}{
		{"far right", 200, false},
		{"leading edge just touching", b.X + b.Width, true},
		{"one unit right of touching", b.X + b.Width + 1, false},
		{"centered on bird", b.X, true},
		{"trailing edge at bird x", b.X - tun.ObstacleWidth, false},
		{"trailing edge just past bird x", b.X - tun.ObstacleWidth + 0.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &ObstaclePair{X: tt.pairX, GapTop: 0, GapBottom: 1}
			if got := Overlaps(b, p, tun); got != tt.want {
				t.Errorf("Overlaps(pairX=%v) = %v, want %v", tt.pairX, got, tt.want)
			}
		})
	}
}

func TestCheckCollisionStopsAtFirstHit(t *testing.T) {
	tun := DefaultTuning()
	b := NewBird(tun)
	b.Y = 400

	pairs := []*ObstaclePair{
		{ID: 1, X: 300, GapTop: 0, GapBottom: 10},
		{ID: 2, X: 40, GapTop: 100, GapBottom: 250},
		{ID: 3, X: 45, GapTop: 100, GapBottom: 250},
	}

	c := CheckCollision(b, pairs, tun)
	if c.Cause != CauseObstacle || c.PairID != 2 {
		t.Errorf("collision = %+v, want first overlapping pair (2)", c)
	}
}

func TestCheckCollisionBoundaryBeforeObstacles(t *testing.T) {
	tun := DefaultTuning()
	b := NewBird(tun)
	b.Y = -5

	c := CheckCollision(b, []*ObstaclePair{{ID: 1, X: 40, GapTop: 100, GapBottom: 250}}, tun)
	if c.Cause != CauseBoundary {
		t.Errorf("cause = %q, want boundary", c.Cause)
	}
}

func TestCountPassedOnce(t *testing.T) {
	tun := DefaultTuning()
	b := NewBird(tun)

	passed := &ObstaclePair{ID: 1, X: b.X - tun.ObstacleWidth - 1}
	edge := &ObstaclePair{ID: 2, X: b.X - tun.ObstacleWidth}
	ahead := &ObstaclePair{ID: 3, X: 200}
	pairs := []*ObstaclePair{passed, edge, ahead}

	if n := CountPassed(b, pairs, tun); n != 1 {
		t.Fatalf("first CountPassed = %d, want 1", n)
	}
	if !passed.Counted || edge.Counted || ahead.Counted {
		t.Errorf("counted flags = %v %v %v, want true false false", passed.Counted, edge.Counted, ahead.Counted)
	}
	if n := CountPassed(b, pairs, tun); n != 0 {
		t.Errorf("second CountPassed = %d, want 0", n)
	}

	edge.X -= 0.5
	if n := CountPassed(b, pairs, tun); n != 1 {
		t.Errorf("CountPassed after edge moves = %d, want 1", n)
	}
}

package game

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestIntegrate(t *testing.T) {
	tun := DefaultTuning()

	tests := []struct {
		name     string
		velocity float64
		delta    float64
		jump     bool
		wantVel  float64
		wantDy   float64
	}{
		{name: "gravity from rest", velocity: 0, delta: 1, wantVel: 0.2, wantDy: 0.2},
		{name: "gravity scaled by delta", velocity: 0, delta: 2, wantVel: 0.4, wantDy: 0.8},
		{name: "falling keeps accelerating", velocity: 3, delta: 1, wantVel: 3.2, wantDy: 3.2},
		{name: "jump overrides gravity", velocity: 5, delta: 1, jump: true, wantVel: -6, wantDy: -6},
		{name: "jump with half delta", velocity: 0, delta: 0.5, jump: true, wantVel: -6, wantDy: -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBird(tun)
			b.Velocity = tt.velocity
			y0 := b.Y

			Integrate(&b, tt.delta, tt.jump, tun)

			if !approx(b.Velocity, tt.wantVel) {
				t.Errorf("velocity = %v, want %v", b.Velocity, tt.wantVel)
			}
			if !approx(b.Y-y0, tt.wantDy) {
				t.Errorf("dy = %v, want %v", b.Y-y0, tt.wantDy)
			}
			if b.Pose != PoseFor(b.Velocity, tun) {
				t.Errorf("pose %v does not match velocity %v", b.Pose, b.Velocity)
			}
		})
	}
}

func TestPoseFor(t *testing.T) {
	tun := DefaultTuning()

	tests := []struct {
		velocity float64
		want     Pose
	}{
		{-6, PoseFlapUp},
		{-1.01, PoseFlapUp},
		{-1, PoseNeutral},
		{0, PoseNeutral},
		{1, PoseNeutral},
		{1.01, PoseFlapDown},
		{8, PoseFlapDown},
	}

	for _, tt := range tests {
		if got := PoseFor(tt.velocity, tun); got != tt.want {
			t.Errorf("PoseFor(%v) = %v, want %v", tt.velocity, got, tt.want)
		}
	}
}

func TestNewBirdStartsCentered(t *testing.T) {
	tun := DefaultTuning()
	b := NewBird(tun)

	if b.X != tun.WorldWidth/8 || b.Y != tun.WorldHeight/2 {
		t.Errorf("start = (%v,%v), want (%v,%v)", b.X, b.Y, tun.WorldWidth/8, tun.WorldHeight/2)
	}
	if b.Velocity != 0 || b.Pose != PoseNeutral {
		t.Errorf("bird should start at rest, got velocity=%v pose=%v", b.Velocity, b.Pose)
	}
}

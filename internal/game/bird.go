package game

// Pose is the visual state of the bird, derived from its velocity.
type Pose int

const (
	PoseNeutral Pose = iota
	PoseFlapUp
	PoseFlapDown
)

// Frame returns the sprite frame name for the pose.
func (p Pose) Frame() string {
	switch p {
	case PoseFlapUp:
		return "bird-up"
	case PoseFlapDown:
		return "bird-down"
	default:
		return "bird-mid"
	}
}

func (p Pose) String() string {
	switch p {
	case PoseFlapUp:
		return "flap_up"
	case PoseFlapDown:
		return "flap_down"
	default:
		return "neutral"
	}
}

// Bird is the player entity. X never changes during a run.
type Bird struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Velocity float64 `json:"velocity"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Pose     Pose    `json:"pose"`
}

// NewBird places a bird at the tuning's start position with zero velocity.
func NewBird(t Tuning) Bird {
	x, y := t.BirdStart()
	return Bird{X: x, Y: y, Width: t.BirdWidth, Height: t.BirdHeight}
}

// Integrate advances the bird by one tick. An accepted jump replaces the
// velocity with the jump velocity and skips gravity for that tick.
func Integrate(b *Bird, delta float64, jump bool, t Tuning) {
	if jump {
		b.Velocity = t.JumpVelocity
	} else {
		b.Velocity += t.Gravity * delta
	}
	b.Y += b.Velocity * delta
	b.Pose = PoseFor(b.Velocity, t)
}

// PoseFor maps a velocity onto a pose using the symmetric flap threshold.
func PoseFor(velocity float64, t Tuning) Pose {
	switch {
	case velocity < -t.FlapThreshold:
		return PoseFlapUp
	case velocity > t.FlapThreshold:
		return PoseFlapDown
	default:
		return PoseNeutral
	}
}

package game

import (
	"errors"
	"fmt"
)

// ErrInvalidTuning is returned when a Tuning cannot drive a playable run.
var ErrInvalidTuning = errors.New("invalid tuning")

// Default world geometry and physics. Velocities and accelerations are per
// unit of delta, where delta 1 is one 60 Hz frame.
const (
	DefaultWorldWidth  = 400.0
	DefaultWorldHeight = 600.0

	DefaultBirdWidth  = 34.0
	DefaultBirdHeight = 24.0

	DefaultGravity           = 0.2
	DefaultJumpVelocity      = -6.0
	DefaultFlapThreshold     = 1.0
	DefaultJumpCooldownTicks = 2 // ~20ms at 60fps

	DefaultObstacleWidth = 78.0 // 52px sprite at 1.5x
	DefaultGapMin        = 125.0
	DefaultGapMax        = 175.0

	DefaultObstacleSpeed    = 1.0
	DefaultSpeedGrowth      = 0.001
	DefaultMaxObstacleSpeed = 6.0

	DefaultSpawnInterval    = 3000.0 // ms
	DefaultIntervalDecay    = 0.04   // ms per unit delta
	DefaultMinSpawnInterval = 900.0  // ms

	DefaultFrameMillis = 1000.0 / 60.0
)

// Tuning holds every constant a run depends on. The zero value is not usable;
// start from DefaultTuning.
type Tuning struct {
	WorldWidth  float64 `json:"worldWidth" yaml:"world_width"`
	WorldHeight float64 `json:"worldHeight" yaml:"world_height"`

	BirdWidth  float64 `json:"birdWidth" yaml:"bird_width"`
	BirdHeight float64 `json:"birdHeight" yaml:"bird_height"`

	Gravity           float64 `json:"gravity" yaml:"gravity"`
	JumpVelocity      float64 `json:"jumpVelocity" yaml:"jump_velocity"`
	FlapThreshold     float64 `json:"flapThreshold" yaml:"flap_threshold"`
	JumpCooldownTicks int     `json:"jumpCooldownTicks" yaml:"jump_cooldown_ticks"`

	ObstacleWidth float64 `json:"obstacleWidth" yaml:"obstacle_width"`
	GapMin        float64 `json:"gapMin" yaml:"gap_min"`
	GapMax        float64 `json:"gapMax" yaml:"gap_max"`
	// GapStart and GapEnd bound the y coordinate of the top of the gap.
	GapStart float64 `json:"gapStart" yaml:"gap_start"`
	GapEnd   float64 `json:"gapEnd" yaml:"gap_end"`

	ObstacleSpeed    float64 `json:"obstacleSpeed" yaml:"obstacle_speed"`
	SpeedGrowth      float64 `json:"speedGrowth" yaml:"speed_growth"`
	MaxObstacleSpeed float64 `json:"maxObstacleSpeed" yaml:"max_obstacle_speed"` // 0 disables the clamp

	SpawnInterval    float64 `json:"spawnInterval" yaml:"spawn_interval"`
	IntervalDecay    float64 `json:"intervalDecay" yaml:"interval_decay"`
	MinSpawnInterval float64 `json:"minSpawnInterval" yaml:"min_spawn_interval"` // 0 disables the clamp

	// FrameMillis converts delta into simulated milliseconds for the spawn clock.
	FrameMillis float64 `json:"frameMillis" yaml:"frame_millis"`
}

// DefaultTuning returns the stock game constants.
func DefaultTuning() Tuning {
	gapStart := DefaultWorldHeight / 6
	return Tuning{
		WorldWidth:        DefaultWorldWidth,
		WorldHeight:       DefaultWorldHeight,
		BirdWidth:         DefaultBirdWidth,
		BirdHeight:        DefaultBirdHeight,
		Gravity:           DefaultGravity,
		JumpVelocity:      DefaultJumpVelocity,
		FlapThreshold:     DefaultFlapThreshold,
		JumpCooldownTicks: DefaultJumpCooldownTicks,
		ObstacleWidth:     DefaultObstacleWidth,
		GapMin:            DefaultGapMin,
		GapMax:            DefaultGapMax,
		GapStart:          gapStart,
		GapEnd:            DefaultWorldHeight - gapStart - DefaultGapMax,
		ObstacleSpeed:     DefaultObstacleSpeed,
		SpeedGrowth:       DefaultSpeedGrowth,
		MaxObstacleSpeed:  DefaultMaxObstacleSpeed,
		SpawnInterval:     DefaultSpawnInterval,
		IntervalDecay:     DefaultIntervalDecay,
		MinSpawnInterval:  DefaultMinSpawnInterval,
		FrameMillis:       DefaultFrameMillis,
	}
}

// Validate reports the first constraint the tuning violates.
func (t Tuning) Validate() error {
	switch {
	case t.WorldWidth <= 0 || t.WorldHeight <= 0:
		return fmt.Errorf("%w: world size must be positive", ErrInvalidTuning)
	case t.BirdWidth <= 0 || t.BirdHeight <= 0:
		return fmt.Errorf("%w: bird size must be positive", ErrInvalidTuning)
	case t.BirdHeight >= t.WorldHeight || t.BirdWidth >= t.WorldWidth:
		return fmt.Errorf("%w: bird does not fit in the world", ErrInvalidTuning)
	case t.JumpVelocity >= 0:
		return fmt.Errorf("%w: jump velocity must be negative (upward)", ErrInvalidTuning)
	case t.Gravity < 0:
		return fmt.Errorf("%w: gravity must not be negative", ErrInvalidTuning)
	case t.FlapThreshold < 0:
		return fmt.Errorf("%w: flap threshold must not be negative", ErrInvalidTuning)
	case t.JumpCooldownTicks < 0:
		return fmt.Errorf("%w: jump cooldown must not be negative", ErrInvalidTuning)
	case t.ObstacleWidth <= 0:
		return fmt.Errorf("%w: obstacle width must be positive", ErrInvalidTuning)
	case t.GapMin <= 0 || t.GapMax < t.GapMin:
		return fmt.Errorf("%w: gap band [%g,%g] is empty", ErrInvalidTuning, t.GapMin, t.GapMax)
	case t.GapStart < 0 || t.GapEnd < t.GapStart:
		return fmt.Errorf("%w: gap start band [%g,%g] is empty", ErrInvalidTuning, t.GapStart, t.GapEnd)
	case t.GapEnd+t.GapMax > t.WorldHeight:
		return fmt.Errorf("%w: gap can extend past the world bottom", ErrInvalidTuning)
	case t.ObstacleSpeed <= 0:
		return fmt.Errorf("%w: obstacle speed must be positive", ErrInvalidTuning)
	case t.MaxObstacleSpeed != 0 && t.MaxObstacleSpeed < t.ObstacleSpeed:
		return fmt.Errorf("%w: max obstacle speed below initial speed", ErrInvalidTuning)
	case t.SpawnInterval <= 0:
		return fmt.Errorf("%w: spawn interval must be positive", ErrInvalidTuning)
	case t.MinSpawnInterval < 0 || t.MinSpawnInterval > t.SpawnInterval:
		return fmt.Errorf("%w: min spawn interval outside (0, spawn interval]", ErrInvalidTuning)
	case t.FrameMillis <= 0:
		return fmt.Errorf("%w: frame millis must be positive", ErrInvalidTuning)
	}
	return nil
}

// BirdStart returns the spawn position of the bird.
func (t Tuning) BirdStart() (x, y float64) {
	return t.WorldWidth / 8, t.WorldHeight / 2
}

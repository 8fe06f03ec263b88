package game

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// SpriteKind selects the natural size of a sprite. Bird sprites are
// BirdWidth x BirdHeight; obstacle sprites are ObstacleWidth x WorldHeight.
type SpriteKind int

const (
	SpriteBird SpriteKind = iota
	SpriteObstacle
)

// Sprite is a drawable entity owned by a Scene.
type Sprite interface {
	SetPosition(x, y float64)
	// SetScale multiplies the natural size. A negative factor flips the sprite
	// around its position.
	SetScale(sx, sy float64)
	SetFrame(name string)
}

// Scene is the render collaborator.
type Scene interface {
	NewSprite(kind SpriteKind, frame string) Sprite
	Add(s Sprite)
	Remove(s ...Sprite)
}

// SkinSource supplies the obstacle skin identifier used at each spawn.
type SkinSource interface {
	CurrentSkin() string
}

// StaticSkin is a SkinSource that always returns the same identifier.
type StaticSkin string

func (s StaticSkin) CurrentSkin() string { return string(s) }

// Rand yields floats in [0, 1) for gap placement.
type Rand interface {
	Float64() float64
}

// RandFactory returns the randomness source for a new run.
type RandFactory func(runID uuid.UUID) Rand

func defaultRandFactory(uuid.UUID) Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Frame is one recorded tick of input.
type Frame struct {
	Tick  int     `json:"tick"`
	Delta float64 `json:"delta"`
	Jump  bool    `json:"jump"`
}

// FrameRecorder receives every ticked frame of a run. Implementations must not
// block.
type FrameRecorder interface {
	RecordFrame(runID uuid.UUID, f Frame)
}

// NopScene discards all render calls, for headless runs.
type NopScene struct{}

type nopSprite struct{}

func (nopSprite) SetPosition(x, y float64) {}
func (nopSprite) SetScale(sx, sy float64)  {}
func (nopSprite) SetFrame(name string)     {}

func (NopScene) NewSprite(SpriteKind, string) Sprite { return nopSprite{} }
func (NopScene) Add(Sprite)                          {}
func (NopScene) Remove(...Sprite)                    {}

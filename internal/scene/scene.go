// Package scene keeps the retained sprite list a game loop draws into. It
// knows sizes and placement but nothing about a graphics backend, so a
// renderer only walks the list.
package scene

import (
	"slices"
	"sync"

	"github.com/krigga/flappy-ton/internal/game"
)

// Rect is an axis-aligned box in world coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Sprite is a positioned, scaled frame. It implements game.Sprite.
type Sprite struct {
	kind   game.SpriteKind
	frame  string
	x, y   float64
	sx, sy float64
	w, h   float64 // natural size
}

func (s *Sprite) SetPosition(x, y float64) { s.x, s.y = x, y }
func (s *Sprite) SetScale(sx, sy float64)  { s.sx, s.sy = sx, sy }
func (s *Sprite) SetFrame(name string)     { s.frame = name }

// Kind returns what the sprite depicts.
func (s *Sprite) Kind() game.SpriteKind { return s.kind }

// Frame returns the frame or skin identifier.
func (s *Sprite) Frame() string { return s.frame }

// Bounds returns the box the sprite covers. A negative scale flips the box to
// the other side of the position.
func (s *Sprite) Bounds() Rect {
	w, h := s.w*s.sx, s.h*s.sy
	r := Rect{X: s.x, Y: s.y, W: w, H: h}
	if w < 0 {
		r.X, r.W = s.x+w, -w
	}
	if h < 0 {
		r.Y, r.H = s.y+h, -h
	}
	return r
}

// Scene holds sprites in insertion order. It implements game.Scene and is
// safe to draw from a goroutine other than the one ticking the loop.
type Scene struct {
	tuning game.Tuning

	mu      sync.Mutex
	sprites []*Sprite
}

// New returns an empty scene for a world of the given tuning.
func New(t game.Tuning) *Scene {
	return &Scene{tuning: t}
}

func (s *Scene) NewSprite(kind game.SpriteKind, frame string) game.Sprite {
	sp := &Sprite{kind: kind, frame: frame, sx: 1, sy: 1}
	switch kind {
	case game.SpriteBird:
		sp.w, sp.h = s.tuning.BirdWidth, s.tuning.BirdHeight
	case game.SpriteObstacle:
		sp.w, sp.h = s.tuning.ObstacleWidth, s.tuning.WorldHeight
	}
	return sp
}

func (s *Scene) Add(sp game.Sprite) {
	v, ok := sp.(*Sprite)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.sprites, v) {
		s.sprites = append(s.sprites, v)
	}
}

func (s *Scene) Remove(sps ...game.Sprite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sprites = slices.DeleteFunc(s.sprites, func(v *Sprite) bool {
		for _, sp := range sps {
			if sp == game.Sprite(v) {
				return true
			}
		}
		return false
	})
}

// Len returns the number of sprites in the scene.
func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sprites)
}

// Item is a sprite as seen by a renderer.
type Item struct {
	Kind   game.SpriteKind
	Frame  string
	Bounds Rect
	Flip   bool
}

// Items returns the drawable state with obstacles first so the bird is drawn
// on top.
func (s *Scene) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0, len(s.sprites))
	for _, kind := range []game.SpriteKind{game.SpriteObstacle, game.SpriteBird} {
		for _, sp := range s.sprites {
			if sp.kind != kind {
				continue
			}
			out = append(out, Item{Kind: sp.kind, Frame: sp.frame, Bounds: sp.Bounds(), Flip: sp.sy < 0})
		}
	}
	return out
}

package render

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/krigga/flappy-ton/internal/game"
	"github.com/krigga/flappy-ton/internal/scene"
)

var (
	skyColor     = color.RGBA{0x4e, 0xc0, 0xca, 0xff}
	groundColor  = color.RGBA{0xde, 0xd8, 0x95, 0xff}
	overlayColor = color.RGBA{0x00, 0x00, 0x00, 0x99}
	birdColor    = color.RGBA{0xf8, 0xc8, 0x30, 0xff}
	wingColor    = color.RGBA{0xf0, 0x80, 0x30, 0xff}
	capShade     = 0.8
)

var skinColors = map[string]color.RGBA{
	"pipe-green": {0x5a, 0xb0, 0x2c, 0xff},
	"pipe-red":   {0xd0, 0x3c, 0x2c, 0xff},
}

func skinColor(name string) color.RGBA {
	if c, ok := skinColors[name]; ok {
		return c
	}
	return color.RGBA{0x90, 0x90, 0x90, 0xff}
}

func shade(c color.RGBA, f float64) color.RGBA {
	return color.RGBA{uint8(float64(c.R) * f), uint8(float64(c.G) * f), uint8(float64(c.B) * f), c.A}
}

func fillRect(dst *ebiten.Image, r scene.Rect, c color.Color) {
	vector.DrawFilledRect(dst, float32(r.X), float32(r.Y), float32(r.W), float32(r.H), c, false)
}

// drawItems paints obstacles as shafts with a cap at the gap end and the bird
// as a body with its wing placed by pose.
func drawItems(dst *ebiten.Image, items []scene.Item) {
	for _, it := range items {
		switch it.Kind {
		case game.SpriteObstacle:
			c := skinColor(it.Frame)
			fillRect(dst, it.Bounds, c)
			lip := scene.Rect{X: it.Bounds.X - 3, Y: it.Bounds.Y, W: it.Bounds.W + 6, H: 24}
			if it.Flip {
				lip.Y = it.Bounds.Y + it.Bounds.H - lip.H
			}
			fillRect(dst, lip, shade(c, capShade))
		case game.SpriteBird:
			fillRect(dst, it.Bounds, birdColor)
			wing := scene.Rect{X: it.Bounds.X + 4, Y: it.Bounds.Y + it.Bounds.H/3, W: it.Bounds.W / 2.5, H: it.Bounds.H / 3}
			switch it.Frame {
			case game.PoseFlapUp.Frame():
				wing.Y = it.Bounds.Y + 2
			case game.PoseFlapDown.Frame():
				wing.Y = it.Bounds.Y + it.Bounds.H - wing.H - 2
			}
			fillRect(dst, wing, wingColor)
		}
	}
}
